package activity

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendKeepsOrder(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	l := New(WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}))

	l.Append(Voice, "book dentist friday")
	l.Append(Agent, "Booked.")
	l.Append(Prompt, "move it to 4pm")

	entries := l.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, []Kind{Voice, Agent, Prompt}, []Kind{entries[0].Kind, entries[1].Kind, entries[2].Kind})
	assert.Equal(t, "Booked.", entries[1].Text)
	assert.True(t, entries[0].Time.Before(entries[2].Time))
	assert.NotEqual(t, entries[0].ID, entries[1].ID)
}

func TestUnboundedByDefault(t *testing.T) {
	l := New()
	for i := range 5000 {
		l.Append(Prompt, fmt.Sprint(i))
	}
	assert.Equal(t, 5000, l.Len())
}

func TestWithMaxDropsOldest(t *testing.T) {
	l := New(WithMax(3))
	for i := range 5 {
		l.Append(Prompt, fmt.Sprint(i))
	}
	entries := l.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "2", entries[0].Text)
	assert.Equal(t, "4", entries[2].Text)
}

func TestEntriesIsCopy(t *testing.T) {
	l := New()
	l.Append(Voice, "a")
	entries := l.Entries()
	entries[0].Text = "mutated"
	assert.Equal(t, "a", l.Entries()[0].Text)
}

func TestLast(t *testing.T) {
	l := New()
	_, ok := l.Last(Agent)
	assert.False(t, ok)

	l.Append(Agent, "first")
	l.Append(Prompt, "p")
	l.Append(Agent, "second")
	l.Append(Voice, "v")

	e, ok := l.Last(Agent)
	require.True(t, ok)
	assert.Equal(t, "second", e.Text)
}

func TestConcurrentAppend(t *testing.T) {
	l := New()
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 100 {
				l.Append(Prompt, fmt.Sprintf("%d-%d", i, j))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 800, l.Len())
}

func TestAppendAllKeepsPairsAdjacent(t *testing.T) {
	l := New()
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 50 {
				text := fmt.Sprintf("%d-%d", i, j)
				l.AppendAll(Entry{Kind: Voice, Text: text}, Entry{Kind: Agent, Text: text})
			}
		}()
	}
	wg.Wait()

	entries := l.Entries()
	require.Len(t, entries, 800)
	for i := 0; i < len(entries); i += 2 {
		assert.Equal(t, Voice, entries[i].Kind)
		assert.Equal(t, Agent, entries[i+1].Kind)
		assert.Equal(t, entries[i].Text, entries[i+1].Text)
		assert.NotEqual(t, entries[i].ID, entries[i+1].ID)
	}
}

func TestAppendAllRespectsMax(t *testing.T) {
	l := New(WithMax(3))
	l.Append(Prompt, "old")
	got := l.AppendAll(Entry{Kind: Prompt, Text: "a"}, Entry{Kind: Agent, Text: "b"}, Entry{Kind: Voice, Text: "c"})
	require.Len(t, got, 3)
	assert.NotEmpty(t, got[0].ID)
	assert.False(t, got[0].Time.IsZero())

	entries := l.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "a", entries[0].Text)
	assert.Equal(t, "c", entries[2].Text)
}
