// Package activity keeps the in-memory record of what was said to the
// assistant and what it answered, in the order it happened.
package activity

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	Voice  Kind = "voice"
	Prompt Kind = "prompt"
	Agent  Kind = "agent"
)

type Entry struct {
	ID   string
	Time time.Time
	Kind Kind
	Text string
}

type Option func(*Log)

// WithMax caps the number of retained entries, dropping the oldest first.
// Zero or negative keeps everything.
func WithMax(n int) Option {
	return func(l *Log) { l.max = n }
}

func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// Log is safe for concurrent use.
type Log struct {
	max int
	now func() time.Time

	mu      sync.Mutex
	entries []Entry
}

func New(opts ...Option) *Log {
	l := &Log{now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Log) Append(kind Kind, text string) Entry {
	return l.AppendAll(Entry{Kind: kind, Text: text})[0]
}

// AppendAll records entries as one adjacent run; only Kind and Text are read
// from the arguments.
func (l *Log) AppendAll(entries ...Entry) []Entry {
	out := make([]Entry, len(entries))
	now := l.now()
	for i, e := range entries {
		out[i] = Entry{
			ID:   uuid.NewString(),
			Time: now,
			Kind: e.Kind,
			Text: e.Text,
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, out...)
	if l.max > 0 && len(l.entries) > l.max {
		l.entries = append(l.entries[:0], l.entries[len(l.entries)-l.max:]...)
	}
	return out
}

// Entries returns a copy, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Last returns the most recent entry of the given kind.
func (l *Log) Last(kind Kind) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].Kind == kind {
			return l.entries[i], true
		}
	}
	return Entry{}, false
}
