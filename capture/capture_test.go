package capture

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"calvoice/audio"
	"calvoice/encoder"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pcmFor returns d worth of 16 kHz mono PCM16 with a non-zero ramp.
func pcmFor(d time.Duration) []byte {
	n := int(d * encoder.SampleRate / time.Second)
	pcm := make([]byte, n*2)
	for i := range n {
		pcm[i*2] = byte(i)
		pcm[i*2+1] = byte(i >> 8)
	}
	return pcm
}

type meterCalls struct {
	mu     sync.Mutex
	starts int
	stops  int
	pushed int
}

func (m *meterCalls) Start()          { m.mu.Lock(); m.starts++; m.mu.Unlock() }
func (m *meterCalls) Stop()           { m.mu.Lock(); m.stops++; m.mu.Unlock() }
func (m *meterCalls) Push(pcm []byte) { m.mu.Lock(); m.pushed += len(pcm); m.mu.Unlock() }

func (m *meterCalls) counts() (int, int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts, m.stops, m.pushed
}

func TestStartStopProducesArtifact(t *testing.T) {
	pcm := pcmFor(time.Second)
	actx := audio.NewFakeContextPCM(pcm, false)
	meter := &meterCalls{}
	started := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	rec := New(actx, WithMeter(meter), WithFormat(encoder.FormatWAV), WithClock(func() time.Time { return started }))

	require.NoError(t, rec.Start(context.Background()))
	assert.Equal(t, Recording, rec.Status())
	assert.Equal(t, 1, actx.OpenDevices())

	art, err := rec.Stop(context.Background())
	require.NoError(t, err)
	require.NotNil(t, art)

	assert.Equal(t, Processing, rec.Status())
	assert.Zero(t, actx.OpenDevices(), "device released after stop")
	assert.Equal(t, encoder.FormatWAV, art.Format)
	assert.Equal(t, "audio/wav", art.ContentType)
	assert.True(t, strings.HasPrefix(art.Filename, "recording-"))
	assert.True(t, strings.HasSuffix(art.Filename, ".wav"))
	assert.Equal(t, uint64(len(pcm)/2), art.Frames)
	assert.Equal(t, time.Second, art.Duration)
	assert.Equal(t, started, art.StartedAt)
	assert.Equal(t, "RIFF", string(art.Data[:4]))
	assert.True(t, bytes.HasSuffix(art.Data, pcm[len(pcm)-64:]), "samples kept in arrival order")

	starts, stops, pushed := meter.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, stops)
	assert.Equal(t, len(pcm), pushed)

	rec.Finish()
	assert.Equal(t, Idle, rec.Status())
}

func TestFlacArtifact(t *testing.T) {
	rec := New(audio.NewFakeContextPCM(pcmFor(500*time.Millisecond), false))
	require.NoError(t, rec.Start(context.Background()))
	art, err := rec.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fLaC", string(art.Data[:4]))
	assert.Equal(t, "audio/flac", art.ContentType)
	assert.True(t, strings.HasSuffix(art.Filename, ".flac"))
}

func TestStartWhileBusy(t *testing.T) {
	actx := audio.NewFakeContextPCM(pcmFor(time.Second), false)
	rec := New(actx)

	require.NoError(t, rec.Start(context.Background()))
	assert.ErrorIs(t, rec.Start(context.Background()), ErrBusy)
	assert.Equal(t, Recording, rec.Status())
	assert.Equal(t, 1, actx.OpenDevices(), "rejected start acquires nothing")

	_, err := rec.Stop(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, rec.Start(context.Background()), ErrBusy, "processing is busy too")
	assert.Equal(t, Processing, rec.Status())

	rec.Finish()
	require.NoError(t, rec.Start(context.Background()))
}

func TestStopWhenIdleIsNoop(t *testing.T) {
	rec := New(audio.NewFakeContextPCM(nil, false))
	art, err := rec.Stop(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, art)
	assert.Equal(t, Idle, rec.Status())

	rec.Finish()
	assert.Equal(t, Idle, rec.Status())
}

func TestStartPermissionDenied(t *testing.T) {
	actx := audio.NewFakeContextPCM(pcmFor(time.Second), false)
	actx.StartErr = errors.New("Permission denied by user")
	meter := &meterCalls{}
	rec := New(actx, WithMeter(meter))

	err := rec.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, audio.ErrPermissionDenied)
	assert.Equal(t, Idle, rec.Status())
	assert.Zero(t, actx.OpenDevices(), "device released on start failure")

	starts, stops, _ := meter.counts()
	assert.Equal(t, starts, stops, "meter stopped on failure path")
}

func TestStartGenericFailure(t *testing.T) {
	actx := audio.NewFakeContextPCM(nil, false)
	actx.StartErr = errors.New("device busy")
	rec := New(actx)

	err := rec.Start(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, audio.ErrPermissionDenied)
	assert.Equal(t, Idle, rec.Status())
}

func TestTooShort(t *testing.T) {
	actx := audio.NewFakeContextPCM(pcmFor(50*time.Millisecond), false)
	rec := New(actx)

	require.NoError(t, rec.Start(context.Background()))
	art, err := rec.Stop(context.Background())
	assert.ErrorIs(t, err, ErrTooShort)
	assert.Nil(t, art)
	assert.Equal(t, Idle, rec.Status())
	assert.Zero(t, actx.OpenDevices())
}

func TestMinDurationOption(t *testing.T) {
	rec := New(audio.NewFakeContextPCM(pcmFor(50*time.Millisecond), false), WithMinDuration(0))
	require.NoError(t, rec.Start(context.Background()))
	art, err := rec.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50*time.Millisecond, art.Duration)
}

func TestUnknownFormat(t *testing.T) {
	rec := New(audio.NewFakeContextPCM(nil, false), WithFormat("ogg"))
	assert.Error(t, rec.Start(context.Background()))
	assert.Equal(t, Idle, rec.Status())
}

func TestCancel(t *testing.T) {
	actx := audio.NewFakeContextPCM(pcmFor(time.Second), true)
	meter := &meterCalls{}
	rec := New(actx, WithMeter(meter))

	require.NoError(t, rec.Start(context.Background()))
	rec.Cancel()
	assert.Equal(t, Idle, rec.Status())
	assert.Zero(t, actx.OpenDevices())

	art, err := rec.Stop(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, art)
	_, stops, _ := meter.counts()
	assert.Equal(t, 1, stops)
}

func TestSetDeviceWhileRecording(t *testing.T) {
	rec := New(audio.NewFakeContextPCM(pcmFor(time.Second), false))
	dev := &audio.DeviceInfo{ID: "fake", Name: "fake"}
	require.NoError(t, rec.SetDevice(dev))
	assert.Equal(t, dev, rec.Device())

	require.NoError(t, rec.Start(context.Background()))
	assert.ErrorIs(t, rec.SetDevice(nil), ErrBusy)
}

func TestRealtimeChunksBufferedInOrder(t *testing.T) {
	pcm := pcmFor(300 * time.Millisecond)
	actx := audio.NewFakeContextPCM(pcm, true)
	rec := New(actx, WithFormat(encoder.FormatWAV))

	require.NoError(t, rec.Start(context.Background()))
	time.Sleep(450 * time.Millisecond)
	art, err := rec.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(len(pcm)/2), art.Frames)
	assert.True(t, bytes.HasSuffix(art.Data, pcm))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "recording", Recording.String())
	assert.Equal(t, "processing", Processing.String())
}
