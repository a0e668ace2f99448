// Package capture owns the microphone for the duration of one voice
// recording and turns it into an uploadable artifact.
//
// A Recorder holds at most one session. Start acquires a capture device and
// buffers PCM chunks in arrival order; Stop releases the device and encodes
// the buffered audio; Finish returns the recorder to idle once the artifact
// has been handed off.
package capture

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"calvoice/audio"
	"calvoice/encoder"

	"github.com/google/uuid"
)

type Status int

const (
	Idle Status = iota
	Recording
	Processing
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Processing:
		return "processing"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

var (
	ErrBusy     = errors.New("recording already in progress")
	ErrTooShort = errors.New("recording too short")
)

const DefaultMinDuration = 100 * time.Millisecond

// Meter receives live audio while a session is recording.
type Meter interface {
	Start()
	Push(pcm []byte)
	Stop()
}

// Artifact is the encoded result of one recording session.
type Artifact struct {
	Data        []byte
	Format      string
	Filename    string
	ContentType string
	Duration    time.Duration
	Frames      uint64
	StartedAt   time.Time
}

type Option func(*Recorder)

// WithDevice selects the capture device. nil means the system default.
func WithDevice(dev *audio.DeviceInfo) Option {
	return func(r *Recorder) { r.device = dev }
}

func WithFormat(format string) Option {
	return func(r *Recorder) { r.format = format }
}

func WithMeter(m Meter) Option {
	return func(r *Recorder) { r.meter = m }
}

func WithMinDuration(d time.Duration) Option {
	return func(r *Recorder) { r.minDuration = d }
}

func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

type Recorder struct {
	actx        audio.Context
	format      string
	meter       Meter
	minDuration time.Duration
	now         func() time.Time

	mu     sync.Mutex
	device *audio.DeviceInfo
	status Status
	sess   *session
}

type session struct {
	dev     audio.CaptureDevice
	started time.Time

	mu      sync.Mutex
	chunks  [][]byte
	frames  uint64
	stopped bool
}

func New(actx audio.Context, opts ...Option) *Recorder {
	r := &Recorder{
		actx:        actx,
		format:      encoder.FormatFLAC,
		minDuration: DefaultMinDuration,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Recorder) Format() string { return r.format }

// Device returns the selected capture device, nil for the system default.
func (r *Recorder) Device() *audio.DeviceInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.device
}

// SetDevice switches the capture device used by the next session.
func (r *Recorder) SetDevice(dev *audio.DeviceInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != Idle {
		return ErrBusy
	}
	r.device = dev
	return nil
}

// Elapsed reports how long the current session has been recording.
func (r *Recorder) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != Recording || r.sess == nil {
		return 0
	}
	return r.now().Sub(r.sess.started)
}

func (r *Recorder) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !slices.Contains(encoder.Formats, r.format) {
		return fmt.Errorf("unknown format %q", r.format)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != Idle {
		return ErrBusy
	}

	dev, err := r.actx.NewCapture(r.device, audio.CaptureConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
	})
	if err != nil {
		return fmt.Errorf("opening capture device: %w", err)
	}

	sess := &session{dev: dev, started: r.now()}
	dev.SetCallback(sess.callback(r.meter))

	if r.meter != nil {
		r.meter.Start()
	}
	if err := dev.Start(); err != nil {
		dev.ClearCallback()
		dev.Close()
		if r.meter != nil {
			r.meter.Stop()
		}
		return fmt.Errorf("starting capture: %w", err)
	}

	r.sess = sess
	r.status = Recording
	return nil
}

func (s *session) callback(meter Meter) audio.DataCallback {
	return func(data []byte, frameCount uint32) {
		if len(data) == 0 {
			return
		}
		pcm := make([]byte, len(data))
		copy(pcm, data)

		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		s.chunks = append(s.chunks, pcm)
		s.frames += uint64(frameCount)
		s.mu.Unlock()

		if meter != nil {
			meter.Push(pcm)
		}
	}
}

// release stops and closes the device and returns the buffered audio.
func (s *session) release() ([]byte, uint64) {
	s.dev.Stop()
	s.dev.ClearCallback()
	s.dev.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	var n int
	for _, c := range s.chunks {
		n += len(c)
	}
	pcm := make([]byte, 0, n)
	for _, c := range s.chunks {
		pcm = append(pcm, c...)
	}
	s.chunks = nil
	return pcm, s.frames
}

// Stop ends the recording and encodes it. It is a no-op returning (nil, nil)
// unless a session is recording. On success the recorder stays in
// Processing until Finish.
func (r *Recorder) Stop(ctx context.Context) (*Artifact, error) {
	r.mu.Lock()
	if r.status != Recording {
		r.mu.Unlock()
		return nil, nil
	}
	r.status = Processing
	sess := r.sess
	r.mu.Unlock()

	pcm, frames := sess.release()
	if r.meter != nil {
		r.meter.Stop()
	}

	art, err := r.encode(ctx, sess, pcm, frames)
	if err != nil {
		r.Finish()
		return nil, err
	}
	return art, nil
}

func (r *Recorder) encode(ctx context.Context, sess *session, pcm []byte, frames uint64) (*Artifact, error) {
	duration := time.Duration(frames) * time.Second / encoder.SampleRate
	if duration < r.minDuration {
		return nil, fmt.Errorf("%w: %s", ErrTooShort, duration)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	enc, err := encoder.New(r.format)
	if err != nil {
		return nil, err
	}
	if err := encoder.EncodePCM(enc, pcm); err != nil {
		enc.Close()
		return nil, fmt.Errorf("encoding %s: %w", r.format, err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding %s: %w", r.format, err)
	}

	return &Artifact{
		Data:        enc.Bytes(),
		Format:      r.format,
		Filename:    fmt.Sprintf("recording-%s.%s", uuid.NewString(), r.format),
		ContentType: encoder.ContentType(r.format),
		Duration:    duration,
		Frames:      frames,
		StartedAt:   sess.started,
	}, nil
}

// Finish discards the session and returns the recorder to Idle.
func (r *Recorder) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == Processing {
		r.status = Idle
		r.sess = nil
	}
}

// Cancel abandons a recording in progress without producing an artifact.
func (r *Recorder) Cancel() {
	r.mu.Lock()
	if r.status != Recording {
		r.mu.Unlock()
		return
	}
	sess := r.sess
	r.sess = nil
	r.status = Idle
	r.mu.Unlock()

	sess.release()
	if r.meter != nil {
		r.meter.Stop()
	}
}
