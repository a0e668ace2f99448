// Package visualizer turns live capture audio into level and frequency-bar
// frames for on-screen feedback. Frames are cosmetic: nothing downstream of
// the recording depends on them.
package visualizer

import (
	"encoding/binary"
	"math"
	"sync"
	"time"
)

const (
	DefaultBars     = 16
	DefaultInterval = 50 * time.Millisecond

	windowSize = 512
	sampleRate = 16000
	minFreq    = 100.0
	maxFreq    = 4000.0
)

type Frame struct {
	Level float64   // RMS, 0..1
	Bars  []float64 // per-band magnitude, 0..1, low to high frequency
}

type Option func(*Feed)

func WithBars(n int) Option {
	return func(f *Feed) {
		if n > 0 {
			f.bars = n
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(f *Feed) {
		if d > 0 {
			f.interval = d
		}
	}
}

type Feed struct {
	sink     func(Frame)
	bars     int
	interval time.Duration
	coeffs   []float64

	mu      sync.Mutex
	window  []int16
	running bool
	stop    chan struct{}
	done    chan struct{}
}

func New(sink func(Frame), opts ...Option) *Feed {
	f := &Feed{
		sink:     sink,
		bars:     DefaultBars,
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.coeffs = bandCoefficients(f.bars)
	return f
}

// bandBin returns the DFT bin of band i out of n, with centre frequencies
// log-spaced between minFreq and maxFreq.
func bandBin(i, n int) float64 {
	ratio := math.Pow(maxFreq/minFreq, 1/float64(max(n-1, 1)))
	freq := minFreq * math.Pow(ratio, float64(i))
	return math.Round(windowSize * freq / sampleRate)
}

func bandCoefficients(n int) []float64 {
	coeffs := make([]float64, n)
	for i := range coeffs {
		coeffs[i] = 2 * math.Cos(2*math.Pi*bandBin(i, n)/windowSize)
	}
	return coeffs
}

func (f *Feed) Start() {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return
	}
	f.running = true
	f.window = f.window[:0]
	f.stop = make(chan struct{})
	f.done = make(chan struct{})
	stop, done := f.stop, f.done
	f.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				f.emit(f.Sample())
			}
		}
	}()
}

// Push appends PCM16 little-endian samples, keeping only the latest window.
func (f *Feed) Push(pcm []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return
	}
	for i := 0; i+1 < len(pcm); i += 2 {
		f.window = append(f.window, int16(binary.LittleEndian.Uint16(pcm[i:])))
	}
	if over := len(f.window) - windowSize; over > 0 {
		f.window = append(f.window[:0], f.window[over:]...)
	}
}

// Stop halts sampling, clears buffered audio and emits a single empty frame.
func (f *Feed) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	f.window = f.window[:0]
	close(f.stop)
	done := f.done
	f.mu.Unlock()

	<-done
	f.emit(Frame{Bars: make([]float64, f.bars)})
}

func (f *Feed) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// Sample computes a frame from the current window.
func (f *Feed) Sample() Frame {
	f.mu.Lock()
	samples := make([]float64, len(f.window))
	for i, s := range f.window {
		samples[i] = float64(s) / 32768.0
	}
	f.mu.Unlock()

	frame := Frame{Bars: make([]float64, f.bars)}
	if len(samples) == 0 {
		return frame
	}

	var sumSquares float64
	for _, s := range samples {
		sumSquares += s * s
	}
	frame.Level = math.Sqrt(sumSquares / float64(len(samples)))

	for i, coeff := range f.coeffs {
		var s1, s2 float64
		for _, x := range samples {
			s0 := x + coeff*s1 - s2
			s2, s1 = s1, s0
		}
		power := s1*s1 + s2*s2 - coeff*s1*s2
		mag := 2 * math.Sqrt(math.Max(power, 0)) / float64(len(samples))
		frame.Bars[i] = math.Min(mag, 1)
	}
	return frame
}

func (f *Feed) emit(frame Frame) {
	if f.sink != nil {
		f.sink(frame)
	}
}
