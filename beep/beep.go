// Package beep plays short audible cues for capture transitions.
package beep

import (
	"math"
	"sync"
	"sync/atomic"

	"calvoice/capture"
	"calvoice/controller"
)

var disabled atomic.Bool

func Disable() { disabled.Store(true) }

func Enabled() bool { return !disabled.Load() }

const (
	sampleRate = 44100

	// Start beep: high pitch, short
	startFreq   = 1200
	startVolume = 0.5
	startDecay  = 60

	// End beep: medium pitch, slightly longer
	endFreq   = 900
	endVolume = 0.5
	endDecay  = 40

	// Error beep: low pitch double-beep
	errorFreq   = 350
	errorVolume = 0.6
	errorDecay  = 30
)

type Cue int

const (
	Start Cue = iota
	End
	Error
)

var (
	cues     [3][]int16
	cuesOnce sync.Once
)

func initCues() {
	cues[Start] = tone(startFreq, 0.08, startVolume, startDecay)
	cues[End] = tone(endFreq, 0.12, endVolume, endDecay)
	cues[Error] = doubleTone(errorFreq, 0.08, 0.05, errorVolume, errorDecay)
}

// Samples returns the mono PCM for c at sampleRate.
func Samples(c Cue) []int16 {
	cuesOnce.Do(initCues)
	if c < Start || c > Error {
		return nil
	}
	return cues[c]
}

func tone(freq, duration, volume, decay float64) []int16 {
	n := int(sampleRate * duration)
	samples := make([]int16, n)
	for i := range samples {
		t := float64(i) / sampleRate
		envelope := math.Exp(-t * decay)
		samples[i] = int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
	}
	return samples
}

func doubleTone(freq, beepDur, gapDur, volume, decay float64) []int16 {
	beep := tone(freq, beepDur, volume, decay)
	gap := make([]int16, int(sampleRate*gapDur))
	out := make([]int16, 0, len(beep)*2+len(gap))
	out = append(out, beep...)
	out = append(out, gap...)
	return append(out, beep...)
}

// Init prepares the cues and the output device ahead of the first beep.
func Init() {
	cuesOnce.Do(initCues)
	initOutput()
}

func Play(c Cue) {
	if disabled.Load() {
		return
	}
	play(Samples(c))
}

func PlayStart() { Play(Start) }
func PlayEnd()   { Play(End) }
func PlayError() { Play(Error) }

// View beeps when recording starts or stops and when a request fails.
type View struct {
	controller.NopView

	mu   sync.Mutex
	last capture.Status
}

func (v *View) CaptureChanged(s capture.Status, _ controller.RequestStatus) {
	v.mu.Lock()
	prev := v.last
	v.last = s
	v.mu.Unlock()

	switch {
	case s == capture.Recording && prev != capture.Recording:
		PlayStart()
	case prev == capture.Recording && s != capture.Recording:
		PlayEnd()
	}
}

func (v *View) ResponseChanged(r controller.Response) {
	if r.IsError() {
		PlayError()
	}
}
