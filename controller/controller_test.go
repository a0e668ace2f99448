package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"calvoice/activity"
	"calvoice/audio"
	"calvoice/backend"
	"calvoice/capture"
	"calvoice/hotkey"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type event struct {
	kind string
	arg  string
}

type recordingView struct {
	mu     sync.Mutex
	events []event
}

func (v *recordingView) add(kind, arg string) {
	v.mu.Lock()
	v.events = append(v.events, event{kind, arg})
	v.mu.Unlock()
}

func (v *recordingView) CaptureChanged(s capture.Status, r RequestStatus) {
	v.add("capture", s.String()+"/"+r.String())
}
func (v *recordingView) PromptChanged(r RequestStatus)  { v.add("prompt", r.String()) }
func (v *recordingView) InputChanged(text string)       { v.add("input", text) }
func (v *recordingView) ResponseChanged(r Response)     { v.add("response", r.Text) }
func (v *recordingView) ActivityAdded(e activity.Entry) { v.add("activity", string(e.Kind)+":"+e.Text) }

func (v *recordingView) of(kind string) []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []string
	for _, e := range v.events {
		if e.kind == kind {
			out = append(out, e.arg)
		}
	}
	return out
}

// oneSecond is 16 kHz mono PCM16, long enough to clear the minimum duration.
var oneSecond = make([]byte, 32000)

type fixture struct {
	ctl  *Controller
	actx *audio.FakeContext
	rec  *capture.Recorder
	api  *backend.Fake
	log  *activity.Log
	view *recordingView
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	actx := audio.NewFakeContextPCM(oneSecond, false)
	rec := capture.New(actx)
	api := backend.NewFake("", nil)
	log := activity.New()
	view := &recordingView{}
	return &fixture{
		ctl:  New(rec, api, log, view),
		actx: actx,
		rec:  rec,
		api:  api,
		log:  log,
		view: view,
	}
}

func (f *fixture) record(t *testing.T) error {
	t.Helper()
	require.NoError(t, f.ctl.StartCapture(context.Background()))
	return f.ctl.StopCapture(context.Background())
}

func TestVoiceTextOnlyPopulatesInput(t *testing.T) {
	f := newFixture(t)
	f.api.Transcription = &backend.Transcription{Text: "move meeting to Friday"}

	require.NoError(t, f.record(t))

	st := f.ctl.Snapshot()
	assert.Equal(t, "move meeting to Friday", st.Input)
	assert.Equal(t, capture.Idle, st.Capture)
	assert.Equal(t, Done, st.CaptureRequest)

	entries := f.log.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, activity.Voice, entries[0].Kind)
	assert.Contains(t, entries[0].Text, "move meeting to Friday")

	assert.Empty(t, f.api.Prompts(), "nothing auto-submitted")
	assert.Equal(t, Idle, st.Prompt)
	assert.Equal(t, []string{"move meeting to Friday"}, f.view.of("input"))
	assert.Equal(t, []string{"recording/loading", "processing/loading", "idle/done"}, f.view.of("capture"))
}

func TestVoiceWithAgentReply(t *testing.T) {
	f := newFixture(t)
	f.ctl.SetInput("draft in progress")
	f.api.Transcription = &backend.Transcription{
		Text: "book a call with Sam at 3",
		Agent: &backend.AgentReply{
			Message: "Booked a call with Sam at 3pm.",
			Actions: []backend.Action{{Type: "create_event"}},
		},
	}

	require.NoError(t, f.record(t))

	entries := f.log.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, activity.Voice, entries[0].Kind)
	assert.Equal(t, "book a call with Sam at 3", entries[0].Text)
	assert.Equal(t, activity.Agent, entries[1].Kind)
	assert.Equal(t, "Booked a call with Sam at 3pm.", entries[1].Text)

	st := f.ctl.Snapshot()
	assert.Equal(t, "Booked a call with Sam at 3pm.", st.Response.Text)
	assert.Len(t, st.Response.Actions, 1)
	assert.False(t, st.Response.IsError())
	assert.Equal(t, "draft in progress", st.Input, "input untouched")
	assert.Equal(t, capture.Idle, st.Capture)

	reply, ok := f.ctl.LastReply()
	assert.True(t, ok)
	assert.Equal(t, "Booked a call with Sam at 3pm.", reply)
}

func TestVoiceRecognitionFailed(t *testing.T) {
	f := newFixture(t)
	f.api.TranscribeErr = fmt.Errorf("%w: %s", backend.ErrRecognitionFailed, "unintelligible audio")

	err := f.record(t)
	assert.ErrorIs(t, err, backend.ErrRecognitionFailed)

	st := f.ctl.Snapshot()
	assert.True(t, st.Response.IsError())
	assert.Contains(t, st.Response.Text, "unintelligible audio")
	assert.Zero(t, f.log.Len())
	assert.Equal(t, capture.Idle, st.Capture)
	assert.Equal(t, Error, st.CaptureRequest)
	assert.Empty(t, st.Input)
}

func TestVoiceTranscriptionFailedThenRetry(t *testing.T) {
	f := newFixture(t)
	f.api.TranscribeErr = fmt.Errorf("%w: connection refused", backend.ErrTranscriptionFailed)

	assert.ErrorIs(t, f.record(t), backend.ErrTranscriptionFailed)
	assert.Equal(t, capture.Idle, f.rec.Status())
	assert.Zero(t, f.actx.OpenDevices())
	assert.Len(t, f.api.Uploads(), 1)

	f.api.TranscribeErr = nil
	f.api.Transcription = &backend.Transcription{Text: "second try"}
	require.NoError(t, f.record(t))
	assert.Equal(t, "second try", f.ctl.Input())
	assert.Len(t, f.api.Uploads(), 2)
}

func TestPermissionDenied(t *testing.T) {
	f := newFixture(t)
	f.actx.StartErr = errors.New("operation not permitted")

	err := f.ctl.StartCapture(context.Background())
	require.ErrorIs(t, err, audio.ErrPermissionDenied)

	st := f.ctl.Snapshot()
	assert.Equal(t, capture.Idle, st.Capture)
	assert.Equal(t, Error, st.CaptureRequest)
	assert.Contains(t, st.Response.Text, "Permission denied")
	assert.Zero(t, f.actx.OpenDevices())

	f.actx.StartErr = nil
	require.NoError(t, f.ctl.StartCapture(context.Background()), "user may retry")
}

func TestStartWhileBusyIsRejected(t *testing.T) {
	f := newFixture(t)
	f.api.Gate = make(chan struct{})
	f.api.Transcription = &backend.Transcription{Text: "hi"}

	require.NoError(t, f.ctl.StartCapture(context.Background()))
	before := f.ctl.Snapshot()
	for range 3 {
		assert.ErrorIs(t, f.ctl.StartCapture(context.Background()), capture.ErrBusy)
	}
	assert.Equal(t, before, f.ctl.Snapshot())

	done := make(chan error, 1)
	go func() { done <- f.ctl.StopCapture(context.Background()) }()
	require.Eventually(t, func() bool { return f.rec.Status() == capture.Processing }, time.Second, time.Millisecond)

	processing := f.ctl.Snapshot()
	assert.ErrorIs(t, f.ctl.StartCapture(context.Background()), capture.ErrBusy)
	assert.ErrorIs(t, f.ctl.ToggleCapture(context.Background()), capture.ErrBusy)
	assert.Equal(t, processing, f.ctl.Snapshot())

	close(f.api.Gate)
	require.NoError(t, <-done)
	assert.Len(t, f.api.Uploads(), 1, "no duplicate upload")
}

func TestStopWhileIdle(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctl.StopCapture(context.Background()))
	assert.Empty(t, f.api.Uploads())
	assert.Empty(t, f.view.of("capture"))
	assert.Equal(t, Idle, f.ctl.Snapshot().CaptureRequest)
}

func TestToggleCapture(t *testing.T) {
	f := newFixture(t)
	f.api.Transcription = &backend.Transcription{Text: "toggled"}

	require.NoError(t, f.ctl.ToggleCapture(context.Background()))
	assert.Equal(t, capture.Recording, f.rec.Status())
	require.NoError(t, f.ctl.ToggleCapture(context.Background()))
	assert.Equal(t, capture.Idle, f.rec.Status())
	assert.Equal(t, "toggled", f.ctl.Input())
}

func TestSubmitEmptyPrompt(t *testing.T) {
	for _, input := range []string{"", "   "} {
		f := newFixture(t)
		f.ctl.SetInput(input)

		err := f.ctl.SubmitPrompt(context.Background())
		assert.ErrorIs(t, err, backend.ErrEmptyPrompt)
		assert.Empty(t, f.api.Prompts())
		assert.Zero(t, f.log.Len())
		assert.Equal(t, Idle, f.ctl.Snapshot().Prompt)
		assert.Empty(t, f.view.of("prompt"))
	}
}

func TestSubmitSuccess(t *testing.T) {
	f := newFixture(t)
	f.api.Reply = &backend.PromptReply{Message: "Lunch moved to 1pm."}
	f.ctl.SetInput("reschedule lunch")

	require.NoError(t, f.ctl.SubmitPrompt(context.Background()))

	st := f.ctl.Snapshot()
	assert.Empty(t, st.Input)
	assert.Equal(t, Done, st.Prompt)
	assert.Equal(t, "Lunch moved to 1pm.", st.Response.Text)

	entries := f.log.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, activity.Prompt, entries[0].Kind)
	assert.Equal(t, "reschedule lunch", entries[0].Text)
	assert.Equal(t, activity.Agent, entries[1].Kind)
	assert.Equal(t, []string{"loading", "done"}, f.view.of("prompt"))
	assert.Equal(t, []string{""}, f.view.of("input"))
}

func TestSubmitFailureKeepsInput(t *testing.T) {
	f := newFixture(t)
	f.api.SubmitErr = fmt.Errorf("%w: unexpected status 500", backend.ErrSubmissionFailed)
	f.ctl.SetInput("reschedule lunch")

	err := f.ctl.SubmitPrompt(context.Background())
	assert.ErrorIs(t, err, backend.ErrSubmissionFailed)

	st := f.ctl.Snapshot()
	assert.Equal(t, "reschedule lunch", st.Input)
	assert.Equal(t, Error, st.Prompt)
	assert.True(t, st.Response.IsError())
	assert.Contains(t, st.Response.Text, "Submission failed")
	assert.Zero(t, f.log.Len())
	assert.Empty(t, f.view.of("input"))
}

func TestSubmitKeepsInputEditedDuringFlight(t *testing.T) {
	f := newFixture(t)
	f.api.Gate = make(chan struct{})
	f.ctl.SetInput("first")

	done := make(chan error, 1)
	go func() { done <- f.ctl.SubmitPrompt(context.Background()) }()
	require.Eventually(t, func() bool { return f.ctl.Snapshot().Prompt == Loading }, time.Second, time.Millisecond)

	assert.ErrorIs(t, f.ctl.SubmitPrompt(context.Background()), ErrPromptBusy)
	f.ctl.SetInput("second")
	close(f.api.Gate)
	require.NoError(t, <-done)

	assert.Equal(t, "second", f.ctl.Input())
	assert.Equal(t, []string{"first"}, f.api.Prompts())
}

func TestCaptureAndPromptOverlap(t *testing.T) {
	f := newFixture(t)
	f.api.Transcription = &backend.Transcription{Text: "voice"}
	f.ctl.SetInput("typed")

	require.NoError(t, f.ctl.StartCapture(context.Background()))
	require.NoError(t, f.ctl.SubmitPrompt(context.Background()))
	assert.Equal(t, capture.Recording, f.rec.Status())

	require.NoError(t, f.ctl.StopCapture(context.Background()))
	assert.Equal(t, 3, f.log.Len())
	assert.Equal(t, "voice", f.ctl.Input())
}

func TestTooShortRecording(t *testing.T) {
	actx := audio.NewFakeContextPCM(make([]byte, 320), false)
	api := backend.NewFake("unused", nil)
	ctl := New(capture.New(actx), api, nil, nil)

	require.NoError(t, ctl.StartCapture(context.Background()))
	err := ctl.StopCapture(context.Background())
	assert.ErrorIs(t, err, capture.ErrTooShort)
	assert.Empty(t, api.Uploads())
	assert.Equal(t, capture.Idle, ctl.Snapshot().Capture)
	assert.Equal(t, "Recording too short, try again", ctl.Snapshot().Response.Text)
}

func TestDescribe(t *testing.T) {
	for _, tt := range []struct {
		err  error
		want string
	}{
		{nil, ""},
		{errors.New("boom"), "Error: boom"},
		{fmt.Errorf("%w: dial tcp", backend.ErrTranscriptionFailed), "Transcription failed: dial tcp"},
		{fmt.Errorf("%w: unintelligible audio", backend.ErrRecognitionFailed), "Recognition failed: unintelligible audio"},
		{fmt.Errorf("%w: empty reply", backend.ErrSubmissionFailed), "Submission failed: empty reply"},
		{backend.ErrSubmissionFailed, "Submission failed"},
		{capture.ErrTooShort, "Recording too short, try again"},
	} {
		assert.Equal(t, tt.want, Describe(tt.err))
	}
}

func TestTextOnlySuccessClearsEarlierError(t *testing.T) {
	f := newFixture(t)
	f.api.TranscribeErr = fmt.Errorf("%w: %s", backend.ErrRecognitionFailed, "unintelligible audio")
	require.Error(t, f.record(t))
	require.True(t, f.ctl.Snapshot().Response.IsError())

	f.api.TranscribeErr = nil
	f.api.Transcription = &backend.Transcription{Text: "move meeting to Friday"}
	require.NoError(t, f.record(t))

	st := f.ctl.Snapshot()
	assert.Equal(t, Done, st.CaptureRequest)
	assert.Equal(t, "move meeting to Friday", st.Input)
	assert.False(t, st.Response.IsError())
	assert.Empty(t, st.Response.Text)
	assert.Equal(t, []string{"Recognition failed: unintelligible audio", ""}, f.view.of("response"))
}

func TestTextOnlySuccessKeepsShownReply(t *testing.T) {
	f := newFixture(t)
	f.api.Reply = &backend.PromptReply{Message: "You are free at 3pm."}
	f.ctl.SetInput("when am I free")
	require.NoError(t, f.ctl.SubmitPrompt(context.Background()))

	f.api.Transcription = &backend.Transcription{Text: "book it"}
	require.NoError(t, f.record(t))

	st := f.ctl.Snapshot()
	assert.Equal(t, "You are free at 3pm.", st.Response.Text)
	assert.Equal(t, "book it", st.Input)
	assert.Len(t, f.view.of("response"), 1)
}

func TestHotkeyPressWhileProcessingIsRejected(t *testing.T) {
	f := newFixture(t)
	f.api.Gate = make(chan struct{})
	f.api.Transcription = &backend.Transcription{Text: "hi"}

	hk := hotkey.NewFake()
	stop := make(chan struct{})
	defer close(stop)
	results := make(chan error, 4)
	go hotkey.Listen(hk, stop, func() {
		results <- f.ctl.ToggleCapture(context.Background())
	})

	next := func() error {
		t.Helper()
		select {
		case err := <-results:
			return err
		case <-time.After(time.Second):
			t.Fatal("press was not handled")
			return nil
		}
	}

	hk.SimKeydown()
	require.NoError(t, next())
	require.Equal(t, capture.Recording, f.rec.Status())

	hk.SimKeydown()
	require.Eventually(t, func() bool { return f.rec.Status() == capture.Processing }, time.Second, time.Millisecond)

	hk.SimKeydown()
	assert.ErrorIs(t, next(), capture.ErrBusy)

	close(f.api.Gate)
	require.NoError(t, next())
	assert.Equal(t, capture.Idle, f.rec.Status())
	assert.Equal(t, Done, f.ctl.Snapshot().CaptureRequest)
	assert.Len(t, f.api.Uploads(), 1)
}

func TestViewsFanOut(t *testing.T) {
	a, b := &recordingView{}, &recordingView{}
	v := Views(a, b, NopView{})
	v.InputChanged("x")
	v.PromptChanged(Loading)
	assert.Equal(t, []string{"x"}, a.of("input"))
	assert.Equal(t, []string{"loading"}, b.of("prompt"))
}
