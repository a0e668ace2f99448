// Package controller coordinates a voice or typed request from gesture to
// rendered answer. It owns all presentation state; views only receive
// change notifications and never read shared globals.
//
// Capture and prompt submission are independent concerns: each has its own
// RequestStatus, they may be in flight at the same time, and neither can be
// loading twice.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"calvoice/activity"
	"calvoice/audio"
	"calvoice/backend"
	"calvoice/capture"
)

type RequestStatus int

const (
	Idle RequestStatus = iota
	Loading
	Done
	Error
)

func (s RequestStatus) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Done:
		return "done"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("request(%d)", int(s))
	}
}

var ErrPromptBusy = errors.New("prompt submission already in progress")

type Recorder interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (*capture.Artifact, error)
	Finish()
	Status() capture.Status
}

type Backend interface {
	Transcribe(ctx context.Context, a backend.Audio) (*backend.Transcription, error)
	Submit(ctx context.Context, prompt string) (*backend.PromptReply, error)
}

// View is notified after every state change. Calls may arrive from
// different goroutines.
type View interface {
	CaptureChanged(status capture.Status, req RequestStatus)
	PromptChanged(req RequestStatus)
	InputChanged(text string)
	ResponseChanged(r Response)
	ActivityAdded(e activity.Entry)
}

// Response is what the response region shows: an agent message or an error.
type Response struct {
	Text    string
	Actions []backend.Action
	Err     error
}

func (r Response) IsError() bool { return r.Err != nil }

type State struct {
	Capture        capture.Status
	CaptureRequest RequestStatus
	Prompt         RequestStatus
	Input          string
	Response       Response
}

type Controller struct {
	rec  Recorder
	api  Backend
	log  *activity.Log
	view View

	mu         sync.Mutex
	captureReq RequestStatus
	promptReq  RequestStatus
	input      string
	inputRev   uint64
	response   Response
}

func New(rec Recorder, api Backend, log *activity.Log, view View) *Controller {
	if log == nil {
		log = activity.New()
	}
	if view == nil {
		view = NopView{}
	}
	return &Controller{rec: rec, api: api, log: log, view: view}
}

func (c *Controller) Activity() *activity.Log { return c.log }

func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Capture:        c.rec.Status(),
		CaptureRequest: c.captureReq,
		Prompt:         c.promptReq,
		Input:          c.input,
		Response:       c.response,
	}
}

// SetInput records user edits to the prompt field. Views are not notified
// since the edit originated there.
func (c *Controller) SetInput(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if text != c.input {
		c.input = text
		c.inputRev++
	}
}

func (c *Controller) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

// LastReply returns the most recent agent message.
func (c *Controller) LastReply() (string, bool) {
	e, ok := c.log.Last(activity.Agent)
	return e.Text, ok
}

func (c *Controller) ToggleCapture(ctx context.Context) error {
	if c.rec.Status() == capture.Recording {
		return c.StopCapture(ctx)
	}
	return c.StartCapture(ctx)
}

// StartCapture begins a recording session. While a session is recording or
// its upload is in flight it returns capture.ErrBusy and changes nothing.
func (c *Controller) StartCapture(ctx context.Context) error {
	c.mu.Lock()
	if c.captureReq == Loading {
		c.mu.Unlock()
		return capture.ErrBusy
	}
	prev := c.captureReq
	c.captureReq = Loading
	c.mu.Unlock()

	if err := c.rec.Start(ctx); err != nil {
		if errors.Is(err, capture.ErrBusy) {
			c.mu.Lock()
			c.captureReq = prev
			c.mu.Unlock()
			return err
		}
		c.failCapture(err)
		return err
	}
	c.view.CaptureChanged(capture.Recording, Loading)
	return nil
}

// StopCapture ends the recording, uploads it and renders the result. It is
// a no-op unless a session is recording.
func (c *Controller) StopCapture(ctx context.Context) error {
	art, err := c.rec.Stop(ctx)
	if err != nil {
		c.failCapture(err)
		return err
	}
	if art == nil {
		return nil
	}
	c.view.CaptureChanged(capture.Processing, Loading)

	tr, err := c.api.Transcribe(ctx, backend.Audio{
		Data:        art.Data,
		Filename:    art.Filename,
		ContentType: art.ContentType,
	})
	c.rec.Finish()
	if err != nil {
		c.failCapture(err)
		return err
	}

	pending := []activity.Entry{{Kind: activity.Voice, Text: tr.Text}}
	if tr.Agent != nil {
		pending = append(pending, activity.Entry{Kind: activity.Agent, Text: tr.Agent.Message})
	}
	entries := c.log.AppendAll(pending...)

	c.mu.Lock()
	c.captureReq = Done
	// A text-only result replaces a stale error but keeps a shown reply.
	respChanged := tr.Agent != nil || c.response.IsError()
	if tr.Agent != nil {
		c.response = Response{Text: tr.Agent.Message, Actions: tr.Agent.Actions}
	} else {
		c.input = tr.Text
		c.inputRev++
		if c.response.IsError() {
			c.response = Response{}
		}
	}
	r := c.response
	c.mu.Unlock()

	for _, e := range entries {
		c.view.ActivityAdded(e)
	}
	if tr.Agent == nil {
		c.view.InputChanged(tr.Text)
	}
	if respChanged {
		c.view.ResponseChanged(r)
	}
	c.view.CaptureChanged(c.rec.Status(), Done)
	return nil
}

func (c *Controller) failCapture(err error) {
	r := Response{Text: Describe(err), Err: err}
	c.mu.Lock()
	c.captureReq = Error
	c.response = r
	c.mu.Unlock()

	c.view.ResponseChanged(r)
	c.view.CaptureChanged(c.rec.Status(), Error)
}

// SubmitPrompt sends the current input. Empty input is rejected with
// backend.ErrEmptyPrompt and leaves every status untouched. The input is
// cleared only after a successful reply, and only if it was not edited in
// the meantime.
func (c *Controller) SubmitPrompt(ctx context.Context) error {
	c.mu.Lock()
	text := c.input
	if strings.TrimSpace(text) == "" {
		c.mu.Unlock()
		return backend.ErrEmptyPrompt
	}
	if c.promptReq == Loading {
		c.mu.Unlock()
		return ErrPromptBusy
	}
	c.promptReq = Loading
	rev := c.inputRev
	c.mu.Unlock()
	c.view.PromptChanged(Loading)

	reply, err := c.api.Submit(ctx, text)
	if err != nil {
		r := Response{Text: Describe(err), Err: err}
		c.mu.Lock()
		c.promptReq = Error
		c.response = r
		c.mu.Unlock()

		c.view.ResponseChanged(r)
		c.view.PromptChanged(Error)
		return err
	}

	entries := c.log.AppendAll(
		activity.Entry{Kind: activity.Prompt, Text: text},
		activity.Entry{Kind: activity.Agent, Text: reply.Message},
	)
	r := Response{Text: reply.Message, Actions: reply.Actions}

	c.mu.Lock()
	c.promptReq = Done
	c.response = r
	cleared := c.inputRev == rev
	if cleared {
		c.input = ""
		c.inputRev++
	}
	c.mu.Unlock()

	for _, e := range entries {
		c.view.ActivityAdded(e)
	}
	if cleared {
		c.view.InputChanged("")
	}
	c.view.ResponseChanged(r)
	c.view.PromptChanged(Done)
	return nil
}

// Describe renders an error for the response region, prefixed with its
// category.
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, audio.ErrPermissionDenied):
		return "Permission denied: allow microphone access and try again"
	case errors.Is(err, capture.ErrTooShort):
		return "Recording too short, try again"
	case errors.Is(err, backend.ErrRecognitionFailed):
		return "Recognition failed" + detail(err, backend.ErrRecognitionFailed)
	case errors.Is(err, backend.ErrTranscriptionFailed):
		return "Transcription failed" + detail(err, backend.ErrTranscriptionFailed)
	case errors.Is(err, backend.ErrSubmissionFailed):
		return "Submission failed" + detail(err, backend.ErrSubmissionFailed)
	default:
		return "Error: " + err.Error()
	}
}

// detail returns ": <text>" for the part of err after the category
// sentinel's own message, or "" when there is nothing more.
func detail(err, sentinel error) string {
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, sentinel.Error()); ok {
		msg = strings.TrimPrefix(rest, ": ")
	}
	if msg == "" {
		return ""
	}
	return ": " + msg
}
