package backend

import (
	"context"
	"strings"
	"sync"
)

// Fake is an in-memory stand-in for Client. Responses are canned; every
// call is recorded. When Gate is non-nil, calls block until it is closed
// or the context ends.
type Fake struct {
	Transcription *Transcription
	TranscribeErr error
	Reply         *PromptReply
	SubmitErr     error
	Gate          chan struct{}

	mu      sync.Mutex
	uploads []Audio
	prompts []string
}

// NewFake answers uploads with text and no agent reply, and prompts with
// an echo of the prompt.
func NewFake(text string, err error) *Fake {
	return &Fake{
		Transcription: &Transcription{Text: text},
		TranscribeErr: err,
	}
}

func (f *Fake) wait(ctx context.Context) error {
	if f.Gate == nil {
		return nil
	}
	select {
	case <-f.Gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Fake) Transcribe(ctx context.Context, a Audio) (*Transcription, error) {
	f.mu.Lock()
	f.uploads = append(f.uploads, a)
	f.mu.Unlock()

	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.TranscribeErr != nil {
		return nil, f.TranscribeErr
	}
	t := *f.Transcription
	return &t, nil
}

func (f *Fake) Submit(ctx context.Context, prompt string) (*PromptReply, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.SubmitErr != nil {
		return nil, f.SubmitErr
	}
	if f.Reply != nil {
		r := *f.Reply
		return &r, nil
	}
	return &PromptReply{Message: "ok: " + prompt}, nil
}

func (f *Fake) Uploads() []Audio {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Audio(nil), f.uploads...)
}

func (f *Fake) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}
