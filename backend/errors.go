package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrTranscriptionFailed covers transport failures, non-2xx responses and
	// undecodable bodies from the speech-to-text endpoint.
	ErrTranscriptionFailed = errors.New("transcription failed")
	// ErrRecognitionFailed means the backend answered but could not turn the
	// audio into text. The wrapping error carries the backend's message.
	ErrRecognitionFailed = errors.New("speech not recognized")
	ErrSubmissionFailed  = errors.New("prompt submission failed")
	ErrEmptyPrompt       = errors.New("prompt is empty")
	ErrRequestFailed     = errors.New("backend request failed")
)

// StatusError captures a non-2xx backend response.
type StatusError struct {
	StatusCode int
	URL        string
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Detail)
}

func (e *StatusError) HTTPStatusCode() int {
	return e.StatusCode
}
