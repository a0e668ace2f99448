// Package backend talks to the calendar assistant service over HTTP: voice
// uploads for transcription, typed prompt submission, and the calendar and
// health endpoints used by diagnostics.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
)

const DefaultBaseURL = "http://localhost:5000"

const (
	pathSpeechToText  = "/speech-to-text"
	pathProcessPrompt = "/process-prompt"
	pathCalendars     = "/calendars"
	pathHealth        = "/health"

	audioField      = "audio"
	requestIDHeader = "X-Request-ID"
	maxDetailLen    = 300
)

// Audio is one recorded clip ready for upload.
type Audio struct {
	Data        []byte
	Filename    string
	ContentType string
}

// Action is a calendar operation the assistant decided on. The client only
// displays actions; the backend executes them.
type Action struct {
	Type        string         `json:"type"`
	CalendarID  string         `json:"calendar_id,omitempty"`
	EventID     string         `json:"event_id,omitempty"`
	Event       map[string]any `json:"event,omitempty"`
	Updates     map[string]any `json:"updates,omitempty"`
	QueryParams map[string]any `json:"query_params,omitempty"`
}

type AgentReply struct {
	Message string   `json:"message"`
	Actions []Action `json:"actions"`
}

type Transcription struct {
	Text      string
	Agent     *AgentReply // nil when the backend returned text only
	RequestID string
	Metrics   *NetworkMetrics
}

type PromptReply struct {
	Message   string
	Actions   []Action
	RequestID string
	Metrics   *NetworkMetrics
}

type Calendar struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
	Email    string `json:"email,omitempty"`
	Color    string `json:"color,omitempty"`
}

type Health struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type Option func(*Client)

// WithHTTPClient replaces the default pooled transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = NewTracedClient(hc) }
}

// WithTimeout bounds every request. Zero leaves requests unbounded.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

type Client struct {
	baseURL   string
	http      *TracedClient
	timeout   time.Duration
	userAgent string
}

func NewClient(baseURL string, opts ...Option) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:   baseURL,
		http:      NewTracedClient(nil),
		userAgent: "calvoice",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

// Warm pre-establishes a connection to the backend.
func (c *Client) Warm() time.Duration {
	return c.http.Warm(c.baseURL + pathHealth)
}

type speechResponse struct {
	Text           string      `json:"text"`
	Error          string      `json:"error"`
	PromptResponse *AgentReply `json:"prompt_response"`
}

// Transcribe uploads a clip and returns the recognized text together with
// the assistant's reply when the backend produced one. Each call performs
// exactly one upload.
func (c *Client) Transcribe(ctx context.Context, a Audio) (*Transcription, error) {
	if len(a.Data) == 0 {
		return nil, fmt.Errorf("%w: empty audio", ErrTranscriptionFailed)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, audioField, a.Filename))
	ct := a.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTranscriptionFailed, err)
	}
	if _, err := part.Write(a.Data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTranscriptionFailed, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTranscriptionFailed, err)
	}

	resp, id, err := c.do(ctx, http.MethodPost, pathSpeechToText, &body, mw.FormDataContentType())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTranscriptionFailed, err)
	}

	var sr speechResponse
	if err := json.Unmarshal(resp.Body, &sr); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", ErrTranscriptionFailed, err)
	}
	if sr.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrRecognitionFailed, sr.Error)
	}
	text := strings.TrimSpace(sr.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: no speech detected", ErrRecognitionFailed)
	}

	agent := sr.PromptResponse
	if agent != nil && strings.TrimSpace(agent.Message) == "" {
		agent = nil
	}

	return &Transcription{
		Text:      text,
		Agent:     agent,
		RequestID: id,
		Metrics:   resp.Metrics,
	}, nil
}

type promptRequest struct {
	Prompt string `json:"prompt"`
}

type promptResponse struct {
	Message string   `json:"message"`
	Actions []Action `json:"actions"`
	Error   string   `json:"error"`
}

// Submit sends a typed prompt to the assistant. Whitespace-only input is
// rejected with ErrEmptyPrompt before any network call.
func (c *Client) Submit(ctx context.Context, prompt string) (*PromptReply, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	payload, err := json.Marshal(promptRequest{Prompt: prompt})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}

	resp, id, err := c.do(ctx, http.MethodPost, pathProcessPrompt, bytes.NewReader(payload), "application/json")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}

	var pr promptResponse
	if err := json.Unmarshal(resp.Body, &pr); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", ErrSubmissionFailed, err)
	}
	if pr.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrSubmissionFailed, pr.Error)
	}
	if pr.Message == "" {
		return nil, fmt.Errorf("%w: empty reply", ErrSubmissionFailed)
	}

	return &PromptReply{
		Message:   pr.Message,
		Actions:   pr.Actions,
		RequestID: id,
		Metrics:   resp.Metrics,
	}, nil
}

// Calendars lists the calendars connected to the backend.
func (c *Client) Calendars(ctx context.Context) ([]Calendar, error) {
	resp, _, err := c.do(ctx, http.MethodGet, pathCalendars, nil, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	var cals []Calendar
	if err := json.Unmarshal(resp.Body, &cals); err != nil {
		return nil, fmt.Errorf("%w: decoding calendars: %w", ErrRequestFailed, err)
	}
	return cals, nil
}

func (c *Client) Health(ctx context.Context) (*Health, error) {
	resp, _, err := c.do(ctx, http.MethodGet, pathHealth, nil, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	var h Health
	if err := json.Unmarshal(resp.Body, &h); err != nil {
		return nil, fmt.Errorf("%w: decoding health: %w", ErrRequestFailed, err)
	}
	return &h, nil
}

// do sends one request tagged with a fresh request ID. Non-2xx responses
// come back as *StatusError.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*TracedResponse, string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	id := uuid.NewString()
	req.Header.Set(requestIDHeader, id)
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, id, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, id, &StatusError{
			StatusCode: resp.StatusCode,
			URL:        url,
			Detail:     errorDetail(resp.Body),
		}
	}
	return resp, id, nil
}

// errorDetail extracts a readable message from an error body. FastAPI
// reports {"detail": "..."}; anything else is returned trimmed.
func errorDetail(body []byte) string {
	var payload struct {
		Detail any    `json:"detail"`
		Error  string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if s, ok := payload.Detail.(string); ok && s != "" {
			return s
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	detail := strings.TrimSpace(string(body))
	if len(detail) > maxDetailLen {
		detail = detail[:maxDetailLen] + "..."
	}
	return detail
}
