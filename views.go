package main

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"calvoice/activity"
	"calvoice/backend"
	"calvoice/capture"
	"calvoice/controller"
	"calvoice/log"
)

// logView writes every activity entry to the activity transcript and every
// failure to the diagnostics log.
type logView struct {
	controller.NopView
}

func (logView) CaptureChanged(s capture.Status, req controller.RequestStatus) {
	log.Info("capture_" + s.String() + "_" + req.String())
}

func (logView) ActivityAdded(e activity.Entry) {
	log.Activity(string(e.Kind), e.Text)
}

func (logView) ResponseChanged(r controller.Response) {
	if r.IsError() {
		log.Errorf("request failed: %v", r.Err)
	}
}

// meteredBackend logs network timings of every backend call.
type meteredBackend struct {
	*backend.Client
}

func (b meteredBackend) Transcribe(ctx context.Context, a backend.Audio) (*backend.Transcription, error) {
	tr, err := b.Client.Transcribe(ctx, a)
	u := log.Upload{
		Endpoint: "speech-to-text",
		SizeKB:   float64(len(a.Data)) / 1024,
		Format:   strings.TrimPrefix(filepath.Ext(a.Filename), "."),
		Err:      err,
	}
	if tr != nil {
		u.RequestID = tr.RequestID
		fillTimings(&u, tr.Metrics)
	}
	log.UploadMetrics(u)
	return tr, err
}

func (b meteredBackend) Submit(ctx context.Context, prompt string) (*backend.PromptReply, error) {
	reply, err := b.Client.Submit(ctx, prompt)
	u := log.Upload{Endpoint: "process-prompt", Err: err}
	if reply != nil {
		u.RequestID = reply.RequestID
		fillTimings(&u, reply.Metrics)
	}
	log.UploadMetrics(u)
	return reply, err
}

func fillTimings(u *log.Upload, m *backend.NetworkMetrics) {
	if m == nil {
		return
	}
	u.DNSMs = ms(m.DNS)
	u.TLSMs = ms(m.TLS)
	u.TTFBMs = ms(m.TTFB)
	u.TotalMs = ms(m.Total)
	u.ConnReused = m.ConnReused
	u.TLSProto = m.TLSProtocol
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
