// Package doctor runs interactive diagnostics against the local machine and
// the calendar backend.
package doctor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"calvoice/audio"
	"calvoice/backend"
	"calvoice/capture"
	"calvoice/clipboard"
	"calvoice/hotkey"
)

const defaultRecordFor = 3 * time.Second

type Options struct {
	Backend *backend.Client
	Audio   audio.Context
	Device  string
	Format  string
	// Hotkey is checked only when set.
	Hotkey *hotkey.Combo
	// RecordFor is how long the microphone check records.
	RecordFor time.Duration
	// Confirm asks the user to verify the transcription on In.
	Confirm bool
	In      io.Reader
	Out     io.Writer
}

type doctor struct {
	Options
	in *bufio.Reader
}

type check struct {
	name string
	run  func(context.Context) bool
}

// Run executes the checks in order and returns an exit code (0=all pass,
// 1=any fail). A failed check skips the ones after it.
func Run(ctx context.Context, opts Options) int {
	if opts.RecordFor <= 0 {
		opts.RecordFor = defaultRecordFor
	}
	d := &doctor{Options: opts}
	if opts.In != nil {
		d.in = bufio.NewReader(opts.In)
	}

	fmt.Fprintln(d.Out, "calvoice doctor - system diagnostics")
	fmt.Fprintln(d.Out, "====================================")

	checks := []check{
		{"Backend", d.checkBackend},
		{"Calendars", d.checkCalendars},
	}
	if d.Hotkey != nil {
		checks = append(checks, check{"Hotkey detection", d.checkHotkey})
	}
	checks = append(checks,
		check{"Microphone and transcription", d.checkMicAndTranscription},
		check{"Clipboard", d.checkClipboard},
	)

	allPass := true
	for i, c := range checks {
		fmt.Fprintf(d.Out, "\n[%d/%d] %s\n", i+1, len(checks), c.name)
		if ctx.Err() != nil || !c.run(ctx) {
			allPass = false
			break
		}
	}

	fmt.Fprintln(d.Out)
	if allPass {
		fmt.Fprintln(d.Out, "All checks passed!")
		return 0
	}
	fmt.Fprintln(d.Out, "Some checks failed. See details above.")
	return 1
}

func (d *doctor) pass(format string, args ...any) bool {
	fmt.Fprintf(d.Out, "  PASS: "+format+"\n", args...)
	return true
}

func (d *doctor) fail(format string, args ...any) bool {
	fmt.Fprintf(d.Out, "  FAIL: "+format+"\n", args...)
	return false
}

func (d *doctor) checkBackend(ctx context.Context) bool {
	h, err := d.Backend.Health(ctx)
	if err != nil {
		return d.fail("%s unreachable: %v", d.Backend.BaseURL(), err)
	}
	if h.Status != "" && h.Status != "healthy" && h.Status != "ok" {
		return d.fail("%s reports status %q", d.Backend.BaseURL(), h.Status)
	}
	return d.pass("%s is up", d.Backend.BaseURL())
}

func (d *doctor) checkCalendars(ctx context.Context) bool {
	cals, err := d.Backend.Calendars(ctx)
	if err != nil {
		return d.fail("listing calendars: %v", err)
	}
	if len(cals) == 0 {
		fmt.Fprintln(d.Out, "  Warning: no calendars connected, the assistant cannot schedule anything")
	}
	for _, c := range cals {
		fmt.Fprintf(d.Out, "    - %s (%s)\n", c.Name, c.Provider)
	}
	return d.pass("%d calendar(s) connected", len(cals))
}

func (d *doctor) checkHotkey(ctx context.Context) bool {
	info, err := hotkey.Diagnose(*d.Hotkey)
	if err != nil {
		return d.fail("%v", err)
	}
	fmt.Fprintf(d.Out, "  %s\n", info)
	fmt.Fprintf(d.Out, "Press %s...\n", d.Hotkey)

	hk := hotkey.New(*d.Hotkey)
	if err := hk.Register(); err != nil {
		return d.fail("could not register hotkey: %v", err)
	}
	defer hk.Unregister()

	select {
	case <-hk.Keydown():
		// wait for release so the press does not leak into the next step
		select {
		case <-hk.Keyup():
		case <-time.After(5 * time.Second):
		}
		return d.pass("hotkey detected")
	case <-time.After(10 * time.Second):
		return d.fail("timeout waiting for hotkey")
	case <-ctx.Done():
		return d.fail("interrupted")
	}
}

func (d *doctor) checkMicAndTranscription(ctx context.Context) bool {
	dev, err := audio.FindDevice(d.Audio, d.Device)
	if err != nil {
		return d.fail("%v", err)
	}
	name := "system default"
	if dev != nil {
		name = dev.Name
	}
	fmt.Fprintf(d.Out, "Using device: %s\n", name)

	if d.Confirm {
		fmt.Fprintf(d.Out, "Press Enter and speak for %s...", d.RecordFor)
		d.readLine()
	}

	rec := capture.New(d.Audio, capture.WithDevice(dev), capture.WithFormat(d.Format))
	if err := rec.Start(ctx); err != nil {
		return d.fail("recording error: %v", err)
	}
	fmt.Fprint(d.Out, "  Recording")
	ticker := time.NewTicker(500 * time.Millisecond)
	deadline := time.After(d.RecordFor)
wait:
	for {
		select {
		case <-ticker.C:
			fmt.Fprint(d.Out, ".")
		case <-deadline:
			break wait
		case <-ctx.Done():
			break wait
		}
	}
	ticker.Stop()
	fmt.Fprintln(d.Out, " done")

	art, err := rec.Stop(ctx)
	if err != nil {
		return d.fail("recording error: %v", err)
	}
	defer rec.Finish()

	fmt.Fprintf(d.Out, "  Recorded %.1fs, %.1f KB %s, transcribing...\n",
		art.Duration.Seconds(), float64(len(art.Data))/1024, art.Format)

	tr, err := d.Backend.Transcribe(ctx, backend.Audio{
		Data:        art.Data,
		Filename:    art.Filename,
		ContentType: art.ContentType,
	})
	if err != nil {
		return d.fail("transcription error: %v", err)
	}

	text := strings.TrimSpace(tr.Text)
	if text == "" {
		text = "(no speech detected)"
	}
	fmt.Fprintf(d.Out, "\n  Transcribed text: %s\n", text)
	if tr.Agent != nil {
		fmt.Fprintf(d.Out, "  Assistant replied: %s\n", tr.Agent.Message)
	}
	fmt.Fprintln(d.Out)

	if !d.Confirm {
		return d.pass("transcription round trip")
	}
	fmt.Fprint(d.Out, "Is this correct? [y/n]: ")
	switch strings.ToLower(d.readLine()) {
	case "y", "yes":
		return d.pass("transcription verified by user")
	}
	return d.fail("transcription not confirmed")
}

func (d *doctor) checkClipboard(context.Context) bool {
	if !clipboard.Available() {
		fmt.Fprintln(d.Out, "  Warning: no clipboard utility found (install xclip, xsel or wl-clipboard)")
		return d.pass("skipped")
	}

	saved, _ := clipboard.Read()
	defer func() {
		if saved != "" {
			clipboard.Copy(saved)
		}
	}()

	const sentinel = "calvoice-doctor-check"
	if err := clipboard.Copy(sentinel); err != nil {
		return d.fail("%v", err)
	}
	got, err := clipboard.Read()
	if err != nil {
		return d.fail("could not read clipboard: %v", err)
	}
	if got != sentinel {
		return d.fail("clipboard read back %q, want %q", got, sentinel)
	}
	return d.pass("copy and read back")
}

func (d *doctor) readLine() string {
	if d.in == nil {
		return ""
	}
	line, _ := d.in.ReadString('\n')
	return strings.TrimSpace(line)
}
