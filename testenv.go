package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"calvoice/activity"
	"calvoice/audio"
	"calvoice/backend"
	"calvoice/beep"
	"calvoice/capture"
	"calvoice/config"
	"calvoice/controller"
	"calvoice/log"
)

// runTestMode drives the controller from stdin with wavPath standing in for
// the microphone. Commands:
//
//	START          begin recording
//	STOP           stop and upload (runs in the background)
//	SUBMIT <text>  send a typed prompt (runs in the background)
//	WAIT           block until background requests finish
//	QUIT           wait, then exit
func runTestMode(ctx context.Context, wavPath string, cfg *config.Config, client *backend.Client) int {
	beep.Disable()

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()
	log.SessionStart(cfg.BackendURL, cfg.Format, "test")

	fakeCtx, err := audio.NewFakeContext(wavPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading WAV: %v\n", err)
		return 1
	}

	rec := capture.New(fakeCtx, capture.WithFormat(cfg.Format))
	ctl := controller.New(rec, meteredBackend{client},
		activity.New(activity.WithMax(cfg.MaxActivity)),
		logView{},
	)

	n := driveTestMode(ctx, os.Stdin, os.Stdout, ctl)
	log.SessionEnd(n)
	return 0
}

// driveTestMode executes commands from r until QUIT or EOF and returns the
// number of activity entries recorded.
func driveTestMode(ctx context.Context, r io.Reader, w io.Writer, ctl *controller.Controller) int {
	var pending sync.WaitGroup
	var outMu sync.Mutex
	printf := func(format string, args ...any) {
		outMu.Lock()
		defer outMu.Unlock()
		fmt.Fprintf(w, format, args...)
	}
	report := func(op string, err error) {
		if err != nil && !errors.Is(err, capture.ErrBusy) {
			printf("%s: %s\n", op, controller.Describe(err))
		}
	}

	scanner := bufio.NewScanner(r)
loop:
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		cmd, arg, _ := strings.Cut(line, " ")
		switch cmd {
		case "START":
			report("START", ctl.StartCapture(ctx))
		case "STOP":
			pending.Add(1)
			go func() {
				defer pending.Done()
				report("STOP", ctl.StopCapture(ctx))
			}()
		case "SUBMIT":
			ctl.SetInput(arg)
			pending.Add(1)
			go func() {
				defer pending.Done()
				report("SUBMIT", ctl.SubmitPrompt(ctx))
			}()
		case "WAIT":
			pending.Wait()
		case "QUIT":
			break loop
		case "":
		default:
			printf("unknown command %q\n", cmd)
		}
	}
	pending.Wait()

	for _, e := range ctl.Activity().Entries() {
		fmt.Fprintf(w, "%s\t%s\n", e.Kind, e.Text)
	}
	return ctl.Activity().Len()
}
