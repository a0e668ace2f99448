package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"calvoice/activity"
	"calvoice/audio"
	"calvoice/backend"
	"calvoice/beep"
	"calvoice/capture"
	"calvoice/clipboard"
	"calvoice/config"
	"calvoice/controller"
	"calvoice/doctor"
	"calvoice/hotkey"
	"calvoice/log"
	"calvoice/tray"
	"calvoice/visualizer"

	"github.com/spf13/pflag"
)

var version = "dev"

const bgEnv = "_CALVOICE_BG"

type options struct {
	configPath string
	backendURL string
	format     string
	device     string
	logPath    string
	testWAV    string
	setup      bool
	tui        bool
	doctor     bool
	version    bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := pflag.NewFlagSet("calvoice", pflag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "", "config file (default: $XDG_CONFIG_HOME/calvoice/config.toml)")
	fs.StringVar(&o.backendURL, "backend", "", "calendar assistant backend URL")
	fs.StringVar(&o.format, "format", "", "recording format: flac or wav")
	fs.StringVar(&o.device, "device", "", "use named microphone device")
	fs.BoolVar(&o.setup, "setup", false, "select microphone device interactively and save it")
	fs.BoolVar(&o.tui, "tui", true, "run with terminal UI (false: tray only, in the background)")
	fs.StringVar(&o.logPath, "logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	fs.BoolVar(&o.doctor, "doctor", false, "run system diagnostics and exit")
	fs.StringVar(&o.testWAV, "test", "", "test mode: replay `wav` as the microphone, driven by stdin commands")
	fs.BoolVar(&o.version, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	return o, nil
}

// loadConfig reads the config file and applies flag overrides on top.
func loadConfig(o options) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.backendURL != "" {
		cfg.BackendURL = o.backendURL
	}
	if o.format != "" {
		cfg.Format = o.format
	}
	if o.device != "" {
		cfg.Device = o.device
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newClient(cfg *config.Config) *backend.Client {
	return backend.NewClient(cfg.BackendURL,
		backend.WithTimeout(time.Duration(cfg.RequestTimeout)),
		backend.WithUserAgent("calvoice/"+version),
	)
}

func initCrashLog() {
	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(crashFile, debug.CrashOptions{})
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func deviceLineText(dev *audio.DeviceInfo) string {
	name := "system default"
	suffix := ""
	if dev != nil {
		name = dev.Name
		if audio.IsBluetooth(dev.Name) {
			suffix = " (bluetooth: lower quality)"
		}
	}
	return "mic: " + name + suffix
}

func run() {
	opts, err := parseFlags(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fatalf("%v", err)
	}
	if opts.version {
		fmt.Printf("calvoice %s\n", version)
		os.Exit(0)
	}

	// Resolve log directory early
	logPath, err := log.ResolveDir(opts.logPath)
	if err != nil {
		fatalf("failed to resolve log directory: %v", err)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}
	initCrashLog()

	cfg, err := loadConfig(opts)
	if err != nil {
		fatalf("%v", err)
	}
	combo, _ := hotkey.Parse(cfg.Hotkey) // validated by config
	client := newClient(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.doctor {
		actx, err := audio.NewContext()
		if err != nil {
			fatalf("cannot connect to audio: %v", err)
		}
		code := doctor.Run(ctx, doctor.Options{
			Backend: client,
			Audio:   actx,
			Device:  cfg.Device,
			Format:  cfg.Format,
			Hotkey:  &combo,
			Confirm: true,
			In:      os.Stdin,
			Out:     os.Stdout,
		})
		actx.Close()
		os.Exit(code)
	}

	if !cfg.Beep {
		beep.Disable()
	}

	if opts.testWAV != "" {
		os.Exit(runTestMode(ctx, opts.testWAV, cfg, client))
	}

	if opts.setup {
		actx, err := audio.NewContext()
		if err != nil {
			fatalf("initializing audio: %v", err)
		}
		dev, err := audio.SelectDevice(actx)
		actx.Close()
		if err != nil {
			fatalf("device selection: %v", err)
		}
		if dev != nil {
			cfg.Device = dev.Name
			if err := config.Save(opts.configPath, cfg); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: could not save config: %v\n", err)
			}
		}
	}

	// Tray-only mode: re-exec in background and return the shell prompt
	if !opts.tui && os.Getenv(bgEnv) == "" {
		args := os.Args[1:]
		if cfg.Device != "" {
			args = append(args, "--device", cfg.Device)
		}
		exe, _ := os.Executable()
		cmd := exec.Command(exe, args...)
		cmd.Env = append(os.Environ(), bgEnv+"=1")
		devnull, _ := os.Open(os.DevNull)
		cmd.Stdin, cmd.Stdout, cmd.Stderr = devnull, devnull, devnull
		if err := cmd.Start(); err != nil {
			fatalf("%v", err)
		}
		os.Exit(0)
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	log.SessionStart(cfg.BackendURL, cfg.Format, cfg.Device)

	actx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		fatalf("initializing audio context: %v", err)
	}
	defer actx.Close()

	dev, err := audio.FindDevice(actx, cfg.Device)
	if err != nil {
		log.Warnf("device lookup failed, using default: %v", err)
		fmt.Fprintf(os.Stderr, "Warning: %v, using the system default\n", err)
	}

	feed := visualizer.New(func(f visualizer.Frame) { tuiSend(frameMsg(f)) },
		visualizer.WithBars(cfg.VisualizerBars),
		visualizer.WithInterval(cfg.FrameInterval()),
	)
	rec := capture.New(actx,
		capture.WithDevice(dev),
		capture.WithFormat(cfg.Format),
		capture.WithMeter(feed),
	)

	views := []controller.View{logView{}, &beep.View{}}
	if cfg.Tray {
		views = append(views, tray.View{})
	}
	if opts.tui {
		views = append(views, tuiView{})
	}
	ctl := controller.New(rec, meteredBackend{client},
		activity.New(activity.WithMax(cfg.MaxActivity)),
		controller.Views(views...),
	)

	toggle := func() {
		if err := ctl.ToggleCapture(ctx); err != nil && !errors.Is(err, capture.ErrBusy) {
			log.Errorf("toggle capture: %v", err)
		}
	}
	copyLast := func() {
		if text, ok := ctl.LastReply(); ok {
			if err := clipboard.Copy(text); err != nil {
				log.Warnf("copy last reply: %v", err)
			}
		}
	}

	var trayQuit <-chan struct{}
	if cfg.Tray {
		tray.OnToggle(toggle)
		tray.OnCopyLast(copyLast)
		if devices, err := actx.Devices(); err == nil && len(devices) > 0 {
			names := make([]string, len(devices))
			for i := range devices {
				names[i] = devices[i].Name
			}
			tray.SetDevices(names, cfg.Device, func(name string) {
				switchDevice(actx, rec, name)
			})
		}
		trayQuit = tray.Init()
	}

	go beep.Init()
	go func() {
		log.Infof("backend_warm: %s", client.Warm())
	}()

	hk := hotkey.New(combo)
	hkStop := make(chan struct{})
	if err := hk.Register(); err != nil {
		log.Errorf("hotkey register error: %v", err)
		if !opts.tui {
			fmt.Fprintf(os.Stderr, "Warning: hotkey %s unavailable: %v\n", combo, err)
		}
	} else {
		go hotkey.Listen(hk, hkStop, toggle)
	}

	shutdown := func() {
		close(hkStop)
		hk.Unregister()
		rec.Cancel()
		feed.Stop()
		log.SessionEnd(ctl.Activity().Len())
		log.Close()
		tray.Quit()
	}

	if !opts.tui {
		select {
		case <-ctx.Done():
		case <-trayQuit:
		}
		shutdown()
		return
	}

	model := newTUIModel(ctx, ctl, client, rec.Elapsed, combo.String())
	tuiMu.Lock()
	tuiProgram = NewTUIProgram(model)
	p := tuiProgram
	tuiMu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-trayQuit:
		}
		p.Quit()
	}()
	go tuiSend(DeviceLineMsg{Text: deviceLineText(dev)})

	if _, err := p.Run(); err != nil {
		log.Errorf("TUI error: %v", err)
	}
	tuiMu.Lock()
	tuiProgram = nil
	tuiMu.Unlock()
	shutdown()
}

func switchDevice(actx audio.Context, rec *capture.Recorder, name string) {
	dev, err := audio.FindDevice(actx, name)
	if err != nil {
		log.Warnf("device switch: %v", err)
		return
	}
	if err := rec.SetDevice(dev); err != nil {
		log.Warnf("device switch to %s: %v", name, err)
		tray.SetError("finish the recording before switching microphones")
		return
	}
	log.Info("device_switch: " + name)
	tuiSend(DeviceLineMsg{Text: deviceLineText(dev)})
}
