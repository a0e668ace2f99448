package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"calvoice/encoder"
	"calvoice/hotkey"

	"github.com/BurntSushi/toml"
)

const (
	DefaultBackendURL     = "http://localhost:5000"
	DefaultHotkey         = "ctrl+shift+space"
	DefaultVisualizerBars = 16
	DefaultVisualizerFPS  = 20
)

// Duration is a time.Duration written as "30s" in the config file.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

type Config struct {
	BackendURL string `toml:"backend_url"`
	Format     string `toml:"format"`
	// Device is the capture device name; empty selects the system default.
	Device string `toml:"device"`
	Hotkey string `toml:"hotkey"`
	Beep   bool   `toml:"beep"`
	Tray   bool   `toml:"tray"`

	// RequestTimeout bounds each backend request. Zero leaves requests to
	// the HTTP client defaults.
	RequestTimeout Duration `toml:"request_timeout"`
	// MaxActivity caps retained activity entries. Zero keeps all of them.
	MaxActivity int `toml:"max_activity"`

	VisualizerBars int `toml:"visualizer_bars"`
	VisualizerFPS  int `toml:"visualizer_fps"`
}

func Default() *Config {
	return &Config{
		BackendURL:     DefaultBackendURL,
		Format:         encoder.FormatFLAC,
		Hotkey:         DefaultHotkey,
		Beep:           true,
		Tray:           true,
		VisualizerBars: DefaultVisualizerBars,
		VisualizerFPS:  DefaultVisualizerFPS,
	}
}

// Normalize trims values and fills zero fields with defaults so partially
// written files behave like complete ones.
func (c *Config) Normalize() {
	c.BackendURL = strings.TrimRight(strings.TrimSpace(c.BackendURL), "/")
	if c.BackendURL == "" {
		c.BackendURL = DefaultBackendURL
	}
	c.Format = strings.ToLower(strings.TrimSpace(c.Format))
	if c.Format == "" {
		c.Format = encoder.FormatFLAC
	}
	c.Device = strings.TrimSpace(c.Device)
	c.Hotkey = strings.ToLower(strings.TrimSpace(c.Hotkey))
	if c.Hotkey == "" {
		c.Hotkey = DefaultHotkey
	}
	if c.VisualizerBars <= 0 {
		c.VisualizerBars = DefaultVisualizerBars
	}
	if c.VisualizerFPS <= 0 {
		c.VisualizerFPS = DefaultVisualizerFPS
	}
}

func (c *Config) Validate() error {
	var errs []error
	if u, err := url.Parse(c.BackendURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("backend_url %q: want an http(s) URL", c.BackendURL))
	}
	if !slices.Contains(encoder.Formats, c.Format) {
		errs = append(errs, fmt.Errorf("format %q: want one of %s", c.Format, strings.Join(encoder.Formats, ", ")))
	}
	if _, err := hotkey.Parse(c.Hotkey); err != nil {
		errs = append(errs, err)
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("request_timeout must not be negative"))
	}
	if c.MaxActivity < 0 {
		errs = append(errs, fmt.Errorf("max_activity must not be negative"))
	}
	if c.VisualizerBars > 64 {
		errs = append(errs, fmt.Errorf("visualizer_bars %d: at most 64", c.VisualizerBars))
	}
	if c.VisualizerFPS > 60 {
		errs = append(errs, fmt.Errorf("visualizer_fps %d: at most 60", c.VisualizerFPS))
	}
	return errors.Join(errs...)
}

// FrameInterval converts visualizer_fps into a ticker interval.
func (c *Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(max(c.VisualizerFPS, 1))
}

// DefaultPath returns $XDG_CONFIG_HOME/calvoice/config.toml, falling back
// to ~/.config.
func DefaultPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "calvoice", "config.toml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "calvoice", "config.toml")
	}
	return ""
}

// Load reads path (DefaultPath when empty) over the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	cfg := Default()

	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading %s: %w", path, err)
		default:
			if undecoded := md.Undecoded(); len(undecoded) > 0 {
				return nil, fmt.Errorf("reading %s: unknown key %q", path, undecoded[0].String())
			}
		}
	}

	applyEnvOverrides(cfg)
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CALVOICE_BACKEND_URL"); v != "" {
		cfg.BackendURL = v
	}
	if v := os.Getenv("CALVOICE_FORMAT"); v != "" {
		cfg.Format = v
	}
	if v := os.Getenv("CALVOICE_DEVICE"); v != "" {
		cfg.Device = v
	}
}

// Save writes cfg atomically with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		path = DefaultPath()
	}
	if path == "" {
		return errors.New("config path is empty")
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".calvoice-config-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := toml.NewEncoder(tmp).Encode(cfg); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
