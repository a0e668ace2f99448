package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	diagnosticsName = "diagnostics_log.txt"
	activityName    = "activity_log.txt"
)

var (
	diagLog      zerolog.Logger
	diagFile     *os.File
	activityFile *os.File
	logMu        sync.Mutex
	logReady     bool
	pid          int
	dir          string
)

// Upload describes one finished backend request.
type Upload struct {
	Endpoint   string // "speech-to-text" or "process-prompt"
	RequestID  string
	AudioS     float64
	SizeKB     float64
	Format     string
	DNSMs      float64
	TLSMs      float64
	TTFBMs     float64
	TotalMs    float64
	ConnReused bool
	TLSProto   string
	Err        error
}

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: --logpath flag
	if flagPath != "" {
		return absDir(flagPath)
	}

	// Priority 2: CALVOICE_LOG_PATH environment variable
	if envPath := os.Getenv("CALVOICE_LOG_PATH"); envPath != "" {
		return absDir(envPath)
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func absDir(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error

	diagFile, err = os.OpenFile(filepath.Join(dir, diagnosticsName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	activityFile, err = os.OpenFile(filepath.Join(dir, activityName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if activityFile != nil {
		activityFile.Close()
		activityFile = nil
	}
	logReady = false
}

func ready() bool {
	logMu.Lock()
	defer logMu.Unlock()
	return logReady
}

func Info(msg string) {
	if ready() {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if ready() {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if ready() {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if ready() {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if ready() {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if ready() {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func UploadMetrics(u Upload) {
	if !ready() {
		return
	}

	connStatus := "new"
	if u.ConnReused {
		connStatus = "reused"
	}

	ev := diagLog.Info()
	if u.Err != nil {
		ev = diagLog.Error().Err(u.Err)
	}
	ev = ev.Str("endpoint", u.Endpoint).
		Str("conn", connStatus)
	if u.RequestID != "" {
		ev = ev.Str("request_id", u.RequestID)
	}
	if u.TLSProto != "" {
		ev = ev.Str("tls_proto", u.TLSProto)
	}
	if u.Format != "" {
		ev = ev.Str("format", u.Format).
			Float64("audio_s", u.AudioS).
			Float64("size_kb", u.SizeKB)
	}
	ev.Float64("dns_ms", u.DNSMs).
		Float64("tls_ms", u.TLSMs).
		Float64("ttfb_ms", u.TTFBMs).
		Float64("total_ms", u.TotalMs).
		Msg("upload")
}

// Activity appends one tab-separated line to the activity transcript.
func Activity(kind, text string) {
	logMu.Lock()
	defer logMu.Unlock()
	if !logReady {
		return
	}
	text = strings.ReplaceAll(text, "\n", " ")
	line := fmt.Sprintf("%s\t[%d]\t%s\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, kind, text)
	activityFile.WriteString(line)
}

func SessionStart(backendURL, format, device string) {
	if !ready() {
		return
	}
	if device == "" {
		device = "default"
	}
	diagLog.Info().
		Str("backend", backendURL).
		Str("format", format).
		Str("device", device).
		Msg("session_start")
}

func SessionEnd(count int) {
	if !ready() {
		return
	}
	diagLog.Info().
		Int("count", count).
		Msg("session_end")
}
