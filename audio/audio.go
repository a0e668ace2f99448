package audio

import (
	"errors"
	"fmt"
	"strings"
)

const WAVHeaderSize = 44

// ErrPermissionDenied is returned when the user or OS refuses microphone access.
var ErrPermissionDenied = errors.New("microphone permission denied")

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"bluetooth", " bt ", " bt)", " bt]",
}

func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

var permissionHints = []string{
	"permission", "access denied", "not authorized", "not permitted",
	"operation not allowed", "eacces",
}

// classifyStartErr wraps backend start errors that look like an access
// refusal so callers can match them with errors.Is(err, ErrPermissionDenied).
func classifyStartErr(err error) error {
	if err == nil || errors.Is(err, ErrPermissionDenied) {
		return err
	}
	lower := strings.ToLower(err.Error())
	for _, h := range permissionHints {
		if strings.Contains(lower, h) {
			return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
	}
	return err
}

type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

// CaptureDevice holds the input device between Start and Close. Close must
// be safe to call after a failed Start.
type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}
