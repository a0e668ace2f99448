//go:build !linux && !darwin && !windows

package hotkey

import (
	"errors"
	"runtime"
)

var errUnsupported = errors.New("global hotkeys are not supported on " + runtime.GOOS)

type noHotkey struct{}

func New(Combo) Hotkey { return noHotkey{} }

func (noHotkey) Register() error          { return errUnsupported }
func (noHotkey) Unregister()              {}
func (noHotkey) Keydown() <-chan struct{} { return nil }
func (noHotkey) Keyup() <-chan struct{}   { return nil }

func Diagnose(Combo) (string, error) { return "", errUnsupported }
