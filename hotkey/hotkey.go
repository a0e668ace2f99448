package hotkey

import (
	"errors"
	"fmt"
	"strings"
)

type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}

// Combo is a modifier chord plus one key, e.g. "ctrl+shift+space".
type Combo struct {
	Ctrl, Shift, Alt, Super bool
	Key                     string
}

var ErrNoModifier = errors.New("hotkey needs at least one modifier")

var keyNames = func() map[string]bool {
	m := map[string]bool{"space": true}
	for c := 'a'; c <= 'z'; c++ {
		m[string(c)] = true
	}
	for c := '0'; c <= '9'; c++ {
		m[string(c)] = true
	}
	for i := 1; i <= 12; i++ {
		m[fmt.Sprintf("f%d", i)] = true
	}
	return m
}()

func Parse(s string) (Combo, error) {
	var c Combo
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "+")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if i == len(parts)-1 {
			if !keyNames[p] {
				return Combo{}, fmt.Errorf("hotkey %q: unsupported key %q", s, p)
			}
			c.Key = p
			break
		}
		switch p {
		case "ctrl", "control":
			c.Ctrl = true
		case "shift":
			c.Shift = true
		case "alt", "option", "opt":
			c.Alt = true
		case "super", "cmd", "command", "win", "meta":
			c.Super = true
		default:
			return Combo{}, fmt.Errorf("hotkey %q: unknown modifier %q", s, p)
		}
	}
	if !c.Ctrl && !c.Shift && !c.Alt && !c.Super {
		return Combo{}, fmt.Errorf("hotkey %q: %w", s, ErrNoModifier)
	}
	return c, nil
}

func (c Combo) String() string {
	var parts []string
	if c.Ctrl {
		parts = append(parts, "ctrl")
	}
	if c.Shift {
		parts = append(parts, "shift")
	}
	if c.Alt {
		parts = append(parts, "alt")
	}
	if c.Super {
		parts = append(parts, "super")
	}
	return strings.Join(append(parts, c.Key), "+")
}

// Listen calls onPress on its own goroutine for every keydown until stop is
// closed. A press is never queued behind a slow handler.
func Listen(hk Hotkey, stop <-chan struct{}, onPress func()) {
	for {
		select {
		case <-stop:
			return
		case <-hk.Keydown():
			go onPress()
		case <-hk.Keyup():
		}
	}
}
