package tray

import (
	"sync"
	"time"

	"calvoice/activity"
	"calvoice/capture"
	"calvoice/controller"
)

const (
	tooltipIdle  = "calvoice – ready"
	errorDisplay = 10 * time.Second
)

var (
	quitCh    = make(chan struct{})
	closeOnce sync.Once

	mu         sync.Mutex
	toggleFn   func()
	copyLastFn func()
	status     capture.Status

	deviceMu    sync.Mutex
	deviceNames []string
	deviceSel   string
	deviceCb    func(string)
)

func OnToggle(fn func()) {
	mu.Lock()
	toggleFn = fn
	mu.Unlock()
}

func OnCopyLast(fn func()) {
	mu.Lock()
	copyLastFn = fn
	mu.Unlock()
}

func SetDevices(names []string, selected string, onSwitch func(name string)) {
	deviceMu.Lock()
	deviceNames = names
	deviceSel = selected
	if onSwitch != nil {
		deviceCb = onSwitch
	}
	deviceMu.Unlock()
}

func SetStatus(s capture.Status) {
	mu.Lock()
	status = s
	mu.Unlock()
	updateStatus(s)
}

func Status() capture.Status {
	mu.Lock()
	defer mu.Unlock()
	return status
}

// SetError shows msg in the tooltip for a while.
func SetError(msg string) {
	updateTooltip("calvoice – " + msg)
	go func() {
		time.Sleep(errorDisplay)
		updateTooltip(tooltipIdle)
	}()
}

func SetLastReply(text string) {
	updateCopyLast(preview(text, 40))
}

func Quit() {
	closeOnce.Do(func() { close(quitCh) })
}

func toggle() {
	mu.Lock()
	fn := toggleFn
	mu.Unlock()
	if fn != nil {
		fn()
	}
}

func copyLast() {
	mu.Lock()
	fn := copyLastFn
	mu.Unlock()
	if fn != nil {
		fn()
	}
}

func selectDevice(name string) {
	deviceMu.Lock()
	deviceSel = name
	cb := deviceCb
	deviceMu.Unlock()
	if cb != nil {
		cb(name)
	}
}

func preview(text string, n int) string {
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n-1]) + "…"
}

// View mirrors controller state into the tray icon and menu.
type View struct {
	controller.NopView
}

func (View) CaptureChanged(s capture.Status, _ controller.RequestStatus) {
	SetStatus(s)
}

func (View) ResponseChanged(r controller.Response) {
	if r.IsError() {
		SetError(r.Text)
	}
}

func (View) ActivityAdded(e activity.Entry) {
	if e.Kind == activity.Agent {
		SetLastReply(e.Text)
	}
}
