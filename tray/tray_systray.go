//go:build darwin || linux

package tray

import (
	"calvoice/capture"

	"fyne.io/systray"
)

var (
	mRecord  *systray.MenuItem
	mCopy    *systray.MenuItem
	mDevices *systray.MenuItem
	mQuit    *systray.MenuItem

	deviceItems []*systray.MenuItem
	ready       = make(chan struct{})
)

// Init starts the tray loop and returns a channel closed when the user
// picks Quit.
func Init() <-chan struct{} {
	start, _ := systray.RunWithExternalLoop(onReady, onExit)
	runLoop(start)
	return quitCh
}

func onReady() {
	systray.SetIcon(iconIdle)
	systray.SetTooltip(tooltipIdle)

	mRecord = systray.AddMenuItem("Start Recording", "Start or stop voice capture")
	mCopy = systray.AddMenuItem("Copy Last Response", "Copy the last assistant reply")
	mCopy.Disable()
	systray.AddSeparator()

	mDevices = systray.AddMenuItem("Microphone", "Select input device")
	deviceMu.Lock()
	for _, name := range deviceNames {
		deviceItems = append(deviceItems, mDevices.AddSubMenuItemCheckbox(name, name, name == deviceSel))
	}
	items := append([]*systray.MenuItem(nil), deviceItems...)
	deviceMu.Unlock()
	for _, item := range items {
		go watchDevice(item)
	}

	systray.AddSeparator()
	mQuit = systray.AddMenuItem("Quit", "Quit calvoice")

	close(ready)
	go loop()
}

func loop() {
	for {
		select {
		case <-mRecord.ClickedCh:
			go toggle()
		case <-mCopy.ClickedCh:
			copyLast()
		case <-mQuit.ClickedCh:
			Quit()
			return
		case <-quitCh:
			return
		}
	}
}

func watchDevice(item *systray.MenuItem) {
	for range item.ClickedCh {
		deviceMu.Lock()
		var name string
		for i, it := range deviceItems {
			if it == item {
				name = deviceNames[i]
				it.Check()
			} else {
				it.Uncheck()
			}
		}
		deviceMu.Unlock()
		if name != "" {
			selectDevice(name)
		}
	}
}

func onExit() {
	Quit()
}

func isReady() bool {
	select {
	case <-ready:
		return true
	default:
		return false
	}
}

func updateStatus(s capture.Status) {
	if !isReady() {
		return
	}
	systray.SetIcon(iconFor(s))
	switch s {
	case capture.Recording:
		mRecord.SetTitle("Stop Recording")
		mRecord.Enable()
		mDevices.Disable()
	case capture.Processing:
		mRecord.SetTitle("Processing…")
		mRecord.Disable()
		mDevices.Disable()
	default:
		mRecord.SetTitle("Start Recording")
		mRecord.Enable()
		mDevices.Enable()
	}
}

func updateTooltip(msg string) {
	if isReady() {
		systray.SetTooltip(msg)
	}
}

func updateCopyLast(text string) {
	if !isReady() {
		return
	}
	if text == "" {
		mCopy.SetTitle("Copy Last Response")
		mCopy.Disable()
		return
	}
	mCopy.SetTitle("Copy Last Response: " + text)
	mCopy.Enable()
}
