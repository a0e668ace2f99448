//go:build !linux

package main

import (
	"runtime"

	"golang.design/x/hotkey/mainthread"
)

func init() {
	runtime.LockOSThread()
}

// Hotkey and tray APIs on macOS and Windows must be driven from the main
// thread, so run() executes on a goroutine while mainthread services calls.
func main() {
	mainthread.Init(run)
}
