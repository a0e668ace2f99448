//go:build darwin

package tray

import "golang.design/x/hotkey/mainthread"

// runLoop starts the Cocoa status item, which must happen on the main thread.
func runLoop(start func()) {
	done := make(chan struct{})
	mainthread.Call(func() {
		start()
		close(done)
	})
	<-done
}
