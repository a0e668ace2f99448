//go:build linux

package tray

func runLoop(start func()) {
	start()
}
