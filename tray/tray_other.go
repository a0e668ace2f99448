//go:build !darwin && !linux

package tray

import "calvoice/capture"

func Init() <-chan struct{}       { return quitCh }
func updateStatus(capture.Status) {}
func updateTooltip(string)        {}
func updateCopyLast(string)       {}
