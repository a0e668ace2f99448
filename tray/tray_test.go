package tray

import (
	"bytes"
	"image/png"
	"testing"

	"calvoice/capture"
	"calvoice/controller"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIconsPerStatus(t *testing.T) {
	idle := iconFor(capture.Idle)
	rec := iconFor(capture.Recording)
	proc := iconFor(capture.Processing)

	assert.NotEqual(t, idle, rec)
	assert.NotEqual(t, rec, proc)
	for _, icon := range [][]byte{idle, rec, proc} {
		img, err := png.Decode(bytes.NewReader(icon))
		require.NoError(t, err)
		assert.Equal(t, 44, img.Bounds().Dx())
	}
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "Booked", preview("Booked", 40))
	assert.Equal(t, "Booke…", preview("Booked lunch", 6))
	assert.Equal(t, "日本…", preview("日本語のテキスト", 3))
}

func TestCallbacks(t *testing.T) {
	var toggled, copied int
	OnToggle(func() { toggled++ })
	OnCopyLast(func() { copied++ })
	t.Cleanup(func() {
		OnToggle(nil)
		OnCopyLast(nil)
	})

	toggle()
	toggle()
	copyLast()
	assert.Equal(t, 2, toggled)
	assert.Equal(t, 1, copied)
}

func TestSelectDevice(t *testing.T) {
	var picked string
	SetDevices([]string{"Built-in", "USB Mic"}, "Built-in", func(name string) { picked = name })
	selectDevice("USB Mic")
	assert.Equal(t, "USB Mic", picked)

	deviceMu.Lock()
	defer deviceMu.Unlock()
	assert.Equal(t, "USB Mic", deviceSel)
}

func TestViewTracksCaptureStatus(t *testing.T) {
	var v View
	v.CaptureChanged(capture.Recording, controller.Loading)
	assert.Equal(t, capture.Recording, Status())
	v.CaptureChanged(capture.Idle, controller.Done)
	assert.Equal(t, capture.Idle, Status())
}
