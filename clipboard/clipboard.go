package clipboard

import (
	"errors"
	"fmt"
	"strings"

	cb "github.com/atotto/clipboard"
)

var ErrNothingToCopy = errors.New("nothing to copy")

var (
	readAll  = cb.ReadAll
	writeAll = cb.WriteAll
)

// Available reports whether a clipboard backend (xclip, xsel, wl-copy or
// the OS API) was found.
func Available() bool {
	return !cb.Unsupported
}

func Read() (string, error) {
	return readAll()
}

// Copy puts text on the system clipboard, trimmed of surrounding space.
func Copy(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrNothingToCopy
	}
	if err := writeAll(text); err != nil {
		return fmt.Errorf("copying to clipboard: %w", err)
	}
	return nil
}
