// Package clipboard copies autofill secrets to the system clipboard and
// clears them again after a timeout.
package clipboard

import (
	"context"
	"fmt"
	"time"

	"github.com/atotto/clipboard"
)

// Overridden in tests; the real clipboard needs a display.
var (
	writeAll = clipboard.WriteAll
	readAll  = clipboard.ReadAll
)

// Copy writes text to the clipboard.
func Copy(text string) error {
	if err := writeAll(text); err != nil {
		return fmt.Errorf("failed to copy to clipboard: %w", err)
	}
	return nil
}

// CopyWithTimeout copies text and blocks until timeout elapses or ctx is
// done, then clears the clipboard if it still holds text.
func CopyWithTimeout(ctx context.Context, text string, timeout time.Duration) error {
	if err := Copy(text); err != nil {
		return err
	}
	if timeout <= 0 {
		return nil
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
	return ClearIf(text)
}

// ClearIf clears the clipboard only when it still contains text, so a
// value the user copied in the meantime survives.
func ClearIf(text string) error {
	current, err := readAll()
	if err != nil {
		return fmt.Errorf("failed to read clipboard: %w", err)
	}
	if current != text {
		return nil
	}
	return Clear()
}

// IsAvailable returns true if clipboard functionality is available
func IsAvailable() bool {
	if clipboard.Unsupported {
		return false
	}
	_, err := readAll()
	return err == nil
}

// Clear clears the clipboard
func Clear() error {
	return writeAll("")
}
