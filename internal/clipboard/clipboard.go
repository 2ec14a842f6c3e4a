// Package clipboard swaps text through the system clipboard so long strings
// can be pasted instead of typed key by key.
package clipboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/atotto/clipboard"
)

// ErrUnsupported is returned when no clipboard utility is available.
var ErrUnsupported = errors.New("clipboard unsupported on this system")

// Clipboard reads and writes plain text.
type Clipboard interface {
	ReadAll() (string, error)
	WriteAll(text string) error
}

// System is the host clipboard (xclip, xsel or wl-clipboard on Linux).
type System struct{}

// ReadAll returns the clipboard contents.
func (System) ReadAll() (string, error) {
	if clipboard.Unsupported {
		return "", ErrUnsupported
	}
	return clipboard.ReadAll()
}

// WriteAll replaces the clipboard contents.
func (System) WriteAll(text string) error {
	if clipboard.Unsupported {
		return ErrUnsupported
	}
	return clipboard.WriteAll(text)
}

// Memory is an in-process clipboard.
type Memory struct {
	Text string
}

func (m *Memory) ReadAll() (string, error) { return m.Text, nil }

func (m *Memory) WriteAll(text string) error {
	m.Text = text
	return nil
}

// WithContents places text on the clipboard, runs paste, and then restores
// the previous contents. A clipboard that cannot be read counts as empty and
// is left holding text afterwards.
//
// The restore runs even when paste fails; the paste error wins over a
// restore error.
func WithContents(ctx context.Context, cb Clipboard, text string, paste func(context.Context) error) (err error) {
	previous, readErr := cb.ReadAll()
	if werr := cb.WriteAll(text); werr != nil {
		return fmt.Errorf("write clipboard: %w", werr)
	}
	if readErr == nil {
		defer func() {
			if rerr := cb.WriteAll(previous); rerr != nil && err == nil {
				err = fmt.Errorf("restore clipboard: %w", rerr)
			}
		}()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return paste(ctx)
}
