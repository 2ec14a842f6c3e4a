package desktop

import (
	"context"
	"image"
)

// MouseButton identifies a pointer button.
type MouseButton string

const (
	ButtonLeft   MouseButton = "left"
	ButtonRight  MouseButton = "right"
	ButtonMiddle MouseButton = "middle"
)

// Device is the input/output surface of the controlled desktop. All
// coordinates are physical screen pixels.
type Device interface {
	Frame

	MoveMouse(ctx context.Context, x, y int) error
	// DragTo holds the left button from the current pointer position to x, y.
	DragTo(ctx context.Context, x, y int) error
	Click(ctx context.Context, button MouseButton, clicks int) error
	// Scroll scrolls by amount wheel units; positive is up.
	Scroll(ctx context.Context, amount int) error
	PressKey(ctx context.Context, key string) error
	Hotkey(ctx context.Context, keys ...string) error
	CursorPosition(ctx context.Context) (image.Point, error)
}
