package desktop

import (
	"context"
	"fmt"
)

// DisplayInfo is what the platform reports about the primary display.
type DisplayInfo struct {
	// DPI is the display resolution in dots per inch (96 is unscaled).
	DPI float64
	// Width and Height are the physical monitor size in pixels.
	Width  int
	Height int
	// WorkAreaTop is the top edge of the usable work area, i.e. the height
	// of a top-docked taskbar or panel.
	WorkAreaTop int
}

// Prober queries the platform for display information.
type Prober interface {
	// DisplayInfo returns the full platform view of the primary display.
	DisplayInfo(ctx context.Context) (DisplayInfo, error)
	// ScreenSize is the generic fallback probe for the screen resolution.
	ScreenSize(ctx context.Context) (width, height int, err error)
}

// BaseDPI is the DPI that corresponds to a scale of 1.0.
const BaseDPI = 96.0

// ProbeGeometry queries prober once and builds a Geometry. If the platform
// query fails it falls back to a DPI scale of 1.0, no taskbar offset and the
// generic screen-size probe. An error is returned only when no resolution
// can be determined at all.
func ProbeGeometry(ctx context.Context, prober Prober, presets []Preset) (Geometry, error) {
	if prober == nil {
		return Geometry{}, fmt.Errorf("display prober is required")
	}
	info, err := prober.DisplayInfo(ctx)
	if err == nil && info.Width > 0 && info.Height > 0 {
		scale := 1.0
		if info.DPI > 0 {
			scale = info.DPI / BaseDPI
		}
		return NewGeometry(scale, info.WorkAreaTop, info.Width, info.Height, presets)
	}

	width, height, sizeErr := prober.ScreenSize(ctx)
	if sizeErr != nil {
		if err == nil {
			err = fmt.Errorf("display reported %dx%d", info.Width, info.Height)
		}
		return Geometry{}, fmt.Errorf("probe display: %v; fallback screen size: %w", err, sizeErr)
	}
	return NewGeometry(1.0, 0, width, height, presets)
}
