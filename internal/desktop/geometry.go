// Package desktop holds the screen model used by the computer tool: display
// geometry, coordinate translation between the model's logical space and
// device pixels, icon snapping and screenshot encoding.
package desktop

import (
	"fmt"
	"math"
)

// Preset is a candidate logical resolution offered to the model.
type Preset struct {
	Name   string
	Width  int
	Height int
}

// Ratio returns width divided by height.
func (p Preset) Ratio() float64 {
	return float64(p.Width) / float64(p.Height)
}

// DefaultPresets is the fixed aspect-ratio table used to pick the logical
// resolution. Ties resolve to the earlier entry.
var DefaultPresets = []Preset{
	{Name: "16:10", Width: 1280, Height: 800},
	{Name: "16:9", Width: 1366, Height: 768},
	{Name: "4:3", Width: 1280, Height: 960},
	{Name: "3:2", Width: 1350, Height: 900},
	{Name: "5:4", Width: 1280, Height: 1024},
}

// Geometry describes the physical display and the logical resolution the
// model works in. It is computed once and treated as immutable.
type Geometry struct {
	DPIScale       float64 `json:"dpi_scale"`
	TaskbarOffsetY int     `json:"taskbar_offset_y"`
	PhysicalWidth  int     `json:"physical_width"`
	PhysicalHeight int     `json:"physical_height"`
	LogicalWidth   int     `json:"logical_width"`
	LogicalHeight  int     `json:"logical_height"`
}

// NewGeometry builds a Geometry for the given physical display, choosing the
// logical size from presets (DefaultPresets when empty). A non-positive DPI
// scale is treated as 1.0.
func NewGeometry(dpiScale float64, taskbarOffsetY, physicalWidth, physicalHeight int, presets []Preset) (Geometry, error) {
	if physicalWidth <= 0 || physicalHeight <= 0 {
		return Geometry{}, fmt.Errorf("invalid physical resolution %dx%d", physicalWidth, physicalHeight)
	}
	if dpiScale <= 0 || math.IsNaN(dpiScale) || math.IsInf(dpiScale, 0) {
		dpiScale = 1.0
	}
	if taskbarOffsetY < 0 {
		taskbarOffsetY = 0
	}
	preset, err := NearestPreset(physicalWidth, physicalHeight, presets)
	if err != nil {
		return Geometry{}, err
	}
	return Geometry{
		DPIScale:       dpiScale,
		TaskbarOffsetY: taskbarOffsetY,
		PhysicalWidth:  physicalWidth,
		PhysicalHeight: physicalHeight,
		LogicalWidth:   preset.Width,
		LogicalHeight:  preset.Height,
	}, nil
}

// NearestPreset returns the preset whose aspect ratio is closest to
// width/height.
func NearestPreset(width, height int, presets []Preset) (Preset, error) {
	if len(presets) == 0 {
		presets = DefaultPresets
	}
	if width <= 0 || height <= 0 {
		return Preset{}, fmt.Errorf("invalid resolution %dx%d", width, height)
	}
	ratio := float64(width) / float64(height)
	best := -1
	bestDiff := math.Inf(1)
	for i, p := range presets {
		if p.Width <= 0 || p.Height <= 0 {
			continue
		}
		diff := math.Abs(p.Ratio() - ratio)
		if diff < bestDiff {
			best = i
			bestDiff = diff
		}
	}
	if best < 0 {
		return Preset{}, fmt.Errorf("no usable resolution preset")
	}
	return presets[best], nil
}

// ScaleX is the physical pixels per logical pixel on the x axis.
func (g Geometry) ScaleX() float64 {
	return float64(g.PhysicalWidth) / float64(g.LogicalWidth)
}

// ScaleY is the physical pixels per logical pixel on the y axis.
func (g Geometry) ScaleY() float64 {
	return float64(g.PhysicalHeight) / float64(g.LogicalHeight)
}

func (g Geometry) String() string {
	return fmt.Sprintf("physical=%dx%d logical=%dx%d dpi=%.2f taskbar=%d",
		g.PhysicalWidth, g.PhysicalHeight, g.LogicalWidth, g.LogicalHeight, g.DPIScale, g.TaskbarOffsetY)
}
