package desktop

import (
	"context"
	"errors"
	"testing"
)

func TestNearestPreset(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		want          string
	}{
		{"full hd", 1920, 1080, "16:9"},
		{"wuxga", 1920, 1200, "16:10"},
		{"xga", 1024, 768, "4:3"},
		{"surface", 3000, 2000, "3:2"},
		{"sxga", 1280, 1024, "5:4"},
		{"ultrawide", 3440, 1440, "16:9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NearestPreset(tt.width, tt.height, nil)
			if err != nil {
				t.Fatalf("NearestPreset() error = %v", err)
			}
			if got.Name != tt.want {
				t.Fatalf("NearestPreset(%d, %d) = %s, want %s", tt.width, tt.height, got.Name, tt.want)
			}
		})
	}
}

func TestNewGeometryRejectsEmptyResolution(t *testing.T) {
	if _, err := NewGeometry(1, 0, 0, 1080, nil); err == nil {
		t.Fatal("expected error for zero width")
	}
}

func TestNewGeometryNormalizesScale(t *testing.T) {
	g, err := NewGeometry(0, -5, 1920, 1080, nil)
	if err != nil {
		t.Fatalf("NewGeometry() error = %v", err)
	}
	if g.DPIScale != 1.0 {
		t.Fatalf("DPIScale = %v, want 1.0", g.DPIScale)
	}
	if g.TaskbarOffsetY != 0 {
		t.Fatalf("TaskbarOffsetY = %d, want 0", g.TaskbarOffsetY)
	}
	if g.LogicalWidth != 1366 || g.LogicalHeight != 768 {
		t.Fatalf("logical = %dx%d, want 1366x768", g.LogicalWidth, g.LogicalHeight)
	}
}

type stubProber struct {
	info    DisplayInfo
	infoErr error
	width   int
	height  int
	sizeErr error
}

func (p stubProber) DisplayInfo(context.Context) (DisplayInfo, error) {
	return p.info, p.infoErr
}

func (p stubProber) ScreenSize(context.Context) (int, int, error) {
	return p.width, p.height, p.sizeErr
}

func TestProbeGeometryUsesPlatformInfo(t *testing.T) {
	prober := stubProber{info: DisplayInfo{DPI: 120, Width: 2560, Height: 1600, WorkAreaTop: 32}}
	g, err := ProbeGeometry(context.Background(), prober, nil)
	if err != nil {
		t.Fatalf("ProbeGeometry() error = %v", err)
	}
	if g.DPIScale != 1.25 {
		t.Fatalf("DPIScale = %v, want 1.25", g.DPIScale)
	}
	if g.TaskbarOffsetY != 32 {
		t.Fatalf("TaskbarOffsetY = %d, want 32", g.TaskbarOffsetY)
	}
	if g.LogicalWidth != 1280 || g.LogicalHeight != 800 {
		t.Fatalf("logical = %dx%d, want 1280x800", g.LogicalWidth, g.LogicalHeight)
	}
}

func TestProbeGeometryFallsBack(t *testing.T) {
	prober := stubProber{
		infoErr: errors.New("no xrandr"),
		width:   1920,
		height:  1080,
	}
	g, err := ProbeGeometry(context.Background(), prober, nil)
	if err != nil {
		t.Fatalf("ProbeGeometry() error = %v", err)
	}
	if g.DPIScale != 1.0 || g.TaskbarOffsetY != 0 {
		t.Fatalf("fallback geometry = %+v, want dpi 1.0 and no offset", g)
	}
	if g.PhysicalWidth != 1920 || g.PhysicalHeight != 1080 {
		t.Fatalf("physical = %dx%d, want 1920x1080", g.PhysicalWidth, g.PhysicalHeight)
	}
}

func TestProbeGeometryFailsWhenNothingAnswers(t *testing.T) {
	prober := stubProber{
		infoErr: errors.New("no xrandr"),
		sizeErr: errors.New("no xdotool"),
	}
	if _, err := ProbeGeometry(context.Background(), prober, nil); err == nil {
		t.Fatal("expected error when both probes fail")
	}
}
