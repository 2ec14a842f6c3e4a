package desktop

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Runner executes an external command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("%s failed: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return output, nil
}

// ErrMissingTool is returned when a required helper binary is not installed.
var ErrMissingTool = errors.New("required desktop tool not installed")

// WheelDelta is the number of scroll units in one wheel notch.
const WheelDelta = 120

// X11 drives an X11 desktop through xdotool and captures it with scrot or
// ImageMagick import.
type X11 struct {
	run      Runner
	lookPath func(string) (string, error)
	tempDir  string
}

// NewX11 returns an X11 device. A nil runner uses ExecRunner.
func NewX11(run Runner) *X11 {
	if run == nil {
		run = ExecRunner
	}
	return &X11{run: run, lookPath: exec.LookPath, tempDir: os.TempDir()}
}

// keyAliases maps common key names to X keysyms.
var keyAliases = map[string]string{
	"enter":     "Return",
	"return":    "Return",
	"esc":       "Escape",
	"escape":    "Escape",
	"tab":       "Tab",
	"space":     "space",
	"backspace": "BackSpace",
	"delete":    "Delete",
	"del":       "Delete",
	"up":        "Up",
	"down":      "Down",
	"left":      "Left",
	"right":     "Right",
	"home":      "Home",
	"end":       "End",
	"pageup":    "Prior",
	"pagedown":  "Next",
	"ctrl":      "ctrl",
	"control":   "ctrl",
	"alt":       "alt",
	"shift":     "shift",
	"win":       "super",
	"super":     "super",
	"cmd":       "super",
	"command":   "super",
	"+":         "plus",
}

// Keysym normalizes a key name for xdotool.
func Keysym(key string) string {
	key = strings.TrimSpace(key)
	if alias, ok := keyAliases[strings.ToLower(key)]; ok {
		return alias
	}
	lower := strings.ToLower(key)
	if len(lower) >= 2 && lower[0] == 'f' {
		if _, err := strconv.Atoi(lower[1:]); err == nil {
			return "F" + lower[1:]
		}
	}
	return key
}

func (d *X11) xdotool(ctx context.Context, args ...string) ([]byte, error) {
	return d.run(ctx, "xdotool", args...)
}

func (d *X11) MoveMouse(ctx context.Context, x, y int) error {
	_, err := d.xdotool(ctx, "mousemove", strconv.Itoa(x), strconv.Itoa(y))
	return err
}

func (d *X11) DragTo(ctx context.Context, x, y int) error {
	_, err := d.xdotool(ctx, "mousedown", "1", "mousemove", strconv.Itoa(x), strconv.Itoa(y), "mouseup", "1")
	return err
}

func (d *X11) Click(ctx context.Context, button MouseButton, clicks int) error {
	btn := "1"
	switch button {
	case ButtonRight:
		btn = "3"
	case ButtonMiddle:
		btn = "2"
	}
	if clicks < 1 {
		clicks = 1
	}
	_, err := d.xdotool(ctx, "click", "--repeat", strconv.Itoa(clicks), btn)
	return err
}

// Scroll converts wheel units to notches of WheelDelta, at least one.
func (d *X11) Scroll(ctx context.Context, amount int) error {
	if amount == 0 {
		return nil
	}
	btn := "4"
	if amount < 0 {
		btn = "5"
		amount = -amount
	}
	notches := max(1, amount/WheelDelta)
	_, err := d.xdotool(ctx, "click", "--repeat", strconv.Itoa(notches), btn)
	return err
}

func (d *X11) PressKey(ctx context.Context, key string) error {
	_, err := d.xdotool(ctx, "key", Keysym(key))
	return err
}

func (d *X11) Hotkey(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return errors.New("hotkey requires at least one key")
	}
	syms := make([]string, len(keys))
	for i, k := range keys {
		syms[i] = Keysym(k)
	}
	_, err := d.xdotool(ctx, "key", strings.Join(syms, "+"))
	return err
}

func (d *X11) CursorPosition(ctx context.Context) (image.Point, error) {
	output, err := d.xdotool(ctx, "getmouselocation", "--shell")
	if err != nil {
		return image.Point{}, err
	}
	values := parseShellVars(string(output))
	x, okX := values["x"]
	y, okY := values["y"]
	if !okX || !okY {
		return image.Point{}, fmt.Errorf("unexpected getmouselocation output: %q", strings.TrimSpace(string(output)))
	}
	return image.Pt(x, y), nil
}

// Capture grabs the root window as a PNG through scrot or ImageMagick.
func (d *X11) Capture(ctx context.Context) (image.Image, error) {
	path := filepath.Join(d.tempDir, fmt.Sprintf("deskpilot_screen_%s.png", uuid.NewString()[:8]))
	defer os.Remove(path)

	switch {
	case d.available("scrot"):
		if _, err := d.run(ctx, "scrot", path); err != nil {
			return nil, err
		}
	case d.available("import"):
		if _, err := d.run(ctx, "import", "-window", "root", path); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: screenshot requires scrot or imagemagick", ErrMissingTool)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read screenshot: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	return img, nil
}

func (d *X11) available(name string) bool {
	_, err := d.lookPath(name)
	return err == nil
}

// X11Prober reads display information with xrandr, xrdb and xprop.
type X11Prober struct {
	run Runner
}

// NewX11Prober returns a prober. A nil runner uses ExecRunner.
func NewX11Prober(run Runner) *X11Prober {
	if run == nil {
		run = ExecRunner
	}
	return &X11Prober{run: run}
}

// DisplayInfo reports the current screen size, Xft.dpi (96 when unset) and
// the top of _NET_WORKAREA.
func (p *X11Prober) DisplayInfo(ctx context.Context) (DisplayInfo, error) {
	out, err := p.run(ctx, "xrandr", "--current")
	if err != nil {
		return DisplayInfo{}, err
	}
	width, height, err := parseXrandrCurrent(string(out))
	if err != nil {
		return DisplayInfo{}, err
	}

	info := DisplayInfo{DPI: BaseDPI, Width: width, Height: height}
	if out, err := p.run(ctx, "xrdb", "-query"); err == nil {
		if dpi, ok := parseXftDPI(string(out)); ok {
			info.DPI = dpi
		}
	}

	out, err = p.run(ctx, "xprop", "-root", "_NET_WORKAREA")
	if err != nil {
		return DisplayInfo{}, err
	}
	top, err := parseWorkAreaTop(string(out))
	if err != nil {
		return DisplayInfo{}, err
	}
	info.WorkAreaTop = top
	return info, nil
}

// ScreenSize asks xdotool for the display geometry.
func (p *X11Prober) ScreenSize(ctx context.Context) (int, int, error) {
	out, err := p.run(ctx, "xdotool", "getdisplaygeometry")
	if err != nil {
		return 0, 0, err
	}
	fields := strings.Fields(string(out))
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("unexpected getdisplaygeometry output: %q", strings.TrimSpace(string(out)))
	}
	w, errW := strconv.Atoi(fields[0])
	h, errH := strconv.Atoi(fields[1])
	if errW != nil || errH != nil {
		return 0, 0, fmt.Errorf("unexpected getdisplaygeometry output: %q", strings.TrimSpace(string(out)))
	}
	return w, h, nil
}

func parseShellVars(output string) map[string]int {
	values := make(map[string]int)
	for _, line := range strings.Split(output, "\n") {
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		if val, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil {
			values[strings.ToLower(strings.TrimSpace(parts[0]))] = val
		}
	}
	return values
}

// parseXrandrCurrent extracts "current W x H" from the xrandr screen line.
func parseXrandrCurrent(output string) (int, int, error) {
	for _, line := range strings.Split(output, "\n") {
		idx := strings.Index(line, "current ")
		if !strings.HasPrefix(line, "Screen ") || idx < 0 {
			continue
		}
		rest := line[idx+len("current "):]
		if comma := strings.Index(rest, ","); comma >= 0 {
			rest = rest[:comma]
		}
		dims := strings.Split(rest, " x ")
		if len(dims) != 2 {
			break
		}
		w, errW := strconv.Atoi(strings.TrimSpace(dims[0]))
		h, errH := strconv.Atoi(strings.TrimSpace(dims[1]))
		if errW != nil || errH != nil {
			break
		}
		return w, h, nil
	}
	return 0, 0, fmt.Errorf("no current screen size in xrandr output")
}

func parseXftDPI(output string) (float64, bool) {
	for _, line := range strings.Split(output, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(key) != "Xft.dpi" {
			continue
		}
		dpi, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || dpi <= 0 {
			return 0, false
		}
		return dpi, true
	}
	return 0, false
}

// parseWorkAreaTop reads the y of the first work area rectangle from
// "_NET_WORKAREA(CARDINAL) = x, y, w, h, ...".
func parseWorkAreaTop(output string) (int, error) {
	_, values, ok := strings.Cut(output, "=")
	if !ok {
		return 0, fmt.Errorf("unexpected _NET_WORKAREA output: %q", strings.TrimSpace(output))
	}
	fields := strings.Split(values, ",")
	if len(fields) < 4 {
		return 0, fmt.Errorf("unexpected _NET_WORKAREA output: %q", strings.TrimSpace(output))
	}
	top, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return 0, fmt.Errorf("parse work area top: %w", err)
	}
	return top, nil
}
