// Package computer implements the "computer" tool: mouse, keyboard and
// screenshot actions against the local desktop, expressed in the logical
// coordinate space the model sees.
package computer

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/deskpilot/internal/agent"
	"github.com/haasonsaas/deskpilot/internal/clipboard"
	"github.com/haasonsaas/deskpilot/internal/desktop"
	"github.com/haasonsaas/deskpilot/internal/observability"
)

// Defaults for Config.
const (
	DefaultTypingGroupSize = 50
	DefaultScrollAmount    = 400
)

// Config tunes the computer tool.
type Config struct {
	// TypingGroupSize is the number of runes pasted per clipboard round trip.
	TypingGroupSize int
	// ScrollAmount is used when a scroll request has no scroll_amount.
	ScrollAmount int
	// ScreenshotDelay is the settle time before every capture.
	ScreenshotDelay time.Duration
	// MaxImageBytes is the encoded screenshot budget.
	MaxImageBytes int
	IconMinSize   int
	IconMaxSize   int
	// DisableSnap turns off icon snapping for clicks.
	DisableSnap bool
}

// Tool drives the desktop. Device access is serialized; only one action
// runs at a time.
type Tool struct {
	mu         sync.Mutex
	device     desktop.Device
	translator desktop.Translator
	snapper    *desktop.Snapper
	codec      *desktop.Codec
	clipboard  clipboard.Clipboard
	config     Config

	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// Option configures a Tool.
type Option func(*Tool)

// WithClipboard replaces the system clipboard used by the type action.
func WithClipboard(cb clipboard.Clipboard) Option {
	return func(t *Tool) { t.clipboard = cb }
}

// WithLogger sets the logger.
func WithLogger(logger *observability.Logger) Option {
	return func(t *Tool) { t.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(t *Tool) { t.metrics = metrics }
}

// WithTracer sets the tracer.
func WithTracer(tracer *observability.Tracer) Option {
	return func(t *Tool) { t.tracer = tracer }
}

// New creates a computer tool for device using the probed geometry.
func New(device desktop.Device, geometry desktop.Geometry, cfg Config, opts ...Option) *Tool {
	if cfg.TypingGroupSize <= 0 {
		cfg.TypingGroupSize = DefaultTypingGroupSize
	}
	if cfg.ScrollAmount <= 0 {
		cfg.ScrollAmount = DefaultScrollAmount
	}
	t := &Tool{
		device:     device,
		translator: desktop.NewTranslator(geometry),
		snapper:    desktop.NewSnapper(cfg.IconMinSize, cfg.IconMaxSize),
		codec: desktop.NewCodec(device, geometry, desktop.CodecConfig{
			Delay:    cfg.ScreenshotDelay,
			MaxBytes: cfg.MaxImageBytes,
		}),
		clipboard: clipboard.System{},
		config:    cfg,
		logger:    observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tool) Name() string { return "computer" }

func (t *Tool) Description() string {
	return "Use a mouse and keyboard to interact with the computer, and take screenshots.\n" +
		"* This is the only way to use GUI applications; there is no terminal access through it.\n" +
		"* Some applications take a while to start or respond, so a screenshot may need to be retaken.\n" +
		"* Coordinates are in the pixel space of the screenshots you receive.\n" +
		"* Before clicking, look at a screenshot to find the element's coordinates. Aim for the center of the element.\n" +
		"* Use key with chords like ctrl+c, and type for text."
}

func (t *Tool) Schema() json.RawMessage { return Schema() }

// Geometry returns the geometry the tool translates against.
func (t *Tool) Geometry() desktop.Geometry { return t.translator.Geometry() }

func (t *Tool) Execute(ctx context.Context, input json.RawMessage) (agent.ToolResult, error) {
	var req Request
	if err := agent.DecodeInput(input, &req); err != nil {
		return agent.ToolResult{}, err
	}
	if err := req.Validate(); err != nil {
		return agent.ToolResult{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	result, err := t.perform(ctx, req)
	if err != nil {
		t.logger.Warn(ctx, "computer action failed", "action", string(req.Action), "error", err)
		return agent.ToolResult{}, agent.Execution("computer interaction failed", err)
	}
	return result, nil
}

func (t *Tool) perform(ctx context.Context, req Request) (agent.ToolResult, error) {
	repeat := req.repeat()

	switch req.Action {
	case ActionMouseMove, ActionLeftClickDrag:
		x, y := t.translator.LogicalToScreen(req.Coordinate[0], req.Coordinate[1])
		for i := 0; i < repeat; i++ {
			var err error
			if req.Action == ActionMouseMove {
				err = t.device.MoveMouse(ctx, x, y)
			} else {
				err = t.device.DragTo(ctx, x, y)
			}
			if err != nil {
				return agent.ToolResult{}, err
			}
		}
		return t.screenshot(ctx)

	case ActionKey:
		keys := chord(req.Text)
		for i := 0; i < repeat; i++ {
			var err error
			if keys != nil {
				err = t.device.Hotkey(ctx, keys...)
			} else {
				err = t.device.PressKey(ctx, req.Text)
			}
			if err != nil {
				return agent.ToolResult{}, err
			}
		}
		return t.screenshot(ctx)

	case ActionType:
		return t.typeText(ctx, req.Text, repeat)

	case ActionScrollUp, ActionScrollDown:
		amount := t.config.ScrollAmount
		if req.ScrollAmount != nil {
			amount = *req.ScrollAmount
		}
		if amount < 0 {
			amount = -amount
		}
		if req.Action == ActionScrollDown {
			amount = -amount
		}
		for i := 0; i < repeat; i++ {
			if err := t.device.Scroll(ctx, amount); err != nil {
				return agent.ToolResult{}, err
			}
		}
		return t.screenshot(ctx)

	case ActionLeftClick, ActionRightClick, ActionMiddleClick, ActionDoubleClick:
		return t.click(ctx, req, repeat)

	case ActionScreenshot:
		return t.screenshot(ctx)

	case ActionCursorPosition:
		pos, err := t.device.CursorPosition(ctx)
		if err != nil {
			return agent.ToolResult{}, err
		}
		x, y := t.translator.ScreenToLogical(pos.X, pos.Y)
		return agent.ToolResult{Output: fmt.Sprintf("X=%d,Y=%d", x, y)}, nil
	}
	return agent.ToolResult{}, fmt.Errorf("unhandled action %q", req.Action)
}

func (t *Tool) typeText(ctx context.Context, text string, repeat int) (agent.ToolResult, error) {
	var typed []string
	paste := func(ctx context.Context) error {
		return t.device.Hotkey(ctx, "ctrl", "v")
	}
	for i := 0; i < repeat; i++ {
		for _, chunk := range chunks(text, t.config.TypingGroupSize) {
			if err := clipboard.WithContents(ctx, t.clipboard, chunk, paste); err != nil {
				return agent.ToolResult{}, err
			}
			typed = append(typed, chunk)
		}
	}
	shot, err := t.screenshot(ctx)
	if err != nil {
		return agent.ToolResult{}, err
	}
	return agent.ToolResult{Output: strings.Join(typed, "")}.Combine(shot), nil
}

func (t *Tool) click(ctx context.Context, req Request, repeat int) (agent.ToolResult, error) {
	button, clicks := desktop.ButtonLeft, 1
	switch req.Action {
	case ActionRightClick:
		button = desktop.ButtonRight
	case ActionMiddleClick:
		button = desktop.ButtonMiddle
	case ActionDoubleClick:
		clicks = 2
	}

	if req.Coordinate != nil {
		x, y := t.translator.LogicalToScreen(req.Coordinate[0], req.Coordinate[1])
		target := t.snap(ctx, image.Pt(x, y))
		if err := t.device.MoveMouse(ctx, target.X, target.Y); err != nil {
			return agent.ToolResult{}, err
		}
	}
	for i := 0; i < repeat; i++ {
		if err := t.device.Click(ctx, button, clicks); err != nil {
			return agent.ToolResult{}, err
		}
	}
	return t.screenshot(ctx)
}

// snap moves target to the center of a nearby icon when one is found.
// Capture failures fall back to the raw target.
func (t *Tool) snap(ctx context.Context, target image.Point) image.Point {
	if t.config.DisableSnap {
		return target
	}
	frame, err := t.device.Capture(ctx)
	if err != nil {
		t.logger.Debug(ctx, "snap capture failed", "error", err)
		t.metrics.RecordSnap(false)
		return target
	}
	center, ok := t.snapper.FindCenter(frame, target)
	t.metrics.RecordSnap(ok)
	if !ok {
		return target
	}
	t.logger.Debug(ctx, "snapped click to icon center",
		"from_x", target.X, "from_y", target.Y, "to_x", center.X, "to_y", center.Y)
	return center
}

func (t *Tool) screenshot(ctx context.Context) (agent.ToolResult, error) {
	ctx, span := t.tracer.TraceScreenshot(ctx)
	defer span.End()

	shot, err := t.codec.Capture(ctx)
	if err != nil {
		t.tracer.RecordError(span, err)
		return agent.ToolResult{}, err
	}
	t.tracer.SetAttributes(span, "screenshot.candidate", shot.Candidate, "screenshot.bytes", len(shot.Data))
	t.metrics.RecordScreenshot(shot.Candidate, len(shot.Data), shot.OverBudget)

	result := agent.ToolResult{Image: shot.Data}
	if shot.OverBudget {
		t.logger.Warn(ctx, "screenshot exceeds size budget",
			"bytes", len(shot.Data), "candidate", shot.Candidate)
		result.System = fmt.Sprintf("screenshot is %d bytes after compression, above the configured budget", len(shot.Data))
	}
	return result, nil
}
