package computer

import (
	"encoding/json"
	"strings"

	"github.com/haasonsaas/deskpilot/internal/agent"
)

// Action names a single desktop operation.
type Action string

const (
	ActionKey            Action = "key"
	ActionType           Action = "type"
	ActionMouseMove      Action = "mouse_move"
	ActionLeftClick      Action = "left_click"
	ActionLeftClickDrag  Action = "left_click_drag"
	ActionRightClick     Action = "right_click"
	ActionMiddleClick    Action = "middle_click"
	ActionDoubleClick    Action = "double_click"
	ActionScreenshot     Action = "screenshot"
	ActionCursorPosition Action = "cursor_position"
	ActionScrollUp       Action = "scroll_up"
	ActionScrollDown     Action = "scroll_down"
)

var knownActions = map[Action]bool{
	ActionKey: true, ActionType: true, ActionMouseMove: true, ActionLeftClick: true,
	ActionLeftClickDrag: true, ActionRightClick: true, ActionMiddleClick: true,
	ActionDoubleClick: true, ActionScreenshot: true, ActionCursorPosition: true,
	ActionScrollUp: true, ActionScrollDown: true,
}

// Request is the input of the computer tool.
type Request struct {
	Action       Action    `json:"action" jsonschema:"enum=key,enum=type,enum=mouse_move,enum=left_click,enum=left_click_drag,enum=right_click,enum=middle_click,enum=double_click,enum=screenshot,enum=cursor_position,enum=scroll_up,enum=scroll_down" jsonschema_description:"The action to perform."`
	Text         string    `json:"text,omitempty" jsonschema_description:"Text to type, or a key name / chord such as ctrl+s. Required for key and type."`
	Coordinate   []float64 `json:"coordinate,omitempty" jsonschema:"minItems=2,maxItems=2" jsonschema_description:"[x, y] in screenshot coordinates. Required for mouse_move and left_click_drag; optional for clicks."`
	ScrollAmount *int      `json:"scroll_amount,omitempty" jsonschema:"minimum=1" jsonschema_description:"Wheel units to scroll. Defaults to 400."`
	Repeat       *int      `json:"repeat,omitempty" jsonschema:"minimum=1" jsonschema_description:"How many times to perform the action. Defaults to 1."`
}

var requestSchema = agent.ReflectSchema(&Request{})

// Schema returns the JSON schema of Request.
func Schema() json.RawMessage {
	return requestSchema
}

// Validate checks the action-specific rules the schema cannot express.
func (r Request) Validate() error {
	if !knownActions[r.Action] {
		return agent.Validationf("invalid action: %q", r.Action)
	}
	switch r.Action {
	case ActionKey, ActionType:
		if r.Text == "" {
			return agent.Validationf("text is required for %s", r.Action)
		}
		if r.Coordinate != nil {
			return agent.Validationf("coordinate is not accepted for %s", r.Action)
		}
	case ActionMouseMove, ActionLeftClickDrag:
		if r.Coordinate == nil {
			return agent.Validationf("coordinate is required for %s", r.Action)
		}
		if r.Text != "" {
			return agent.Validationf("text is not accepted for %s", r.Action)
		}
	}
	if r.Coordinate != nil {
		if len(r.Coordinate) != 2 {
			return agent.Validationf("%v must be a list of two numbers", r.Coordinate)
		}
		if r.Coordinate[0] < 0 || r.Coordinate[1] < 0 {
			return agent.Validationf("%v must be non-negative", r.Coordinate)
		}
	}
	if r.Repeat != nil && *r.Repeat < 1 {
		return agent.Validationf("repeat must be at least 1, got %d", *r.Repeat)
	}
	if r.ScrollAmount != nil && *r.ScrollAmount < 1 {
		return agent.Validationf("scroll_amount must be at least 1, got %d", *r.ScrollAmount)
	}
	return nil
}

func (r Request) repeat() int {
	if r.Repeat == nil || *r.Repeat < 1 {
		return 1
	}
	return *r.Repeat
}

// chord splits "ctrl+shift+t" into its keys. A lone "+" is a key, not a
// chord, and a trailing "++" names the plus key: "ctrl++" is ctrl, plus.
func chord(text string) []string {
	if len(text) < 2 || !strings.Contains(text, "+") {
		return nil
	}
	var last string
	if strings.HasSuffix(text, "++") {
		text, last = text[:len(text)-2], "plus"
	}
	parts := strings.Split(text, "+")
	if last != "" {
		parts = append(parts, last)
	}
	for _, p := range parts {
		if p == "" {
			return nil
		}
	}
	return parts
}

// chunks splits s into groups of at most size runes.
func chunks(s string, size int) []string {
	runes := []rune(s)
	if size <= 0 {
		size = len(runes)
	}
	var out []string
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}
