// Package tools holds helpers shared by the tool packages and their callers.
package tools

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ToolDisplay contains formatted display info for a tool call
type ToolDisplay struct {
	Name   string
	Emoji  string
	Label  string
	Detail string
}

// ToolDisplaySpec defines display configuration for a tool
type ToolDisplaySpec struct {
	Emoji      string
	Label      string
	DetailKeys []string
	// Actions overrides the label per value of the action or command field.
	Actions map[string]string
}

// MaxDetailLength truncates long details such as typed text or commands.
const MaxDetailLength = 80

var fallbackSpec = ToolDisplaySpec{Emoji: "🧩", Label: "Using"}

var displaySpecs = map[string]ToolDisplaySpec{
	"computer": {
		Emoji:      "🖱️",
		Label:      "Computer",
		DetailKeys: []string{"coordinate", "text", "scroll_amount"},
		Actions: map[string]string{
			"screenshot":      "Taking screenshot",
			"type":            "Typing",
			"key":             "Pressing",
			"mouse_move":      "Moving mouse",
			"left_click":      "Clicking",
			"right_click":     "Right-clicking",
			"middle_click":    "Middle-clicking",
			"double_click":    "Double-clicking",
			"left_click_drag": "Dragging",
			"cursor_position": "Reading cursor",
			"scroll_up":       "Scrolling up",
			"scroll_down":     "Scrolling down",
		},
	},
	"bash": {
		Emoji:      "💻",
		Label:      "Running",
		DetailKeys: []string{"command"},
	},
	"str_replace_editor": {
		Emoji:      "✏️",
		Label:      "Editing",
		DetailKeys: []string{"path"},
		Actions: map[string]string{
			"view":      "Viewing",
			"create":    "Creating",
			"undo_edit": "Undoing edit",
		},
	},
	"browser": {
		Emoji:      "🌐",
		Label:      "Browsing",
		DetailKeys: []string{"url", "selector", "content_type"},
		Actions: map[string]string{
			"visit":       "Visiting",
			"get_content": "Reading page",
			"click":       "Clicking",
			"back":        "Going back",
		},
	},
}

// ResolveToolDisplay resolves display info for a tool call with raw JSON
// input.
func ResolveToolDisplay(name string, input json.RawMessage) *ToolDisplay {
	spec, ok := displaySpecs[name]
	if !ok {
		spec = fallbackSpec
	}
	display := &ToolDisplay{Name: name, Emoji: spec.Emoji, Label: spec.Label}

	var args map[string]any
	if len(input) > 0 && json.Unmarshal(input, &args) != nil {
		args = nil
	}
	if !ok {
		display.Label = spec.Label + " " + name
	}
	for _, key := range []string{"action", "command"} {
		if action, isString := args[key].(string); isString {
			if label, found := spec.Actions[action]; found {
				display.Label = label
			}
			break
		}
	}
	display.Detail = resolveDetail(args, spec.DetailKeys)
	return display
}

// FormatToolSummary formats a complete tool summary line
func FormatToolSummary(display *ToolDisplay) string {
	summary := display.Label
	if display.Emoji != "" {
		summary = display.Emoji + " " + summary
	}
	if display.Detail != "" {
		summary += ": " + display.Detail
	}
	return summary
}

func resolveDetail(args map[string]any, keys []string) string {
	var parts []string
	for _, key := range keys {
		if value := coerceDisplayValue(args[key]); value != "" {
			parts = append(parts, value)
		}
	}
	return truncate(strings.Join(parts, " "), MaxDetailLength)
}

// coerceDisplayValue converts a value to a display string
func coerceDisplayValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.Join(strings.Fields(v), " ")
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	case []any:
		items := make([]string, 0, len(v))
		for _, item := range v {
			if s := coerceDisplayValue(item); s != "" {
				items = append(items, s)
			}
		}
		if len(items) == 0 {
			return ""
		}
		return "(" + strings.Join(items, ", ") + ")"
	default:
		return fmt.Sprintf("%v", v)
	}
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
