package tools

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestResolveToolDisplay(t *testing.T) {
	tests := []struct {
		name  string
		tool  string
		input string
		want  string
	}{
		{"click", "computer", `{"action":"left_click","coordinate":[640,400]}`, "🖱️ Clicking: (640, 400)"},
		{"screenshot", "computer", `{"action":"screenshot"}`, "🖱️ Taking screenshot"},
		{"type collapses whitespace", "computer", `{"action":"type","text":"hello\n  world"}`, "🖱️ Typing: hello world"},
		{"bash", "bash", `{"command":"ls -la /tmp"}`, "💻 Running: ls -la /tmp"},
		{"editor command", "str_replace_editor", `{"command":"view","path":"/etc/hosts"}`, "✏️ Viewing: /etc/hosts"},
		{"editor default", "str_replace_editor", `{"command":"str_replace","path":"/a.txt"}`, "✏️ Editing: /a.txt"},
		{"browser", "browser", `{"action":"visit","url":"https://example.com"}`, "🌐 Visiting: https://example.com"},
		{"unknown tool", "weather", `{"city":"Oslo"}`, "🧩 Using weather"},
		{"bad json", "bash", `{`, "💻 Running"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatToolSummary(ResolveToolDisplay(tt.tool, json.RawMessage(tt.input)))
			if got != tt.want {
				t.Fatalf("summary = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetailTruncation(t *testing.T) {
	long := strings.Repeat("x", 200)
	display := ResolveToolDisplay("bash", json.RawMessage(`{"command":"`+long+`"}`))
	if n := len([]rune(display.Detail)); n != MaxDetailLength {
		t.Fatalf("detail length = %d, want %d", n, MaxDetailLength)
	}
	if !strings.HasSuffix(display.Detail, "…") {
		t.Fatalf("detail = %q, want ellipsis", display.Detail)
	}
}

func TestCoerceDisplayValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{3.0, "3"},
		{2.5, "2.5"},
		{true, "true"},
		{[]any{}, ""},
		{[]any{1.0, "a"}, "(1, a)"},
	}
	for _, tt := range tests {
		if got := coerceDisplayValue(tt.in); got != tt.want {
			t.Errorf("coerceDisplayValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
