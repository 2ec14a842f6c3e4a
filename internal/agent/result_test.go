package agent

import (
	"strings"
	"testing"
	"time"
)

func TestToolResultAPIContent(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	tests := []struct {
		name      string
		result    ToolResult
		wantText  string
		wantImage bool
	}{
		{"output only", ToolResult{Output: "ok"}, "ok", false},
		{"screenshot only", ToolResult{Image: png}, "", true},
		{"system note", ToolResult{Output: "clicked", System: "screenshot over budget", Image: png}, "<system>screenshot over budget</system>\nclicked", true},
		{"error drops image", ToolResult{Error: "boom", Image: png}, "boom", false},
		{"error with system", ToolResult{Error: "boom", System: "restarted"}, "<system>restarted</system>\nboom", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocks := tt.result.APIContent()
			var text string
			var image bool
			for _, b := range blocks {
				switch b.Type {
				case BlockText:
					text = b.Text
				case BlockImage:
					image = true
					if b.MediaType != "image/png" {
						t.Errorf("media type = %q", b.MediaType)
					}
				}
			}
			if text != tt.wantText || image != tt.wantImage {
				t.Fatalf("APIContent() text=%q image=%v, want text=%q image=%v", text, image, tt.wantText, tt.wantImage)
			}
		})
	}
}

func TestToolResultBlock(t *testing.T) {
	block := ToolResult{Error: "tool not found: x"}.Block("id1", "x")
	if block.Type != BlockToolResult || !block.IsError || block.ToolUseID != "id1" || block.Name != "x" {
		t.Fatalf("Block() = %+v", block)
	}
	if len(block.Content) != 1 || block.Content[0].Text != "tool not found: x" {
		t.Fatalf("Block().Content = %+v", block.Content)
	}

	if empty := (ToolResult{Image: []byte{1}}).Block("id2", "computer"); len(empty.Content) != 0 {
		t.Fatalf("screenshot-only result should have no text content: %+v", empty)
	}
}

func TestToolResultCombine(t *testing.T) {
	a := ToolResult{Output: "chunk1 ", Image: []byte{1}}
	b := ToolResult{Output: "chunk2", Image: []byte{2}, System: "note"}
	got := a.Combine(b)
	if got.Output != "chunk1 chunk2" || got.Image[0] != 2 || got.System != "note" {
		t.Fatalf("Combine() = %+v", got)
	}
	if (ToolResult{}).Combine(ToolResult{}).Empty() != true {
		t.Fatal("combining empty results should stay empty")
	}
}

func TestDataURI(t *testing.T) {
	uri := ImageBlock("image/png", []byte("abc")).DataURI()
	if uri != "data:image/png;base64,YWJj" {
		t.Fatalf("DataURI() = %q", uri)
	}
}

func TestSystemPrompt(t *testing.T) {
	env := PromptEnv{
		OS:      "linux",
		Arch:    "amd64",
		Date:    time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC),
		Tools:   []ToolDescriptor{{Name: "computer"}, {Name: "custom", Description: "does things\nmore"}},
		Display: "1280x800",
		Suffix:  "Be brief.",
	}
	prompt := SystemPrompt(env)

	for _, want := range []string{
		"<SYSTEM_CAPABILITIES>",
		"OS: linux amd64",
		"Date: Wednesday, March 04, 2026",
		"'computer': GUI interaction",
		"'custom': does things\n",
		"1280x800 logical screen",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if !strings.HasSuffix(prompt, "</SYSTEM_CAPABILITIES> Be brief.") {
		t.Fatalf("suffix not appended with a space: %q", prompt[len(prompt)-40:])
	}
}
