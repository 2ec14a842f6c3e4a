package agent

import "strings"

// ToolResult is the outcome of one tool execution. It succeeds iff Error is
// empty. Image holds an encoded PNG, System a note for the model that is not
// part of the tool's own output.
type ToolResult struct {
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
	Image  []byte `json:"image,omitempty"`
	System string `json:"system,omitempty"`
}

// IsError reports whether the execution failed.
func (r ToolResult) IsError() bool {
	return r.Error != ""
}

// Empty reports whether the result carries nothing at all.
func (r ToolResult) Empty() bool {
	return r.Output == "" && r.Error == "" && len(r.Image) == 0 && r.System == ""
}

// ErrorResult builds a failed result.
func ErrorResult(msg string) ToolResult {
	return ToolResult{Error: msg}
}

// WithSystem appends a system note, keeping any existing one.
func (r ToolResult) WithSystem(note string) ToolResult {
	if note == "" {
		return r
	}
	if r.System == "" {
		r.System = note
	} else {
		r.System = r.System + "; " + note
	}
	return r
}

// Combine merges two results the way consecutive sub-steps of one action
// are reported: outputs and errors concatenate, the later image wins.
func (r ToolResult) Combine(other ToolResult) ToolResult {
	out := ToolResult{
		Output: joinNonEmpty(r.Output, other.Output),
		Error:  joinNonEmpty(r.Error, other.Error),
		System: joinNonEmpty(r.System, other.System),
		Image:  r.Image,
	}
	if len(other.Image) > 0 {
		out.Image = other.Image
	}
	return out
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + b
	}
}

// text renders the textual part sent to the model, with the system note
// prepended as a <system> tag.
func (r ToolResult) text() string {
	body := r.Output
	if r.IsError() {
		body = r.Error
	}
	if r.System == "" {
		return body
	}
	var b strings.Builder
	b.WriteString("<system>")
	b.WriteString(r.System)
	b.WriteString("</system>\n")
	b.WriteString(body)
	return b.String()
}

// APIContent renders the result as the blocks the model sees: a text block
// when there is text, and for successful results an image block when a
// screenshot is attached.
func (r ToolResult) APIContent() []ContentBlock {
	var blocks []ContentBlock
	if text := r.text(); text != "" {
		blocks = append(blocks, TextBlock(text))
	}
	if !r.IsError() && len(r.Image) > 0 {
		blocks = append(blocks, ImageBlock("image/png", r.Image))
	}
	return blocks
}

// Block wraps the result as a tool_result block answering toolUseID. Only
// the text is carried; the image travels in the follow-up user turn.
func (r ToolResult) Block(toolUseID, name string) ContentBlock {
	block := ContentBlock{
		Type:      BlockToolResult,
		ToolUseID: toolUseID,
		Name:      name,
		IsError:   r.IsError(),
	}
	if text := r.text(); text != "" {
		block.Content = []ContentBlock{TextBlock(text)}
	}
	return block
}
