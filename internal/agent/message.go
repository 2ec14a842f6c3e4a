package agent

import (
	"encoding/base64"
	"encoding/json"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// BlockType tags the variant held by a ContentBlock.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockImage      BlockType = "image"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// Message is one turn of the conversation. Order in a history slice is turn
// order.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is a tagged union; Type decides which fields are meaningful.
//
//	text:        Text
//	image:       MediaType, Data (raw bytes)
//	tool_use:    ID, Name, Input
//	tool_result: ToolUseID, Name, IsError, Content
type ContentBlock struct {
	Type BlockType `json:"type"`

	Text string `json:"text,omitempty"`

	MediaType string `json:"media_type,omitempty"`
	Data      []byte `json:"data,omitempty"`

	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	ToolUseID string         `json:"tool_use_id,omitempty"`
	IsError   bool           `json:"is_error,omitempty"`
	Content   []ContentBlock `json:"content,omitempty"`
}

// TextBlock returns a text block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ImageBlock returns an image block holding raw encoded bytes.
func ImageBlock(mediaType string, data []byte) ContentBlock {
	return ContentBlock{Type: BlockImage, MediaType: mediaType, Data: data}
}

// ToolUseBlock returns a tool invocation block.
func ToolUseBlock(id, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ID: id, Name: name, Input: input}
}

// DataURI renders an image block as a data: URI.
func (b ContentBlock) DataURI() string {
	return "data:" + b.MediaType + ";base64," + base64.StdEncoding.EncodeToString(b.Data)
}

// Base64 returns the image payload base64 encoded.
func (b ContentBlock) Base64() string {
	return base64.StdEncoding.EncodeToString(b.Data)
}

// ToolUses returns the tool_use blocks of m in order.
func (m Message) ToolUses() []ContentBlock {
	var uses []ContentBlock
	for _, block := range m.Content {
		if block.Type == BlockToolUse {
			uses = append(uses, block)
		}
	}
	return uses
}

// UserText builds a user message with a single text block.
func UserText(text string) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{TextBlock(text)}}
}

// countImages returns how many image blocks m holds, including those nested
// in tool results.
func countImages(blocks []ContentBlock) int {
	n := 0
	for _, block := range blocks {
		switch block.Type {
		case BlockImage:
			n++
		case BlockToolResult:
			n += countImages(block.Content)
		}
	}
	return n
}
