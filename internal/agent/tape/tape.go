// Package tape records agent runs to a file and replays them.
//
// A Recorder sits between the controller and the real model and tools,
// capturing every model response and tool result. A Replayer serves those
// captures back in order, so a run can be reproduced without a model or a
// display.
package tape

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/haasonsaas/deskpilot/internal/agent"
)

// FormatVersion is written to every tape.
const FormatVersion = "1"

// Tape records a complete conversation with an agent.
type Tape struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`

	Provider     string `json:"provider,omitempty"`
	Model        string `json:"model,omitempty"`
	SystemPrompt string `json:"system_prompt,omitempty"`

	// Tools are the descriptors offered to the model.
	Tools []agent.ToolDescriptor `json:"tools,omitempty"`

	// Initial is the history the run started from, usually the prompt.
	Initial []agent.Message `json:"initial,omitempty"`

	Turns    []Turn    `json:"turns"`
	ToolRuns []ToolRun `json:"tool_runs"`
}

// Turn is one model response.
type Turn struct {
	// Index is the 0-based turn number
	Index int `json:"index"`

	// Messages is the history length the model was sent.
	Messages int `json:"messages"`

	Response   agent.Message `json:"response"`
	StopReason string        `json:"stop_reason,omitempty"`
	Usage      agent.Usage   `json:"usage"`
	Duration   time.Duration `json:"duration"`
}

// ToolRun is one tool execution.
type ToolRun struct {
	// TurnIndex is the turn whose response requested the call.
	TurnIndex int              `json:"turn_index"`
	Name      string           `json:"name"`
	Input     json.RawMessage  `json:"input,omitempty"`
	Result    agent.ToolResult `json:"result"`
	Duration  time.Duration    `json:"duration"`
}

// NewTape creates a new empty tape.
func NewTape() *Tape {
	return &Tape{
		Version:   FormatVersion,
		CreatedAt: time.Now(),
		Turns:     []Turn{},
		ToolRuns:  []ToolRun{},
	}
}

// AddTurn appends a turn and assigns its index.
func (t *Tape) AddTurn(turn Turn) {
	turn.Index = len(t.Turns)
	t.Turns = append(t.Turns, turn)
}

// AddToolRun adds a tool run to the tape.
func (t *Tape) AddToolRun(run ToolRun) {
	t.ToolRuns = append(t.ToolRuns, run)
}

// GetTurn returns the turn at the given index.
func (t *Tape) GetTurn(index int) (*Turn, bool) {
	if index < 0 || index >= len(t.Turns) {
		return nil, false
	}
	return &t.Turns[index], true
}

// GetToolRuns returns all tool runs for a given turn, in call order.
func (t *Tape) GetToolRuns(turnIndex int) []ToolRun {
	var runs []ToolRun
	for _, run := range t.ToolRuns {
		if run.TurnIndex == turnIndex {
			runs = append(runs, run)
		}
	}
	return runs
}

// Marshal serializes the tape to JSON.
func (t *Tape) Marshal() ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

// Unmarshal deserializes a tape from JSON.
func Unmarshal(data []byte) (*Tape, error) {
	var tape Tape
	if err := json.Unmarshal(data, &tape); err != nil {
		return nil, err
	}
	if tape.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported tape version %q", tape.Version)
	}
	return &tape, nil
}

// Save writes the tape to path.
func (t *Tape) Save(path string) error {
	data, err := t.Marshal()
	if err != nil {
		return fmt.Errorf("encode tape: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write tape: %w", err)
	}
	return nil
}

// Load reads a tape written by Save.
func Load(path string) (*Tape, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tape: %w", err)
	}
	tape, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tape, nil
}

// Clone creates a deep copy of the tape.
func (t *Tape) Clone() *Tape {
	data, err := json.Marshal(t)
	if err == nil {
		var clone Tape
		if json.Unmarshal(data, &clone) == nil {
			return &clone
		}
	}
	clone := *t
	clone.Tools = append([]agent.ToolDescriptor(nil), t.Tools...)
	clone.Initial = append([]agent.Message(nil), t.Initial...)
	clone.Turns = append([]Turn(nil), t.Turns...)
	clone.ToolRuns = append([]ToolRun(nil), t.ToolRuns...)
	return &clone
}

// Summary returns a brief summary of the tape contents.
func (t *Tape) Summary() TapeSummary {
	s := TapeSummary{
		Version:      t.Version,
		CreatedAt:    t.CreatedAt,
		Model:        t.Model,
		TurnCount:    len(t.Turns),
		ToolRunCount: len(t.ToolRuns),
	}
	for _, turn := range t.Turns {
		s.InputTokens += turn.Usage.InputTokens
		s.OutputTokens += turn.Usage.OutputTokens
	}
	for _, run := range t.ToolRuns {
		if len(run.Result.Image) > 0 {
			s.Screenshots++
		}
	}
	return s
}

// TapeSummary is a brief overview of a tape.
type TapeSummary struct {
	Version      string    `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	Model        string    `json:"model,omitempty"`
	TurnCount    int       `json:"turn_count"`
	ToolRunCount int       `json:"tool_run_count"`
	Screenshots  int       `json:"screenshots"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
}
