package tape

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/haasonsaas/deskpilot/internal/agent"
)

type scriptedModel struct {
	responses []agent.Message
	calls     int
}

func (m *scriptedModel) Create(_ context.Context, _ agent.ModelRequest) (*agent.ModelResponse, error) {
	m.calls++
	msg := agent.Message{Role: agent.RoleAssistant, Content: []agent.ContentBlock{agent.TextBlock("done")}}
	if m.calls <= len(m.responses) {
		msg = m.responses[m.calls-1]
	}
	return &agent.ModelResponse{
		Message: msg,
		Exchange: agent.Exchange{
			Provider: "fake", Model: "fake-1", StatusCode: 200,
			Usage: agent.Usage{InputTokens: 10, OutputTokens: 5},
		},
	}, nil
}

type fakeTools struct {
	calls int
}

func (f *fakeTools) Run(_ context.Context, name string, _ json.RawMessage) agent.ToolResult {
	f.calls++
	if name == "computer" {
		return agent.ToolResult{Image: []byte{0x89, 'P', 'N', 'G'}}
	}
	return agent.ToolResult{Output: "hello"}
}

func (f *fakeTools) Descriptors() []agent.ToolDescriptor {
	return []agent.ToolDescriptor{
		{Name: "bash", Description: "shell", Schema: json.RawMessage(`{"type":"object"}`)},
		{Name: "computer", Description: "desktop", Schema: json.RawMessage(`{"type":"object"}`)},
	}
}

func script() []agent.Message {
	return []agent.Message{
		{Role: agent.RoleAssistant, Content: []agent.ContentBlock{
			agent.ToolUseBlock("toolu_1", "bash", json.RawMessage(`{"command":"echo hello"}`)),
			agent.ToolUseBlock("toolu_2", "computer", json.RawMessage(`{"action":"screenshot"}`)),
		}},
	}
}

func record(t *testing.T) (*Tape, []agent.Message) {
	t.Helper()
	tools := &fakeTools{}
	rec := NewRecorder(&scriptedModel{responses: script()}, tools)
	ctrl := agent.NewController(rec, rec, agent.ControllerConfig{System: "sys"})
	history, err := ctrl.Run(context.Background(), []agent.Message{agent.UserText("go")})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if tools.calls != 2 {
		t.Fatalf("tool calls = %d, want 2", tools.calls)
	}
	return rec.Tape(), history
}

func TestRecorderCapturesRun(t *testing.T) {
	tp, _ := record(t)

	if len(tp.Turns) != 2 || len(tp.ToolRuns) != 2 {
		t.Fatalf("turns=%d tool_runs=%d, want 2 and 2", len(tp.Turns), len(tp.ToolRuns))
	}
	if tp.SystemPrompt != "sys" || tp.Model != "fake-1" || len(tp.Tools) != 2 {
		t.Fatalf("tape header = %q %q %d tools", tp.SystemPrompt, tp.Model, len(tp.Tools))
	}
	if len(tp.Initial) != 1 || tp.Initial[0].Content[0].Text != "go" {
		t.Fatalf("initial history = %+v", tp.Initial)
	}
	if got := tp.GetToolRuns(0); len(got) != 2 || got[0].Name != "bash" || got[1].Name != "computer" {
		t.Fatalf("turn 0 tool runs = %+v", got)
	}
	if tp.Turns[0].Messages != 1 || tp.Turns[1].Messages != 5 {
		t.Fatalf("message counts = %d, %d", tp.Turns[0].Messages, tp.Turns[1].Messages)
	}

	s := tp.Summary()
	if s.TurnCount != 2 || s.Screenshots != 1 || s.InputTokens != 20 {
		t.Fatalf("summary = %+v", s)
	}
}

func TestReplayReproducesHistory(t *testing.T) {
	tp, recorded := record(t)

	path := filepath.Join(t.TempDir(), "run.tape.json")
	if err := tp.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	rep := NewReplayer(loaded).WithMode(ReplayStrict)
	ctrl := agent.NewController(rep, rep, agent.ControllerConfig{System: loaded.SystemPrompt})
	replayed, err := ctrl.Run(context.Background(), loaded.Initial)
	if err != nil {
		t.Fatalf("replay Run() error = %v", err)
	}

	want, _ := json.Marshal(recorded)
	got, _ := json.Marshal(replayed)
	if string(want) != string(got) {
		t.Fatalf("replayed history differs\nwant %s\ngot  %s", want, got)
	}
	if m := rep.Mismatches(); len(m) != 0 {
		t.Fatalf("unexpected mismatches: %+v", m)
	}
	if rep.CurrentTurn() != 2 {
		t.Fatalf("CurrentTurn() = %d, want 2", rep.CurrentTurn())
	}
}

func TestReplayerExhausted(t *testing.T) {
	rep := NewReplayer(NewTape())
	_, err := rep.Create(context.Background(), agent.ModelRequest{})
	if !errors.Is(err, ErrTapeExhausted) || !errors.Is(err, agent.ErrTransport) {
		t.Fatalf("Create() error = %v, want exhausted transport error", err)
	}
}

func TestReplayerStrictMismatch(t *testing.T) {
	tp, _ := record(t)
	rep := NewReplayer(tp).WithMode(ReplayStrict)

	if _, err := rep.Create(context.Background(), agent.ModelRequest{Messages: make([]agent.Message, 3)}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	rep.Run(context.Background(), "bash", json.RawMessage(`{ "command" : "echo hello" }`))
	rep.Run(context.Background(), "bash", json.RawMessage(`{"command":"ls"}`))
	result := rep.Run(context.Background(), "bash", nil)
	if !result.IsError() {
		t.Fatal("expected an error result once the turn's runs are used up")
	}

	fields := map[string]bool{}
	for _, m := range rep.Mismatches() {
		fields[m.Field] = true
	}
	for _, want := range []string{"message_count", "tool_name", "tool_input"} {
		if !fields[want] {
			t.Errorf("missing %s mismatch in %+v", want, rep.Mismatches())
		}
	}

	rep.Reset()
	if rep.CurrentTurn() != 0 || len(rep.Mismatches()) != 0 {
		t.Fatal("Reset() should rewind and clear mismatches")
	}
}

func TestUnmarshalRejectsUnknownVersion(t *testing.T) {
	if _, err := Unmarshal([]byte(`{"version":"9","turns":[]}`)); err == nil {
		t.Fatal("expected version error")
	}
}
