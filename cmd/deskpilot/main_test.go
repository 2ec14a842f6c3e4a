package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/deskpilot/internal/agent"
	"github.com/haasonsaas/deskpilot/internal/agent/tape"
)

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	for _, name := range []string{"run", "geometry", "screenshot", "tools", "config"} {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestParsePoint(t *testing.T) {
	tests := []struct {
		in      string
		x, y    int
		wantErr bool
	}{
		{"640,400", 640, 400, false},
		{" 10 , 20 ", 10, 20, false},
		{"640", 0, 0, true},
		{"a,1", 0, 0, true},
		{"1,2,3", 0, 0, true},
	}
	for _, tt := range tests {
		x, y, err := parsePoint(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("parsePoint(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if !tt.wantErr && (x != tt.x || y != tt.y) {
			t.Fatalf("parsePoint(%q) = %d,%d", tt.in, x, y)
		}
	}
}

func TestReadPrompt(t *testing.T) {
	got, err := readPrompt(strings.NewReader("\n  open the browser\nthen search\n\n"))
	if err != nil {
		t.Fatalf("readPrompt() error = %v", err)
	}
	if got != "open the browser\nthen search" {
		t.Fatalf("readPrompt() = %q", got)
	}
	if _, err := readPrompt(strings.NewReader("  \n")); err == nil {
		t.Fatal("expected error for empty prompt")
	}
}

func TestConfigSchemaCommand(t *testing.T) {
	cmd := buildRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "schema"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config schema error = %v", err)
	}
	var schema map[string]any
	if err := json.Unmarshal(out.Bytes(), &schema); err != nil {
		t.Fatalf("schema output is not JSON: %v", err)
	}
}

func TestConfigValidateCommand(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(good, []byte("version: 1\nmodel:\n  provider: anthropic\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bad, []byte("version: 1\nmodel:\n  provider: bedrock\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { configPath = "" })

	cmd := buildRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "validate", "--config", good})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("validate good config: %v", err)
	}
	if !strings.Contains(out.String(), "ok (provider=anthropic") {
		t.Fatalf("output = %q", out.String())
	}

	cmd = buildRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"config", "validate", "--config", bad})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "model.provider") {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestTranscript(t *testing.T) {
	var out bytes.Buffer
	tr := newTranscript(&out)
	cb := tr.Callbacks()

	cb.OnOutput(agent.TextBlock("Let me look."))
	cb.OnOutput(agent.ToolUseBlock("toolu_1", "bash", json.RawMessage(`{"command":"ls"}`)))
	cb.OnToolOutput(agent.ToolResult{Output: strings.Repeat("line\n", 20)}, "toolu_1")
	cb.OnToolOutput(agent.ToolResult{Error: "boom", System: "tool must be restarted"}, "toolu_2")
	cb.OnToolOutput(agent.ToolResult{Image: []byte{1, 2, 3}}, "toolu_3")
	tr.Summary(agent.RunReport{FinalState: agent.StateDone, Iterations: 2, ToolCalls: 3, Duration: 1500 * time.Millisecond})

	got := out.String()
	for _, want := range []string{
		"Let me look.",
		"Running: ls",
		"12 more lines",
		"boom",
		"tool must be restarted",
		"[screenshot, 3 bytes]",
		"done after 2 turns, 3 tool calls in 1.5s",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("transcript missing %q:\n%s", want, got)
		}
	}
}

func TestRunReplaysTape(t *testing.T) {
	recorded := tape.NewTape()
	recorded.Initial = []agent.Message{agent.UserText("check the disk")}
	recorded.Tools = []agent.ToolDescriptor{{Name: "bash", Schema: json.RawMessage(`{"type":"object"}`)}}
	recorded.AddTurn(tape.Turn{Messages: 1, Response: agent.Message{
		Role: agent.RoleAssistant,
		Content: []agent.ContentBlock{
			agent.ToolUseBlock("toolu_1", "bash", json.RawMessage(`{"command":"df -h"}`)),
		},
	}})
	recorded.AddToolRun(tape.ToolRun{TurnIndex: 0, Name: "bash", Result: agent.ToolResult{Output: "/dev/sda1 40%"}})
	recorded.AddTurn(tape.Turn{Messages: 4, Response: agent.Message{
		Role:    agent.RoleAssistant,
		Content: []agent.ContentBlock{agent.TextBlock("The disk is 40% full.")},
	}})

	dir := t.TempDir()
	replayPath := filepath.Join(dir, "in.tape.json")
	recordPath := filepath.Join(dir, "out.tape.json")
	if err := recorded.Save(replayPath); err != nil {
		t.Fatal(err)
	}

	cmd := buildRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"run", "--replay", replayPath, "--record", recordPath})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("run --replay error = %v", err)
	}

	for _, want := range []string{"Running: df -h", "/dev/sda1 40%", "The disk is 40% full.", "done after 2 turns, 1 tool calls"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}

	rerecorded, err := tape.Load(recordPath)
	if err != nil {
		t.Fatalf("Load(recorded) error = %v", err)
	}
	if len(rerecorded.Turns) != 2 || len(rerecorded.ToolRuns) != 1 {
		t.Fatalf("re-recorded tape has %d turns and %d tool runs", len(rerecorded.Turns), len(rerecorded.ToolRuns))
	}
}
