// Package exec provides the bash tool, which runs shell commands on the
// controlled machine.
package exec

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/deskpilot/internal/agent"
	"github.com/haasonsaas/deskpilot/internal/observability"
)

// Request is the input of the bash tool.
type Request struct {
	Command string `json:"command,omitempty" jsonschema_description:"The shell command to run."`
	Restart bool   `json:"restart,omitempty" jsonschema_description:"Restart the tool instead of running a command."`
}

var requestSchema = agent.ReflectSchema(&Request{})

// Tool runs shell commands.
type Tool struct {
	manager *Manager
	logger  *observability.Logger
}

// NewTool creates the bash tool.
func NewTool(manager *Manager, logger *observability.Logger) *Tool {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Tool{manager: manager, logger: logger}
}

func (t *Tool) Name() string { return "bash" }

func (t *Tool) Description() string {
	return "Run a command in a bash shell.\n" +
		"* State is not kept between calls; chain commands with && when they depend on each other.\n" +
		"* Avoid commands that produce very large output or never exit."
}

func (t *Tool) Schema() json.RawMessage { return requestSchema }

func (t *Tool) Execute(ctx context.Context, input json.RawMessage) (agent.ToolResult, error) {
	var req Request
	if err := agent.DecodeInput(input, &req); err != nil {
		return agent.ToolResult{}, err
	}
	if req.Restart {
		return agent.ToolResult{Output: "Tool restarted"}, nil
	}
	if strings.TrimSpace(req.Command) == "" {
		return agent.ToolResult{}, agent.Validationf("no command provided")
	}
	if t.manager == nil {
		return agent.ToolResult{}, agent.Execution("command execution failed", fmt.Errorf("exec manager unavailable"))
	}

	res, err := t.manager.RunCommand(ctx, req.Command)
	if err != nil {
		return agent.ToolResult{}, agent.Execution("command execution failed", err)
	}
	t.logger.Debug(ctx, "command finished",
		"exit_code", res.ExitCode, "duration_ms", res.Duration.Milliseconds())

	if res.ExitCode != 0 {
		return agent.ErrorResult(fmt.Sprintf("Command failed with code %d\n%s", res.ExitCode, res.Stderr)), nil
	}
	result := agent.ToolResult{Output: res.Stdout}
	if res.Stderr != "" {
		result = result.WithSystem(res.Stderr)
	}
	if res.Truncated {
		result = result.WithSystem(fmt.Sprintf("output truncated to %d bytes per stream", t.manager.maxOutput))
	}
	return result, nil
}
