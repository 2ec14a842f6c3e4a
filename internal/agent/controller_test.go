package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type scriptedModel struct {
	responses []Message
	err       error
	requests  []ModelRequest
}

func (m *scriptedModel) Create(_ context.Context, req ModelRequest) (*ModelResponse, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, &TransportError{Exchange: Exchange{Provider: "fake", StatusCode: 502}, Err: m.err}
	}
	if len(m.requests) > len(m.responses) {
		return &ModelResponse{Message: Message{Role: RoleAssistant, Content: []ContentBlock{TextBlock("done")}}}, nil
	}
	return &ModelResponse{
		Message:  m.responses[len(m.requests)-1],
		Exchange: Exchange{Provider: "fake", Model: "fake-1", StatusCode: 200},
	}, nil
}

type screenshotTool struct {
	calls int
}

func (t *screenshotTool) Name() string        { return "computer" }
func (t *screenshotTool) Description() string { return "fake computer" }
func (t *screenshotTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"action":{"type":"string"}},"required":["action"]}`)
}
func (t *screenshotTool) Execute(context.Context, json.RawMessage) (ToolResult, error) {
	t.calls++
	return ToolResult{Image: []byte{0x89, 'P', 'N', 'G', byte(t.calls)}}, nil
}

func screenshotCall(id string) Message {
	return Message{Role: RoleAssistant, Content: []ContentBlock{
		TextBlock("looking"),
		ToolUseBlock(id, "computer", json.RawMessage(`{"action":"screenshot"}`)),
	}}
}

func newTestRegistry(t *testing.T, tools ...Tool) *ToolRegistry {
	t.Helper()
	reg := NewToolRegistry()
	for _, tool := range tools {
		if err := reg.Register(tool); err != nil {
			t.Fatalf("Register(%s) error = %v", tool.Name(), err)
		}
	}
	return reg
}

func imagesIn(history []Message) int {
	n := 0
	for _, msg := range history {
		n += countImages(msg.Content)
	}
	return n
}

func TestControllerScreenshotRoundTrip(t *testing.T) {
	model := &scriptedModel{responses: []Message{screenshotCall("toolu_1")}}
	tool := &screenshotTool{}

	var outputs []ContentBlock
	var toolIDs []string
	var states []State
	controller := NewController(model, newTestRegistry(t, tool), ControllerConfig{System: "sys"}, WithCallbacks(Callbacks{
		OnOutput:     func(b ContentBlock) { outputs = append(outputs, b) },
		OnToolOutput: func(_ ToolResult, id string) { toolIDs = append(toolIDs, id) },
		OnState:      func(s State) { states = append(states, s) },
	}))

	history, report, err := controller.RunWithReport(context.Background(), []Message{UserText("take a screenshot")})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// user, assistant(tool_use), tool, user(image), assistant(done)
	wantRoles := []Role{RoleUser, RoleAssistant, RoleTool, RoleUser, RoleAssistant}
	if len(history) != len(wantRoles) {
		t.Fatalf("history length = %d, want %d", len(history), len(wantRoles))
	}
	for i, role := range wantRoles {
		if history[i].Role != role {
			t.Errorf("history[%d].Role = %s, want %s", i, history[i].Role, role)
		}
	}

	toolMsg := history[2].Content[0]
	if toolMsg.Type != BlockToolResult || toolMsg.ToolUseID != "toolu_1" || toolMsg.Name != "computer" || toolMsg.IsError {
		t.Errorf("tool message block = %+v", toolMsg)
	}
	if imagesIn(history[3:4]) != 1 {
		t.Errorf("follow-up user message should carry the screenshot: %+v", history[3])
	}

	if tool.calls != 1 {
		t.Errorf("tool calls = %d, want 1", tool.calls)
	}
	if len(toolIDs) != 1 || toolIDs[0] != "toolu_1" {
		t.Errorf("tool output callback ids = %v", toolIDs)
	}
	if len(outputs) != 3 {
		t.Errorf("output callback blocks = %d, want 3", len(outputs))
	}
	if report.Iterations != 2 || report.ToolCalls != 1 || report.FinalState != StateDone {
		t.Errorf("report = %+v", report)
	}
	if states[len(states)-1] != StateDone {
		t.Errorf("final state = %s", states[len(states)-1])
	}
	if model.requests[0].System != "sys" || len(model.requests[0].Tools) != 1 || model.requests[0].MaxTokens != 4096 {
		t.Errorf("first request = %+v", model.requests[0])
	}
}

func TestControllerRetainsRecentImagesAcrossTurns(t *testing.T) {
	model := &scriptedModel{responses: []Message{
		screenshotCall("a"),
		screenshotCall("b"),
		screenshotCall("c"),
	}}
	controller := NewController(model, newTestRegistry(t, &screenshotTool{}), ControllerConfig{OnlyNMostRecentImages: 2})

	history, err := controller.Run(context.Background(), []Message{UserText("go")})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []int{0, 1, 2, 2}
	if len(model.requests) != len(want) {
		t.Fatalf("model calls = %d, want %d", len(model.requests), len(want))
	}
	for i, n := range want {
		if got := imagesIn(model.requests[i].Messages); got != n {
			t.Errorf("request %d carried %d images, want %d", i, got, n)
		}
	}
	if got := imagesIn(history); got != 2 {
		t.Fatalf("final history images = %d, want 2", got)
	}

	// The survivors are the two newest screenshots.
	var payloads []byte
	for _, msg := range history {
		for _, block := range msg.Content {
			if block.Type == BlockImage {
				payloads = append(payloads, block.Data[4])
			}
		}
	}
	if len(payloads) != 2 || payloads[0] != 2 || payloads[1] != 3 {
		t.Fatalf("kept screenshots = %v, want [2 3]", payloads)
	}
}

type silentTool struct{}

func (silentTool) Name() string { return "bash" }
func (silentTool) Description() string { return "fake shell" }
func (silentTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (silentTool) Execute(context.Context, json.RawMessage) (ToolResult, error) { return ToolResult{}, nil }

func TestControllerSkipsEmptyFollowUpTurn(t *testing.T) {
	model := &scriptedModel{responses: []Message{{Role: RoleAssistant, Content: []ContentBlock{
		ToolUseBlock("toolu_1", "bash", json.RawMessage(`{"command":"true"}`)),
	}}}}
	controller := NewController(model, newTestRegistry(t, silentTool{}), ControllerConfig{})

	history, err := controller.Run(context.Background(), []Message{UserText("run it")})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	wantRoles := []Role{RoleUser, RoleAssistant, RoleTool, RoleAssistant}
	if len(history) != len(wantRoles) {
		t.Fatalf("history has %d messages, want %d", len(history), len(wantRoles))
	}
	for i, role := range wantRoles {
		if history[i].Role != role {
			t.Fatalf("history[%d].Role = %s, want %s", i, history[i].Role, role)
		}
	}
	if got := len(model.requests[1].Messages); got != 3 {
		t.Fatalf("second request carried %d messages, want 3", got)
	}
	if block := history[2].Content[0]; block.Type != BlockToolResult || len(block.Content) != 0 {
		t.Fatalf("tool message = %+v, want an empty tool_result", block)
	}
}

func TestControllerAbortsOnTransportError(t *testing.T) {
	model := &scriptedModel{err: errors.New("bad gateway")}

	var apiErr error
	var apiExchange Exchange
	controller := NewController(model, newTestRegistry(t, &screenshotTool{}), ControllerConfig{}, WithCallbacks(Callbacks{
		OnAPIResponse: func(ex Exchange, err error) {
			apiExchange = ex
			apiErr = err
		},
	}))

	input := []Message{UserText("hi")}
	history, report, err := controller.RunWithReport(context.Background(), input)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("Run() error = %v, want ErrTransport", err)
	}
	var loopErr *LoopError
	if !errors.As(err, &loopErr) || loopErr.Iteration != 1 {
		t.Fatalf("Run() error = %v, want LoopError at iteration 1", err)
	}
	if len(history) != 1 {
		t.Fatalf("history length = %d, want unchanged 1", len(history))
	}
	if apiErr == nil || apiExchange.StatusCode != 502 {
		t.Fatalf("api callback = (%+v, %v)", apiExchange, apiErr)
	}
	if report.FinalState != StateAborted {
		t.Fatalf("final state = %s, want aborted", report.FinalState)
	}
}

func TestControllerUnknownToolIsReportedToModel(t *testing.T) {
	model := &scriptedModel{responses: []Message{{Role: RoleAssistant, Content: []ContentBlock{
		ToolUseBlock("x1", "teleport", json.RawMessage(`{}`)),
	}}}}
	controller := NewController(model, newTestRegistry(t), ControllerConfig{})

	history, err := controller.Run(context.Background(), []Message{UserText("go")})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	result := history[2].Content[0]
	if !result.IsError || len(result.Content) != 1 || result.Content[0].Text != "tool not found: teleport" {
		t.Fatalf("tool result = %+v", result)
	}
	if history[3].Role != RoleUser || history[3].Content[0].Text != "tool not found: teleport" {
		t.Fatalf("follow-up = %+v", history[3])
	}
}

func TestControllerMaxIterations(t *testing.T) {
	model := &scriptedModel{responses: []Message{screenshotCall("a"), screenshotCall("b"), screenshotCall("c")}}
	controller := NewController(model, newTestRegistry(t, &screenshotTool{}), ControllerConfig{MaxIterations: 2})

	history, err := controller.Run(context.Background(), []Message{UserText("go")})
	if !errors.Is(err, ErrMaxIterations) {
		t.Fatalf("Run() error = %v, want ErrMaxIterations", err)
	}
	if len(model.requests) != 2 {
		t.Fatalf("model calls = %d, want 2", len(model.requests))
	}
	if len(history) != 7 {
		t.Fatalf("history length = %d, want 7", len(history))
	}
}

func TestControllerAssignsMissingToolUseIDs(t *testing.T) {
	model := &scriptedModel{responses: []Message{screenshotCall("")}}
	controller := NewController(model, newTestRegistry(t, &screenshotTool{}), ControllerConfig{})

	history, err := controller.Run(context.Background(), []Message{UserText("go")})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	id := history[1].Content[1].ID
	if id == "" || history[2].Content[0].ToolUseID != id {
		t.Fatalf("tool_use id %q not carried to result %+v", id, history[2].Content[0])
	}
}

func TestControllerHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	model := &scriptedModel{}
	controller := NewController(model, newTestRegistry(t), ControllerConfig{})

	if _, err := controller.Run(ctx, []Message{UserText("go")}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if len(model.requests) != 0 {
		t.Fatalf("model called %d times after cancellation", len(model.requests))
	}
}

func TestControllerWithoutModel(t *testing.T) {
	controller := NewController(nil, newTestRegistry(t), ControllerConfig{})
	if _, err := controller.Run(context.Background(), nil); !errors.Is(err, ErrNoProvider) {
		t.Fatalf("Run() error = %v, want ErrNoProvider", err)
	}
}

func TestTransportErrorWithoutCause(t *testing.T) {
	err := &TransportError{Exchange: Exchange{Provider: "fake", StatusCode: 503}}
	if got, want := err.Error(), "fake request failed (status 503): model transport failed"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrTransport) {
		t.Fatal("expected errors.Is(err, ErrTransport)")
	}

	model := &nilCauseModel{}
	controller := NewController(model, newTestRegistry(t), ControllerConfig{})
	history, runErr := controller.Run(context.Background(), []Message{UserText("hi")})
	if !errors.Is(runErr, ErrTransport) || len(history) != 1 {
		t.Fatalf("Run() = %d messages, %v", len(history), runErr)
	}
}

type nilCauseModel struct{}

func (nilCauseModel) Create(context.Context, ModelRequest) (*ModelResponse, error) {
	return nil, &TransportError{Exchange: Exchange{Provider: "fake"}}
}
