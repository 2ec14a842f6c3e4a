package tape

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/haasonsaas/deskpilot/internal/agent"
)

// Recorder wraps a model caller and a tool runner and records every
// interaction. It satisfies both agent.ModelCaller and agent.ToolRunner, so
// it can be handed to agent.NewController in place of each.
type Recorder struct {
	model agent.ModelCaller
	tools agent.ToolRunner

	mu      sync.Mutex
	tape    *Tape
	turnIdx int
}

// NewRecorder creates a recorder around model and tools.
func NewRecorder(model agent.ModelCaller, tools agent.ToolRunner) *Recorder {
	return &Recorder{model: model, tools: tools, tape: NewTape()}
}

// Create implements agent.ModelCaller. Failed calls are not recorded.
func (r *Recorder) Create(ctx context.Context, req agent.ModelRequest) (*agent.ModelResponse, error) {
	start := time.Now()
	resp, err := r.model.Create(ctx, req)
	if err != nil || resp == nil {
		return resp, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.tape.Turns) == 0 {
		r.tape.SystemPrompt = req.System
		r.tape.Tools = append([]agent.ToolDescriptor(nil), req.Tools...)
		r.tape.Initial = append([]agent.Message(nil), req.Messages...)
	}
	r.tape.Provider = resp.Exchange.Provider
	r.tape.Model = resp.Exchange.Model
	r.tape.AddTurn(Turn{
		Messages:   len(req.Messages),
		Response:   resp.Message,
		StopReason: resp.Exchange.StopReason,
		Usage:      resp.Exchange.Usage,
		Duration:   time.Since(start),
	})
	r.turnIdx = len(r.tape.Turns) - 1
	return resp, nil
}

// Run implements agent.ToolRunner, recording the call against the latest
// model turn.
func (r *Recorder) Run(ctx context.Context, name string, input json.RawMessage) agent.ToolResult {
	start := time.Now()
	result := r.tools.Run(ctx, name, input)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tape.AddToolRun(ToolRun{
		TurnIndex: r.turnIdx,
		Name:      name,
		Input:     append(json.RawMessage(nil), input...),
		Result:    result,
		Duration:  time.Since(start),
	})
	return result
}

// Descriptors implements agent.ToolRunner.
func (r *Recorder) Descriptors() []agent.ToolDescriptor {
	return r.tools.Descriptors()
}

// Tape returns a copy of what has been recorded so far.
func (r *Recorder) Tape() *Tape {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tape.Clone()
}
