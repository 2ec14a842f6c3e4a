package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/deskpilot/internal/observability"
)

// State is the controller's position in the loop.
//
//	awaiting_model -> dispatching_tools -> appending_results -> awaiting_model
//	       |                  |
//	       v                  v
//	    aborted             done (no tool_use blocks)
type State string

const (
	StateAwaitingModel    State = "awaiting_model"
	StateDispatchingTools State = "dispatching_tools"
	StateAppendingResults State = "appending_results"
	StateDone             State = "done"
	StateAborted          State = "aborted"
)

// Callbacks observe a run. Any of them may be nil.
type Callbacks struct {
	// OnOutput receives every block of every assistant message.
	OnOutput func(block ContentBlock)

	// OnToolOutput receives each tool result with the tool_use id it answers.
	OnToolOutput func(result ToolResult, toolUseID string)

	// OnAPIResponse receives every model exchange; err is set when the call failed.
	OnAPIResponse func(exchange Exchange, err error)

	// OnState receives each state transition.
	OnState func(state State)
}

// ToolRunner is the part of the registry the controller depends on.
type ToolRunner interface {
	Run(ctx context.Context, name string, input json.RawMessage) ToolResult
	Descriptors() []ToolDescriptor
}

// ControllerConfig holds per-run limits and the system prompt.
type ControllerConfig struct {
	// System is the full system prompt.
	System string

	// MaxTokens bounds each model response. Default: 4096
	MaxTokens int

	// OnlyNMostRecentImages caps screenshots kept in history; 0 keeps all.
	OnlyNMostRecentImages int

	// MaxIterations limits model turns; 0 means unlimited.
	MaxIterations int
}

// RunReport summarizes one call to Run.
type RunReport struct {
	RunID      string
	Iterations int
	ToolCalls  int
	FinalState State
	Duration   time.Duration
}

// Controller runs the request/execute/append loop between a model and the
// tool registry. A Controller runs one conversation at a time.
type Controller struct {
	model     ModelCaller
	tools     ToolRunner
	config    ControllerConfig
	callbacks Callbacks

	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithCallbacks sets the run observers.
func WithCallbacks(cb Callbacks) ControllerOption {
	return func(c *Controller) { c.callbacks = cb }
}

// WithLogger sets the logger.
func WithLogger(logger *observability.Logger) ControllerOption {
	return func(c *Controller) { c.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics *observability.Metrics) ControllerOption {
	return func(c *Controller) { c.metrics = metrics }
}

// WithTracer sets the tracer.
func WithTracer(tracer *observability.Tracer) ControllerOption {
	return func(c *Controller) { c.tracer = tracer }
}

// NewController wires a model caller to a tool runner.
func NewController(model ModelCaller, tools ToolRunner, config ControllerConfig, opts ...ControllerOption) *Controller {
	if config.MaxTokens <= 0 {
		config.MaxTokens = 4096
	}
	if config.OnlyNMostRecentImages < 0 {
		config.OnlyNMostRecentImages = 0
	}
	if config.MaxIterations < 0 {
		config.MaxIterations = 0
	}
	c := &Controller{
		model:  model,
		tools:  tools,
		config: config,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run drives the conversation until the model stops calling tools and
// returns the grown history. See RunWithReport.
func (c *Controller) Run(ctx context.Context, history []Message) ([]Message, error) {
	out, _, err := c.RunWithReport(ctx, history)
	return out, err
}

// RunWithReport is Run plus a summary of what happened.
//
// A failed model call ends the run with the history as it stood before the
// call and an error wrapping ErrTransport. Tool failures never end the run;
// they are reported to the model as error results.
func (c *Controller) RunWithReport(ctx context.Context, history []Message) (_ []Message, report RunReport, _ error) {
	if c.model == nil {
		return history, RunReport{FinalState: StateAborted}, ErrNoProvider
	}

	report = RunReport{RunID: uuid.NewString()}
	start := time.Now()
	ctx = observability.AddRunID(ctx, report.RunID)
	defer func() {
		report.Duration = time.Since(start)
		c.metrics.RecordLoopIterations(report.Iterations)
	}()

	state := func(s State) {
		report.FinalState = s
		if c.callbacks.OnState != nil {
			c.callbacks.OnState(s)
		}
	}

	descriptors := c.tools.Descriptors()
	history = append([]Message(nil), history...)

	for {
		if err := ctx.Err(); err != nil {
			state(StateAborted)
			return history, report, err
		}
		if c.config.MaxIterations > 0 && report.Iterations >= c.config.MaxIterations {
			state(StateAborted)
			return history, report, fmt.Errorf("%w (%d)", ErrMaxIterations, c.config.MaxIterations)
		}
		report.Iterations++
		iteration := report.Iterations

		state(StateAwaitingModel)
		if c.config.OnlyNMostRecentImages > 0 {
			history = FilterRecentImages(history, c.config.OnlyNMostRecentImages)
		}

		iterCtx, span := c.tracer.Start(ctx, "agent.iteration")
		c.tracer.SetAttributes(span, "loop.iteration", iteration, "loop.messages", len(history))

		resp, err := c.callModel(iterCtx, history, descriptors)
		if err != nil {
			c.tracer.RecordError(span, err)
			span.End()
			state(StateAborted)
			c.logger.Error(ctx, "model call failed", "iteration", iteration, "error", err)
			return history, report, &LoopError{Phase: StateAwaitingModel, Iteration: iteration, Cause: err}
		}

		assistant := resp.Message
		assistant.Role = RoleAssistant
		assignToolUseIDs(assistant.Content)
		history = append(history, assistant)

		for _, block := range assistant.Content {
			if c.callbacks.OnOutput != nil {
				c.callbacks.OnOutput(block)
			}
		}

		uses := assistant.ToolUses()
		if len(uses) == 0 {
			span.End()
			state(StateDone)
			c.logger.Info(ctx, "run finished", "iterations", iteration, "tool_calls", report.ToolCalls)
			return history, report, nil
		}

		state(StateDispatchingTools)
		results := make([]ToolResult, len(uses))
		for i, use := range uses {
			toolCtx := observability.AddToolCallID(iterCtx, use.ID)
			results[i] = c.tools.Run(toolCtx, use.Name, use.Input)
			report.ToolCalls++
			if c.callbacks.OnToolOutput != nil {
				c.callbacks.OnToolOutput(results[i], use.ID)
			}
		}

		state(StateAppendingResults)
		for i, use := range uses {
			history = append(history, Message{
				Role:    RoleTool,
				Content: []ContentBlock{results[i].Block(use.ID, use.Name)},
			})
		}
		// The follow-up user turn is omitted when the last result renders
		// nothing; providers reject empty user messages.
		if content := results[len(results)-1].APIContent(); len(content) > 0 {
			history = append(history, Message{Role: RoleUser, Content: content})
		}
		span.End()
	}
}

func (c *Controller) callModel(ctx context.Context, history []Message, tools []ToolDescriptor) (*ModelResponse, error) {
	ctx, span := c.tracer.Start(ctx, "agent.model_call")
	defer span.End()

	resp, err := c.model.Create(ctx, ModelRequest{
		System:    c.config.System,
		Messages:  history,
		Tools:     tools,
		MaxTokens: c.config.MaxTokens,
	})

	var exchange Exchange
	switch {
	case err != nil:
		var terr *TransportError
		if errors.As(err, &terr) {
			exchange = terr.Exchange
		}
		if !errors.Is(err, ErrTransport) {
			err = fmt.Errorf("%w: %w", ErrTransport, err)
		}
	case resp == nil:
		err = fmt.Errorf("%w: empty response", ErrTransport)
	default:
		exchange = resp.Exchange
	}

	status := "success"
	if err != nil {
		status = "error"
		c.tracer.RecordError(span, err)
		c.metrics.RecordError("controller", "transport")
	}
	c.metrics.RecordModelRequest(exchange.Provider, exchange.Model, status,
		exchange.Duration.Seconds(), exchange.Usage.InputTokens, exchange.Usage.OutputTokens)
	c.tracer.SetAttributes(span,
		"model.provider", exchange.Provider,
		"model.name", exchange.Model,
		"model.stop_reason", exchange.StopReason,
	)
	if c.callbacks.OnAPIResponse != nil {
		c.callbacks.OnAPIResponse(exchange, err)
	}
	return resp, err
}

// assignToolUseIDs fills in ids some OpenAI-compatible backends omit, so
// every tool_result can reference its call.
func assignToolUseIDs(blocks []ContentBlock) {
	for i := range blocks {
		if blocks[i].Type == BlockToolUse && blocks[i].ID == "" {
			blocks[i].ID = "toolu_" + uuid.NewString()
		}
	}
}
