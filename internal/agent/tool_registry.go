package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/deskpilot/internal/observability"
)

// Tool parameter limits to prevent resource exhaustion
const (
	// MaxToolNameLength is the maximum length of a tool name.
	MaxToolNameLength = 256

	// MaxToolParamsSize is the maximum size of tool input JSON (10MB).
	MaxToolParamsSize = 10 << 20
)

// ToolRegistry holds the tools offered to the model and runs them by name.
// Registration happens once at startup; Run is safe for concurrent use.
type ToolRegistry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
	order   []string

	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// RegistryOption configures a ToolRegistry.
type RegistryOption func(*ToolRegistry)

// WithRegistryLogger sets the logger used for per-call records.
func WithRegistryLogger(logger *observability.Logger) RegistryOption {
	return func(r *ToolRegistry) { r.logger = logger }
}

// WithRegistryMetrics sets the metrics sink.
func WithRegistryMetrics(metrics *observability.Metrics) RegistryOption {
	return func(r *ToolRegistry) { r.metrics = metrics }
}

// WithRegistryTracer sets the tracer for tool spans.
func WithRegistryTracer(tracer *observability.Tracer) RegistryOption {
	return func(r *ToolRegistry) { r.tracer = tracer }
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry(opts ...RegistryOption) *ToolRegistry {
	r := &ToolRegistry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
		logger:  observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a tool and compiles its input schema. Registering a name
// twice replaces the earlier tool but keeps its position.
func (r *ToolRegistry) Register(tool Tool) error {
	name := tool.Name()
	if name == "" || len(name) > MaxToolNameLength {
		return fmt.Errorf("invalid tool name %q", name)
	}
	schema, err := jsonschema.CompileString(name+".schema.json", string(tool.Schema()))
	if err != nil {
		return fmt.Errorf("compile schema for tool %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = tool
	r.schemas[name] = schema
	return nil
}

// MustRegister is Register for startup wiring.
func (r *ToolRegistry) MustRegister(tools ...Tool) {
	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			panic(err)
		}
	}
}

// Get returns a tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Descriptors lists the registered tools in registration order.
func (r *ToolRegistry) Descriptors() []ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolDescriptor, 0, len(r.order))
	for _, name := range r.order {
		tool := r.tools[name]
		out = append(out, ToolDescriptor{
			Name:        name,
			Description: tool.Description(),
			Schema:      tool.Schema(),
		})
	}
	return out
}

// Run executes the named tool. Every failure, including unknown names,
// schema violations and panics, comes back as a ToolResult with Error set.
func (r *ToolRegistry) Run(ctx context.Context, name string, input json.RawMessage) ToolResult {
	start := time.Now()
	action := actionOf(input)

	ctx, span := r.tracer.TraceToolExecution(ctx, name, observability.GetToolCallID(ctx))
	defer span.End()

	result, err := r.run(ctx, name, input)
	if err != nil {
		result = ErrorResult(err.Error())
	}

	status := "success"
	if result.IsError() {
		status = "error"
		errType := classifyToolError(err)
		r.metrics.RecordError("tool", string(errType))
		r.tracer.RecordError(span, errors.New(result.Error))
		r.logger.Warn(ctx, "tool failed",
			"tool", name,
			"action", action,
			"error_type", string(errType),
			"error", result.Error,
		)
	} else {
		r.logger.Info(ctx, "tool finished",
			"tool", name,
			"action", action,
			"duration_ms", time.Since(start).Milliseconds(),
			"image_bytes", len(result.Image),
		)
	}
	r.tracer.SetAttributes(span, "tool.action", action, "tool.status", status)
	r.metrics.RecordToolExecution(name, action, status, time.Since(start).Seconds())
	return result
}

func (r *ToolRegistry) run(ctx context.Context, name string, input json.RawMessage) (result ToolResult, err error) {
	if len(name) > MaxToolNameLength {
		return ToolResult{}, Validationf("tool name exceeds maximum length of %d characters", MaxToolNameLength)
	}
	if len(input) > MaxToolParamsSize {
		return ToolResult{}, Validationf("tool input exceeds maximum size of %d bytes", MaxToolParamsSize)
	}

	r.mu.RLock()
	tool, ok := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return ToolResult{}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	if err := validateInput(schema, input); err != nil {
		return ToolResult{}, err
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error(ctx, "tool panicked", "tool", name, "panic", fmt.Sprint(rec), "stack", string(debug.Stack()))
			result = ToolResult{}
			err = fmt.Errorf("%w: %v", ErrToolPanic, rec)
		}
	}()
	return tool.Execute(ctx, input)
}

func validateInput(schema *jsonschema.Schema, input json.RawMessage) error {
	if schema == nil {
		return nil
	}
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	var decoded any
	if err := json.Unmarshal(input, &decoded); err != nil {
		return Validationf("invalid input: %v", err)
	}
	if err := schema.Validate(decoded); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return Validationf("invalid input: %s", basicMessage(verr))
		}
		return Validationf("invalid input: %v", err)
	}
	return nil
}

// basicMessage flattens the deepest validation failure into one line.
func basicMessage(verr *jsonschema.ValidationError) string {
	leaf := verr
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	if leaf.InstanceLocation == "" {
		return leaf.Message
	}
	return leaf.InstanceLocation + ": " + leaf.Message
}

// actionOf extracts the sub-command of a tool call for logs and metrics.
func actionOf(input json.RawMessage) string {
	var probe struct {
		Action  string `json:"action"`
		Command string `json:"command"`
	}
	if json.Unmarshal(input, &probe) != nil {
		return ""
	}
	if probe.Action != "" {
		return probe.Action
	}
	// bash commands are free text; only editor sub-commands are labels.
	if editorCommands[probe.Command] {
		return probe.Command
	}
	return ""
}

var editorCommands = map[string]bool{
	"view":        true,
	"create":      true,
	"str_replace": true,
	"insert":      true,
	"undo_edit":   true,
}
