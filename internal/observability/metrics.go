package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for the agent loop and its tools.
//
// Every recording method is safe to call on a nil *Metrics so components can
// be built without a registry in tests and one-shot commands.
//
// Usage:
//
//	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
//	metrics.RecordToolExecution("computer", "left_click", "success", time.Since(start).Seconds())
type Metrics struct {
	// ModelRequestCounter counts model round trips.
	// Labels: provider, model, status (success|error)
	ModelRequestCounter *prometheus.CounterVec

	// ModelRequestDuration measures model latency in seconds.
	// Labels: provider, model
	ModelRequestDuration *prometheus.HistogramVec

	// ModelTokensUsed tracks token consumption.
	// Labels: provider, model, type (prompt|completion)
	ModelTokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, action, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// ScreenshotBytes observes encoded screenshot payload sizes.
	// Labels: candidate (full|half|gray|half_gray)
	ScreenshotBytes *prometheus.HistogramVec

	// ScreenshotOverBudget counts screenshots that exceeded the byte budget.
	ScreenshotOverBudget prometheus.Counter

	// SnapCounter counts icon snapping attempts.
	// Labels: outcome (snapped|missed)
	SnapCounter *prometheus.CounterVec

	// LoopIterations observes how many model turns a run took.
	LoopIterations prometheus.Histogram

	// ErrorCounter tracks errors by component and type.
	// Labels: component (controller|tool|provider|desktop), error_type
	ErrorCounter *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them with reg. A nil reg
// creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ModelRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskpilot_model_requests_total",
				Help: "Total number of model requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		ModelRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deskpilot_model_request_duration_seconds",
				Help:    "Duration of model requests in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"provider", "model"},
		),

		ModelTokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskpilot_model_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		ToolExecutionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskpilot_tool_executions_total",
				Help: "Total number of tool executions by tool, action, and status",
			},
			[]string{"tool_name", "action", "status"},
		),

		ToolExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deskpilot_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 120},
			},
			[]string{"tool_name"},
		),

		ScreenshotBytes: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deskpilot_screenshot_bytes",
				Help:    "Encoded screenshot size in bytes by cascade candidate",
				Buckets: prometheus.ExponentialBuckets(64<<10, 2, 8),
			},
			[]string{"candidate"},
		),

		ScreenshotOverBudget: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "deskpilot_screenshot_over_budget_total",
				Help: "Screenshots sent although every candidate exceeded the byte budget",
			},
		),

		SnapCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskpilot_snap_attempts_total",
				Help: "Icon snapping attempts by outcome",
			},
			[]string{"outcome"},
		),

		LoopIterations: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "deskpilot_loop_iterations",
				Help:    "Model turns per controller run",
				Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
			},
		),

		ErrorCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskpilot_errors_total",
				Help: "Total number of errors by component and error type",
			},
			[]string{"component", "error_type"},
		),
	}
}

// RecordModelRequest records one model round trip.
func (m *Metrics) RecordModelRequest(provider, model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	if m == nil {
		return
	}
	m.ModelRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.ModelRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.ModelTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.ModelTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordToolExecution records one tool call. action may be empty for tools
// without sub-commands.
func (m *Metrics) RecordToolExecution(toolName, action, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ToolExecutionCounter.WithLabelValues(toolName, action, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordScreenshot records the chosen cascade candidate and its size.
func (m *Metrics) RecordScreenshot(candidate string, size int, overBudget bool) {
	if m == nil {
		return
	}
	m.ScreenshotBytes.WithLabelValues(candidate).Observe(float64(size))
	if overBudget {
		m.ScreenshotOverBudget.Inc()
	}
}

// RecordSnap records whether a click target was snapped to an icon.
func (m *Metrics) RecordSnap(snapped bool) {
	if m == nil {
		return
	}
	outcome := "missed"
	if snapped {
		outcome = "snapped"
	}
	m.SnapCounter.WithLabelValues(outcome).Inc()
}

// RecordLoopIterations observes the number of model turns in a run.
func (m *Metrics) RecordLoopIterations(n int) {
	if m == nil {
		return
	}
	m.LoopIterations.Observe(float64(n))
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, errorType string) {
	if m == nil {
		return
	}
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}
