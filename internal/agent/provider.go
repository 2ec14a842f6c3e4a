package agent

import (
	"context"
	"strconv"
	"time"
)

// ModelCaller sends one request to a language model.
//
// Implementations must not retry; a returned error aborts the run.
type ModelCaller interface {
	Create(ctx context.Context, req ModelRequest) (*ModelResponse, error)
}

// ModelRequest is a provider-neutral model call.
type ModelRequest struct {
	System    string
	Messages  []Message
	Tools     []ToolDescriptor
	MaxTokens int
}

// ModelResponse is the assistant turn plus call metadata.
type ModelResponse struct {
	Message  Message
	Exchange Exchange
}

// Exchange describes a completed or failed model call for the API response
// callback and for metrics.
type Exchange struct {
	Provider   string
	Model      string
	StatusCode int
	StopReason string
	Duration   time.Duration
	Usage      Usage

	// RequestID is the provider's request identifier when known.
	RequestID string
}

// Usage is token accounting for one call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// TransportError carries what is known about a failed model call. Providers
// return it so the controller can report the exchange; it unwraps to
// ErrTransport.
type TransportError struct {
	Exchange Exchange
	Err      error
}

func (e *TransportError) Error() string {
	cause := ErrTransport.Error()
	if e.Err != nil {
		cause = e.Err.Error()
	}
	if e.Exchange.StatusCode != 0 {
		return e.Exchange.Provider + " request failed (status " + strconv.Itoa(e.Exchange.StatusCode) + "): " + cause
	}
	return e.Exchange.Provider + " request failed: " + cause
}

func (e *TransportError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransport}
	}
	return []error{ErrTransport, e.Err}
}
