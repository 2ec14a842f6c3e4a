package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/haasonsaas/deskpilot/internal/agent"
)

// FailureReason categorizes why a model request failed. It is reported in
// logs and metrics; the loop never retries.
type FailureReason string

const (
	// FailureBilling indicates payment/quota issues (HTTP 402)
	FailureBilling FailureReason = "billing"

	// FailureRateLimit indicates rate limiting (HTTP 429)
	FailureRateLimit FailureReason = "rate_limit"

	// FailureAuth indicates authentication failure (HTTP 401, 403)
	FailureAuth FailureReason = "auth"

	// FailureTimeout indicates the request timeout elapsed
	FailureTimeout FailureReason = "timeout"

	// FailureServerError indicates server-side issues (HTTP 5xx)
	FailureServerError FailureReason = "server_error"

	// FailureInvalidRequest indicates client-side issues (HTTP 400)
	FailureInvalidRequest FailureReason = "invalid_request"

	// FailureModelUnavailable indicates the model is not available
	FailureModelUnavailable FailureReason = "model_unavailable"

	// FailureMalformedResponse indicates a response that could not be used
	FailureMalformedResponse FailureReason = "malformed_response"

	// FailureUnknown indicates an unclassified error
	FailureUnknown FailureReason = "unknown"
)

// ProviderError is a structured failure from a model provider.
type ProviderError struct {
	Reason    FailureReason
	Provider  string
	Model     string
	Status    int
	Code      string
	Message   string
	RequestID string
	Cause     error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	parts := []string{fmt.Sprintf("[%s]", e.Reason)}
	if e.Model != "" {
		parts = append(parts, "model="+e.Model)
	}
	if e.Code != "" {
		parts = append(parts, "code="+e.Code)
	}
	switch {
	case e.Message != "":
		parts = append(parts, e.Message)
	case e.Cause != nil:
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// newProviderError classifies cause and, when status is known, reclassifies
// by status code.
func newProviderError(provider, model string, status int, cause error) *ProviderError {
	err := &ProviderError{
		Provider: provider,
		Model:    model,
		Status:   status,
		Cause:    cause,
		Reason:   ClassifyError(cause),
	}
	if status != 0 {
		if reason := classifyStatusCode(status); reason != FailureUnknown {
			err.Reason = reason
		}
	}
	return err
}

// withCode reclassifies by a provider-specific error code.
func (e *ProviderError) withCode(code string) *ProviderError {
	e.Code = code
	if reason := classifyErrorCode(code); reason != FailureUnknown {
		e.Reason = reason
	}
	return e
}

// transportFailure wraps err for the controller with everything known about
// the exchange.
func transportFailure(exchange agent.Exchange, started time.Time, err *ProviderError) error {
	exchange.Duration = time.Since(started)
	exchange.StatusCode = err.Status
	exchange.RequestID = err.RequestID
	return &agent.TransportError{Exchange: exchange, Err: err}
}

// ClassifyError inspects an error and returns the appropriate FailureReason.
func ClassifyError(err error) FailureReason {
	if err == nil {
		return FailureUnknown
	}

	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "timeout"),
		strings.Contains(errStr, "deadline exceeded"),
		strings.Contains(errStr, "etimedout"):
		return FailureTimeout
	case strings.Contains(errStr, "rate limit"),
		strings.Contains(errStr, "rate_limit"),
		strings.Contains(errStr, "too many requests"):
		return FailureRateLimit
	case strings.Contains(errStr, "unauthorized"),
		strings.Contains(errStr, "invalid api key"),
		strings.Contains(errStr, "invalid_api_key"),
		strings.Contains(errStr, "authentication"):
		return FailureAuth
	case strings.Contains(errStr, "billing"),
		strings.Contains(errStr, "payment"),
		strings.Contains(errStr, "quota"),
		strings.Contains(errStr, "insufficient"):
		return FailureBilling
	case strings.Contains(errStr, "model not found"),
		strings.Contains(errStr, "model_not_found"),
		strings.Contains(errStr, "unavailable"):
		return FailureModelUnavailable
	case strings.Contains(errStr, "internal server"),
		strings.Contains(errStr, "server error"):
		return FailureServerError
	}
	return FailureUnknown
}

// classifyStatusCode returns a FailureReason based on HTTP status code.
func classifyStatusCode(status int) FailureReason {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return FailureAuth
	case status == http.StatusPaymentRequired:
		return FailureBilling
	case status == http.StatusTooManyRequests:
		return FailureRateLimit
	case status == http.StatusBadRequest:
		return FailureInvalidRequest
	case status == http.StatusNotFound:
		return FailureModelUnavailable
	case status >= 500:
		return FailureServerError
	default:
		return FailureUnknown
	}
}

// classifyErrorCode returns a FailureReason based on provider-specific error codes.
func classifyErrorCode(code string) FailureReason {
	switch strings.ToLower(code) {
	case "rate_limit_error", "rate_limit_exceeded":
		return FailureRateLimit
	case "authentication_error", "permission_error", "invalid_api_key":
		return FailureAuth
	case "billing_error", "insufficient_quota":
		return FailureBilling
	case "not_found_error", "model_not_found", "model_not_available":
		return FailureModelUnavailable
	case "api_error", "overloaded_error", "server_error", "internal_error":
		return FailureServerError
	case "invalid_request_error":
		return FailureInvalidRequest
	default:
		return FailureUnknown
	}
}

// GetProviderError extracts a ProviderError from an error chain.
func GetProviderError(err error) (*ProviderError, bool) {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr, true
	}
	return nil, false
}
