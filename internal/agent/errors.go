package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for driver operations.
var (
	// ErrEmptyInput indicates a driver was invoked with a blank input message.
	// Distinguished from provider/API failures so callers can re-prompt.
	ErrEmptyInput = errors.New("empty input message")

	// ErrMaxIterations indicates the inner agentic loop hit its iteration cap.
	ErrMaxIterations = errors.New("max iterations exceeded")

	// ErrNoProvider indicates no LLM provider could be resolved for a model.
	ErrNoProvider = errors.New("no provider configured")

	// ErrEmptyResponse indicates the sanitizer rejected an assistant message
	// because no content blocks survived.
	ErrEmptyResponse = errors.New("assistant produced no content")
)

// FailoverReason categorizes why a provider request failed. The orchestrator
// branches on this to decide between retry, synthetic-text surfacing, and
// hard exit.
type FailoverReason string

const (
	// FailoverRateLimit indicates rate limiting (HTTP 429).
	FailoverRateLimit FailoverReason = "rate_limit"

	// FailoverAuth indicates authentication failure (HTTP 401, 403).
	FailoverAuth FailoverReason = "auth"

	// FailoverTimeout indicates a request timeout.
	FailoverTimeout FailoverReason = "timeout"

	// FailoverServerError indicates server-side issues (HTTP 5xx).
	FailoverServerError FailoverReason = "server_error"

	// FailoverContextLength indicates the conversation no longer fits the
	// model context window (HTTP 400 subfamily).
	FailoverContextLength FailoverReason = "context_length"

	// FailoverInvalidRequest indicates other client-side issues (HTTP 400),
	// typically a malformed history that the sanitizer should have prevented.
	FailoverInvalidRequest FailoverReason = "invalid_request"

	// FailoverCancelled indicates the stream was aborted by the caller.
	FailoverCancelled FailoverReason = "cancelled"

	// FailoverUnknown indicates an unclassified error.
	FailoverUnknown FailoverReason = "unknown"
)

// IsRetryable reports whether the reason suggests a retry may succeed.
func (r FailoverReason) IsRetryable() bool {
	switch r {
	case FailoverRateLimit, FailoverTimeout, FailoverServerError:
		return true
	default:
		return false
	}
}

// ProviderError is a structured error from an LLM provider with enough
// context for the orchestrator's error policy and for debugging.
type ProviderError struct {
	// Reason categorizes the error.
	Reason FailoverReason

	// Provider is the provider tag ("anthropic", "qwen", "mock").
	Provider string

	// Model is the model that was requested.
	Model string

	// Status is the HTTP status code, if applicable.
	Status int

	// Code is the provider-specific error code.
	Code string

	// Message is the human-readable error message.
	Message string

	// RequestID is the provider's request id for debugging.
	RequestID string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s]", e.Reason))
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error { return e.Cause }

// NewProviderError creates a ProviderError classified from its cause.
func NewProviderError(provider, model string, cause error) *ProviderError {
	err := &ProviderError{
		Provider: provider,
		Model:    model,
		Cause:    cause,
		Reason:   FailoverUnknown,
	}
	if cause != nil {
		err.Message = cause.Error()
		err.Reason = ClassifyError(cause)
	}
	return err
}

// WithStatus adds the HTTP status and reclassifies.
func (e *ProviderError) WithStatus(status int) *ProviderError {
	e.Status = status
	if reason := classifyStatusCode(status); reason != FailoverUnknown {
		e.Reason = reason
	}
	// A 400 whose message complains about prompt size is the context-length
	// subfamily, not a generic invalid request.
	if e.Reason == FailoverInvalidRequest && looksLikeContextLength(e.Message) {
		e.Reason = FailoverContextLength
	}
	return e
}

// WithCode adds a provider-specific error code and reclassifies if known.
func (e *ProviderError) WithCode(code string) *ProviderError {
	e.Code = code
	if reason := classifyErrorCode(code); reason != FailoverUnknown {
		e.Reason = reason
	}
	return e
}

// WithRequestID adds the provider's request id.
func (e *ProviderError) WithRequestID(id string) *ProviderError {
	e.RequestID = id
	return e
}

// WithMessage sets the error message and rechecks the context-length family.
func (e *ProviderError) WithMessage(msg string) *ProviderError {
	e.Message = msg
	if e.Reason == FailoverInvalidRequest && looksLikeContextLength(msg) {
		e.Reason = FailoverContextLength
	}
	return e
}

// ClassifyError inspects an error string and returns a FailoverReason.
func ClassifyError(err error) FailoverReason {
	if err == nil {
		return FailoverUnknown
	}
	if errors.Is(err, context.Canceled) {
		return FailoverCancelled
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "context canceled") ||
		strings.Contains(errStr, "operation was canceled") {
		return FailoverCancelled
	}
	if looksLikeContextLength(errStr) {
		return FailoverContextLength
	}
	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") {
		return FailoverTimeout
	}
	if strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "rate_limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "429") {
		return FailoverRateLimit
	}
	if strings.Contains(errStr, "unauthorized") ||
		strings.Contains(errStr, "invalid api key") ||
		strings.Contains(errStr, "invalid_api_key") ||
		strings.Contains(errStr, "authentication") ||
		strings.Contains(errStr, "401") ||
		strings.Contains(errStr, "403") {
		return FailoverAuth
	}
	if strings.Contains(errStr, "internal server") ||
		strings.Contains(errStr, "server error") ||
		strings.Contains(errStr, "bad gateway") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") {
		return FailoverServerError
	}
	return FailoverUnknown
}

func looksLikeContextLength(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "prompt is too long") ||
		strings.Contains(msg, "context_length") ||
		strings.Contains(msg, "context length") ||
		strings.Contains(msg, "maximum context") ||
		strings.Contains(msg, "input is too long")
}

func classifyStatusCode(status int) FailoverReason {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return FailoverAuth
	case status == http.StatusTooManyRequests:
		return FailoverRateLimit
	case status == http.StatusBadRequest:
		return FailoverInvalidRequest
	case status >= 500:
		return FailoverServerError
	default:
		return FailoverUnknown
	}
}

func classifyErrorCode(code string) FailoverReason {
	switch strings.ToLower(code) {
	case "rate_limit_error", "rate_limit_exceeded":
		return FailoverRateLimit
	case "authentication_error", "invalid_api_key", "permission_error":
		return FailoverAuth
	case "context_length_exceeded":
		return FailoverContextLength
	case "overloaded_error", "api_error", "server_error", "internal_error":
		return FailoverServerError
	case "invalid_request_error":
		return FailoverInvalidRequest
	default:
		return FailoverUnknown
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

// Reason returns the classified failover reason for any error.
func Reason(err error) FailoverReason {
	if err == nil {
		return FailoverUnknown
	}
	if providerErr, ok := GetProviderError(err); ok {
		return providerErr.Reason
	}
	return ClassifyError(err)
}
