package backends

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for classification with errors.Is.
var (
	// ErrInvalidRequest matches every *InvalidRequestError.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrUnknownModel matches an *InvalidRequestError raised for an
	// unconfigured model identifier.
	ErrUnknownModel = errors.New("unknown model")

	// ErrEmptyHandle is returned when a zero SessionHandle is used.
	ErrEmptyHandle = errors.New("empty session handle")
)

// Invalid request codes.
const (
	CodeInvalidRequest = "invalid_request"
	CodeUnknownModel   = "unknown_model"
)

// UpstreamError represents a non-success HTTP status returned by a backend.
type UpstreamError struct {
	// Backend is the name of the backend that returned the error
	Backend string

	// StatusCode is the HTTP status code (0 if not applicable)
	StatusCode int

	// Message is the response body or a description
	Message string

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("backend %q error (status %d): %s", e.Backend, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend %q error: %s", e.Backend, e.Message)
}

// Unwrap returns the underlying error for error chain support.
func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// AuthError represents a failed authentication handshake or an upstream
// rejection of the current credentials (HTTP 401 or 403).
type AuthError struct {
	// Backend is the name of the backend that rejected authentication
	Backend string

	// Message is the error message
	Message string

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("backend %q authentication failed: %s: %v", e.Backend, e.Message, e.Cause)
	}
	return fmt.Sprintf("backend %q authentication failed: %s", e.Backend, e.Message)
}

// Unwrap returns the underlying error for error chain support.
func (e *AuthError) Unwrap() error {
	return e.Cause
}

// SessionError represents a failure to open, use, or close an upstream
// conversation.
type SessionError struct {
	// Backend is the name of the backend
	Backend string

	// Op is the failed operation ("open", "close", "list")
	Op string

	// StatusCode is the upstream HTTP status, or 0
	StatusCode int

	// Message describes the failure
	Message string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *SessionError) Error() string {
	msg := fmt.Sprintf("backend %q session %s failed", e.Backend, e.Op)
	if e.StatusCode > 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain support.
func (e *SessionError) Unwrap() error {
	return e.Cause
}

// NewSessionError wraps a failed session call, carrying over the upstream
// status when there is one.
func NewSessionError(backend, op string, err error) *SessionError {
	serr := &SessionError{Backend: backend, Op: op, Cause: err}
	var upErr *UpstreamError
	var authErr *AuthError
	switch {
	case errors.As(err, &upErr):
		serr.StatusCode = upErr.StatusCode
	case errors.As(err, &authErr):
		serr.StatusCode = 401
	}
	return serr
}

// IsRejected reports whether the upstream refused the operation with a
// non-success status, which usually means the auth context has gone stale.
func (e *SessionError) IsRejected() bool {
	return e.StatusCode != 0
}

// InvalidRequestError represents a request rejected before any upstream call.
type InvalidRequestError struct {
	// Code is CodeInvalidRequest or CodeUnknownModel
	Code string

	// Field is the offending request field, if known
	Field string

	// Message describes what is invalid
	Message string
}

// Error implements the error interface.
func (e *InvalidRequestError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid request for field %q: %s", e.Field, e.Message)
	}
	return "invalid request: " + e.Message
}

// Is lets errors.Is match ErrInvalidRequest and, for unknown models,
// ErrUnknownModel.
func (e *InvalidRequestError) Is(target error) bool {
	switch target {
	case ErrInvalidRequest:
		return true
	case ErrUnknownModel:
		return e.Code == CodeUnknownModel
	}
	return false
}

// NewUnknownModelError returns the error raised for an unconfigured model.
func NewUnknownModelError(model string) *InvalidRequestError {
	return &InvalidRequestError{
		Code:    CodeUnknownModel,
		Field:   "model",
		Message: fmt.Sprintf("model %q is not configured", model),
	}
}

// StreamError represents a failure while reading an upstream stream.
type StreamError struct {
	// Backend is the name of the backend where the error occurred
	Backend string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("backend %q stream error: %s: %v", e.Backend, e.Message, e.Cause)
	}
	return fmt.Sprintf("backend %q stream error: %s", e.Backend, e.Message)
}

// Unwrap returns the underlying error for error chain support.
func (e *StreamError) Unwrap() error {
	return e.Cause
}

// TimeoutError represents an upstream call that exceeded its deadline.
type TimeoutError struct {
	// Backend is the name of the backend where the timeout occurred
	Backend string

	// Timeout is the configured timeout duration
	Timeout time.Duration

	// Cause is the context or transport error
	Cause error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("backend %q request timeout after %s", e.Backend, e.Timeout)
}

// Unwrap returns the underlying error for error chain support.
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// ParseError represents an upstream response that could not be decoded.
type ParseError struct {
	// Backend is the name of the backend that returned the malformed response
	Backend string

	// RawResponse is the raw response body that failed to parse
	RawResponse string

	// Cause is the underlying parse error
	Cause error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("backend %q response parse error: %v", e.Backend, e.Cause)
}

// Unwrap returns the underlying error for error chain support.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// ConfigError represents an invalid backend configuration.
type ConfigError struct {
	// Backend is the name of the backend with invalid configuration
	Backend string

	// Field is the configuration field that is invalid
	Field string

	// Message describes the configuration error
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("backend %q configuration error for field %q: %s",
		e.Backend, e.Field, e.Message)
}

// IsAuthFailure reports whether err indicates the auth context was rejected.
func IsAuthFailure(err error) bool {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return true
	}
	var sessErr *SessionError
	return errors.As(err, &sessErr) && sessErr.IsRejected()
}
