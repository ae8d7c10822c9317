package types

import "net/http"

// ErrorResponse is an OpenAI-compatible error body.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`

	// Status overrides the status derived from Error.Type. Upstream
	// authentication failures use it to answer 502 rather than 401, since
	// the client's own credentials were fine.
	Status int `json:"-"`
}

// ErrorDetail contains the error information.
type ErrorDetail struct {
	// Message is a human-readable error message.
	Message string `json:"message"`

	// Type categorizes the error, see the ErrorType constants.
	Type string `json:"type"`

	// Param is the name of the offending parameter, if any.
	Param string `json:"param,omitempty"`

	// Code is a machine-readable error code.
	Code string `json:"code,omitempty"`
}

// Error types.
const (
	ErrorTypeInvalidRequest     = "invalid_request_error"
	ErrorTypeAuthentication     = "authentication_error"
	ErrorTypePermissionDenied   = "permission_denied"
	ErrorTypeNotFound           = "not_found"
	ErrorTypeServerError        = "server_error"
	ErrorTypeBadGateway         = "bad_gateway"
	ErrorTypeServiceUnavailable = "service_unavailable"
	ErrorTypeGatewayTimeout     = "gateway_timeout"
)

// Error codes.
const (
	CodeMissingField     = "missing_field"
	CodeInvalidValue     = "invalid_value"
	CodeInvalidJSON      = "invalid_json"
	CodeInvalidAPIKey    = "invalid_api_key"
	CodeModelNotFound    = "model_not_found"
	CodeUpstreamAuth     = "upstream_auth_failed"
	CodeSessionError     = "session_error"
	CodeUpstreamError    = "upstream_error"
	CodeUpstreamTimeout  = "upstream_timeout"
	CodeRequestTooLarge  = "request_too_large"
	CodeMethodNotAllowed = "method_not_allowed"
	CodeInternalError    = "internal_error"
)

// NewErrorResponse creates an error response with the given details.
func NewErrorResponse(message, errorType, param, code string) *ErrorResponse {
	return &ErrorResponse{
		Error: ErrorDetail{
			Message: message,
			Type:    errorType,
			Param:   param,
			Code:    code,
		},
	}
}

// NewInvalidRequestError creates a 400 error response.
func NewInvalidRequestError(message, param, code string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeInvalidRequest, param, code)
}

// NewPermissionDeniedError creates a 403 error response.
func NewPermissionDeniedError(message string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypePermissionDenied, "", CodeInvalidAPIKey)
}

// NewServerError creates a 500 error response.
func NewServerError(message string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeServerError, "", CodeInternalError)
}

// NewBadGatewayError creates a 502 error response.
func NewBadGatewayError(message, code string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeBadGateway, "", code)
}

// NewUpstreamAuthError creates a 502 error response typed as an
// authentication failure.
func NewUpstreamAuthError(message string) *ErrorResponse {
	resp := NewErrorResponse(message, ErrorTypeAuthentication, "", CodeUpstreamAuth)
	resp.Status = http.StatusBadGateway
	return resp
}

// NewGatewayTimeoutError creates a 504 error response.
func NewGatewayTimeoutError(message string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeGatewayTimeout, "", CodeUpstreamTimeout)
}

// StatusCode returns the HTTP status for the response.
func (e *ErrorResponse) StatusCode() int {
	if e.Status != 0 {
		return e.Status
	}
	return e.Error.HTTPStatusCode()
}

// HTTPStatusCode returns the HTTP status code for the error type.
func (e *ErrorDetail) HTTPStatusCode() int {
	switch e.Type {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypePermissionDenied:
		return http.StatusForbidden
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeBadGateway:
		return http.StatusBadGateway
	case ErrorTypeServiceUnavailable:
		return http.StatusServiceUnavailable
	case ErrorTypeGatewayTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
