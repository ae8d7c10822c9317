package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"teclab/bitgate/pkg/backends"
	"teclab/bitgate/pkg/proxy/types"
)

const (
	// DefaultMaxRequestBytes applies when no body limit is configured.
	DefaultMaxRequestBytes = 10 * 1024 * 1024

	// AuthorizationHeader carries the client API key.
	AuthorizationHeader = "Authorization"

	// RequestIDHeader carries the request id in both directions.
	RequestIDHeader = "X-Request-ID"
)

// ParseChatCompletionRequest decodes and validates a chat completion body.
// Bodies larger than maxBytes are rejected with CodeRequestTooLarge.
func ParseChatCompletionRequest(r *http.Request, maxBytes int64) (*types.ChatCompletionRequest, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxRequestBytes
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if int64(len(body)) > maxBytes {
		return nil, &RequestError{
			Message: fmt.Sprintf("request body exceeds maximum size of %d bytes", maxBytes),
			Code:    types.CodeRequestTooLarge,
			Param:   "body",
		}
	}

	var req types.ChatCompletionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, &RequestError{
			Message: fmt.Sprintf("invalid JSON: %v", err),
			Code:    types.CodeInvalidJSON,
			Param:   "body",
		}
	}

	if err := req.Validate(); err != nil {
		var valErr *types.ValidationError
		if errors.As(err, &valErr) {
			code := types.CodeInvalidValue
			if strings.HasSuffix(valErr.Message, "is required") || strings.HasSuffix(valErr.Message, "cannot be empty") {
				code = types.CodeMissingField
			}
			return nil, &RequestError{Message: valErr.Message, Code: code, Param: valErr.Field}
		}
		return nil, err
	}

	return &req, nil
}

// TurnMessages flattens the request messages to plain-text backend
// messages.
func TurnMessages(req *types.ChatCompletionRequest) []backends.Message {
	out := make([]backends.Message, len(req.Messages))
	for i, m := range req.Messages {
		out[i] = backends.Message{Role: m.Role, Content: m.Text()}
	}
	return out
}

// ExtractAPIKey returns the token of an "Authorization: Bearer <key>"
// header, or "" when the header is missing or malformed.
func ExtractAPIKey(r *http.Request) string {
	authHeader := r.Header.Get(AuthorizationHeader)
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// RequestError represents a request parsing or validation error.
type RequestError struct {
	Message string
	Code    string
	Param   string
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	return e.Message
}

// ToErrorResponse converts a RequestError to an OpenAI-compatible error response.
func (e *RequestError) ToErrorResponse() *types.ErrorResponse {
	return types.NewInvalidRequestError(e.Message, e.Param, e.Code)
}
