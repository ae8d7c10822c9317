package types

import (
	"fmt"
	"strings"
)

// ChatCompletionRequest is the body of POST /v1/chat/completions.
//
// Sampling parameters are accepted for client compatibility; the backends
// do not expose them and they are ignored.
type ChatCompletionRequest struct {
	// Model is the configured model identifier (required).
	Model string `json:"model"`

	// Messages is the conversation so far; the last entry must come from
	// the user (required).
	Messages []Message `json:"messages"`

	// Stream selects Server-Sent Events delivery.
	Stream bool `json:"stream,omitempty"`

	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	User        string   `json:"user,omitempty"`
}

// Message is one entry of the conversation.
type Message struct {
	// Role is "system", "user" or "assistant".
	Role string `json:"role"`

	// Content is either a string or an array of content parts:
	//   [{"type": "text", "text": "..."}, {"type": "image_url", ...}]
	Content interface{} `json:"content"`

	// ReasoningContent is echoed back by some clients on assistant turns.
	// It is not forwarded upstream.
	ReasoningContent string `json:"reasoning_content,omitempty"`

	Name string `json:"name,omitempty"`
}

// Text flattens Content to plain text. Text parts of a multimodal array
// are joined with a single space; other part types are ignored.
func (m Message) Text() string {
	switch c := m.Content.(type) {
	case nil:
		return ""
	case string:
		return c
	case []interface{}:
		parts := make([]string, 0, len(c))
		for _, p := range c {
			part, ok := p.(map[string]interface{})
			if !ok || part["type"] != "text" {
				continue
			}
			if text, ok := part["text"].(string); ok {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, " ")
	default:
		return fmt.Sprintf("%v", c)
	}
}

// Validate checks the request shape. Role ordering is checked later by
// the orchestrator so that it is enforced for every caller.
func (r *ChatCompletionRequest) Validate() error {
	if r.Model == "" {
		return &ValidationError{Field: "model", Message: "model is required"}
	}
	if len(r.Messages) == 0 {
		return &ValidationError{Field: "messages", Message: "messages array cannot be empty"}
	}

	for i, msg := range r.Messages {
		switch msg.Role {
		case "system", "user", "assistant":
		case "":
			return &ValidationError{
				Field:   fmt.Sprintf("messages[%d].role", i),
				Message: "role is required",
			}
		default:
			return &ValidationError{
				Field:   fmt.Sprintf("messages[%d].role", i),
				Message: fmt.Sprintf("invalid role %q, must be one of: system, user, assistant", msg.Role),
			}
		}
		switch msg.Content.(type) {
		case string, []interface{}:
		default:
			return &ValidationError{
				Field:   fmt.Sprintf("messages[%d].content", i),
				Message: "content must be a string or an array of content parts",
			}
		}
	}

	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
		return &ValidationError{Field: "temperature", Message: "temperature must be between 0 and 2"}
	}
	if r.TopP != nil && (*r.TopP < 0 || *r.TopP > 1) {
		return &ValidationError{Field: "top_p", Message: "top_p must be between 0 and 1"}
	}
	if r.MaxTokens != nil && *r.MaxTokens < 1 {
		return &ValidationError{Field: "max_tokens", Message: "max_tokens must be at least 1"}
	}
	return nil
}

// ValidationError is a request validation failure.
type ValidationError struct {
	// Field is the name of the field that failed validation.
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}
