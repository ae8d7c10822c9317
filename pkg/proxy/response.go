package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"teclab/bitgate/pkg/backends"
	"teclab/bitgate/pkg/orchestrator"
	"teclab/bitgate/pkg/proxy/types"
)

// NewCompletionID returns a fresh "chatcmpl-" identifier.
func NewCompletionID() string {
	return "chatcmpl-" + uuid.NewString()
}

// FormatChatCompletionResponse converts an aggregated turn result to an
// OpenAI chat completion.
func FormatChatCompletionResponse(res *orchestrator.Result, model, id string) *types.ChatCompletionResponse {
	return &types.ChatCompletionResponse{
		ID:      id,
		Object:  types.ObjectChatCompletion,
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []types.Choice{
			{
				Index: 0,
				Message: types.ResponseMessage{
					Role:             backends.RoleAssistant,
					Content:          res.Content,
					ReasoningContent: res.Reasoning,
				},
				FinishReason: types.FinishReasonStop,
			},
		},
	}
}

// FormatStreamChunk converts one fragment to a stream chunk. Reasoning
// fragments travel in delta.reasoning_content.
func FormatStreamChunk(frag backends.Fragment, model, id string) *types.ChatCompletionStreamChunk {
	var delta types.Delta
	if text, ok := frag.Reasoning(); ok {
		delta.ReasoningContent = text
	} else {
		delta.Content = frag.Text
	}
	return newChunk(model, id, delta, nil)
}

// FormatFinalChunk returns the chunk that closes a successful stream: an
// empty delta with finish_reason "stop".
func FormatFinalChunk(model, id string) *types.ChatCompletionStreamChunk {
	reason := types.FinishReasonStop
	return newChunk(model, id, types.Delta{}, &reason)
}

func newChunk(model, id string, delta types.Delta, finish *string) *types.ChatCompletionStreamChunk {
	return &types.ChatCompletionStreamChunk{
		ID:      id,
		Object:  types.ObjectChatCompletionChunk,
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []types.StreamChoice{
			{Index: 0, Delta: delta, FinishReason: finish},
		},
	}
}

// WriteJSONResponse writes data as a JSON response with the given status.
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON response: %w", err)
	}
	return nil
}

// WriteErrorResponse writes an OpenAI-compatible error response.
func WriteErrorResponse(w http.ResponseWriter, errResp *types.ErrorResponse) error {
	return WriteJSONResponse(w, errResp.StatusCode(), errResp)
}

// WriteSSEChunk writes one chunk as "data: <json>\n\n" and flushes.
func WriteSSEChunk(w http.ResponseWriter, chunk *types.ChatCompletionStreamChunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE chunk: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write SSE chunk: %w", err)
	}
	flush(w)
	return nil
}

// WriteSSEDone writes the "[DONE]" marker that ends a successful stream.
func WriteSSEDone(w http.ResponseWriter) error {
	if _, err := fmt.Fprint(w, "data: [DONE]\n\n"); err != nil {
		return fmt.Errorf("failed to write SSE done marker: %w", err)
	}
	flush(w)
	return nil
}

// WriteSSEError writes an error object mid-stream. No "[DONE]" follows it,
// so clients can tell a failed stream from a finished one.
func WriteSSEError(w http.ResponseWriter, errResp *types.ErrorResponse) error {
	data, err := json.Marshal(errResp)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE error: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write SSE error: %w", err)
	}
	flush(w)
	return nil
}

// SetSSEHeaders sets the headers for Server-Sent Events streaming.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

func flush(w http.ResponseWriter) {
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}
