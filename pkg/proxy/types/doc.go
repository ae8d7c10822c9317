// Package types defines the OpenAI-compatible wire types of the gateway.
//
// Request types:
//   - ChatCompletionRequest: body of POST /v1/chat/completions
//   - Message: one conversation entry; Content may be a string or an array
//     of content parts, flattened by Message.Text
//
// Response types:
//   - ChatCompletionResponse: non-streaming completion
//   - ChatCompletionStreamChunk: one SSE event; Delta carries either
//     content or reasoning_content
//   - ModelList: body of GET /v1/models
//
// Error types:
//   - ErrorResponse: OpenAI-compatible error body with its HTTP status
package types
