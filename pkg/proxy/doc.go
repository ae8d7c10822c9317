// Package proxy holds the OpenAI-compatible HTTP boundary of the gateway:
// request parsing, error mapping and the JSON and Server-Sent Events
// response writers shared by the handlers.
//
// Subpackages:
//   - types: wire types
//   - handlers: /v1/chat/completions and /v1/models
//   - middleware: request id, logging, recovery, CORS and API key checks
//
// A streamed completion is written as a sequence of chat.completion.chunk
// events, one per fragment, followed by a chunk with finish_reason "stop"
// and the "data: [DONE]" marker:
//
//	SetSSEHeaders(w)
//	for ev := range events {
//	    WriteSSEChunk(w, FormatStreamChunk(ev.Fragment, model, id))
//	}
//	WriteSSEChunk(w, FormatFinalChunk(model, id))
//	WriteSSEDone(w)
//
// A turn that fails mid-stream ends with WriteSSEError instead.
package proxy
