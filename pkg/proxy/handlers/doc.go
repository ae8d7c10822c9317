// Package handlers implements the OpenAI-compatible endpoints:
//
//   - ChatHandler: POST /v1/chat/completions, JSON or Server-Sent Events
//     depending on the request's "stream" flag
//   - ModelsHandler: GET /v1/models
//
// Handlers depend on small interfaces (Completer, ModelLister) so they can
// be tested without upstream backends.
package handlers
