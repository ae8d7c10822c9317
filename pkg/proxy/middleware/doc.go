// Package middleware provides the HTTP middleware of the gateway.
//
// The chain built by the server, outermost first:
//
//	Recovery(RequestID(Logging(CORS(mux))))
//
// with APIKeyMiddleware wrapping only the /v1 routes.
//
//   - RecoveryMiddleware: turns panics into a 500 OpenAI error body
//   - RequestIDMiddleware: X-Request-ID propagation into the log context
//   - LoggingMiddleware: one structured log line per request; its writer
//     forwards Flush so Server-Sent Events stream through it
//   - CORSMiddleware: Cross-Origin Resource Sharing headers and preflight
//   - APIKeyMiddleware: bearer key check, 403 on mismatch
package middleware
