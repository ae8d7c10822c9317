// Package tracing sets up OpenTelemetry tracing for the gateway.
//
// When telemetry.tracing.enabled is false, New returns a noop tracer and
// spans cost next to nothing. When enabled, spans are exported over
// OTLP/gRPC to telemetry.tracing.endpoint with a parent-based sampler.
//
// The orchestrator opens one span per turn ("completion.turn") carrying
// the attributes in attributes.go; HTTPMiddleware continues traces started
// by callers that send a traceparent header.
package tracing
