// Package telemetry groups the gateway's observability packages.
//
//   - logging: slog construction, context fields, credential redaction
//   - metrics: Prometheus collector for turns, sessions and usage
//   - tracing: OpenTelemetry tracer with OTLP/gRPC export
//   - health: liveness, readiness and version endpoints
package telemetry
