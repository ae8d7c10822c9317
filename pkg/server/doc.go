/*
Package server wires the gateway together.

New builds, without touching the network:

  - the Prometheus collector and the OpenTelemetry tracer
  - the model registry, reporting sessions and handshakes to the collector
  - the usage ledger, recorder and statistics reporter when usage is enabled
  - the completion orchestrator
  - one readiness check per model

Start (or Serve, with a caller-provided listener) then initializes every
backend, starts the statistics and retention jobs and the pricing watcher,
and serves:

	/v1/chat/completions   chat completions (JSON or SSE)
	/v1/models             configured models
	/health, /ready        liveness and readiness
	/metrics               Prometheus metrics
	/version               build information

Cancelling the context passed to Start drains in-flight requests, stops
keepalive monitors, flushes pending usage records and closes every backend.
*/
package server
