// Package metrics provides Prometheus metrics for the gateway.
//
// # Metrics Categories
//
//   - Turn metrics: turns by outcome, turn duration, emitted fragments,
//     discarded upstream noise
//   - Backend metrics: health, session open/close, re-authentication,
//     handshakes, keepalive probes
//   - Usage metrics: estimated tokens and price
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	manager := session.NewManager(backend, session.WithObserver(collector))
//	collector.RecordTurn("ibit", "stream", "success", 3*time.Second)
//	mux.Handle("/metrics", collector.Handler())
//
// Model labels are bounded by a CardinalityLimiter; once the budget is
// spent, new label sets are reported under model="other".
package metrics
