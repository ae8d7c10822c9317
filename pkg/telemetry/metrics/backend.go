package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"teclab/bitgate/pkg/config"
)

// BackendMetrics tracks upstream session and authentication lifecycle.
//
// Metrics:
//   - bitgate_gateway_backend_health: 1=healthy, 0=unhealthy
//   - bitgate_gateway_session_opens_total / session_open_duration_seconds
//   - bitgate_gateway_session_closes_total
//   - bitgate_gateway_reauth_total: re-authentications requested after a failed open
//   - bitgate_gateway_auth_handshakes_total / auth_handshake_duration_seconds
//   - bitgate_gateway_keepalive_cycles_total
type BackendMetrics struct {
	health            *prometheus.GaugeVec
	sessionOpens      *prometheus.CounterVec
	openDuration      *prometheus.HistogramVec
	sessionCloses     *prometheus.CounterVec
	reauth            *prometheus.CounterVec
	handshakes        *prometheus.CounterVec
	handshakeDuration *prometheus.HistogramVec
	keepalive         *prometheus.CounterVec
}

// NewBackendMetrics creates and registers backend metrics.
func NewBackendMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *BackendMetrics {
	latencyBuckets := []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

	bm := &BackendMetrics{
		health: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "backend_health",
				Help:      "Backend health status (1=healthy, 0=unhealthy)",
			},
			[]string{"backend"},
		),
		sessionOpens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "session_opens_total",
				Help:      "Total number of upstream session open attempts",
			},
			[]string{"backend", "result"},
		),
		openDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "session_open_duration_seconds",
				Help:      "Duration of upstream session open calls in seconds",
				Buckets:   latencyBuckets,
			},
			[]string{"backend"},
		),
		sessionCloses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "session_closes_total",
				Help:      "Total number of upstream session closes",
			},
			[]string{"backend"},
		),
		reauth: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "reauth_total",
				Help:      "Total number of re-authentications requested after a rejected session",
			},
			[]string{"backend", "result"},
		),
		handshakes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "auth_handshakes_total",
				Help:      "Total number of authentication handshakes performed",
			},
			[]string{"backend", "result"},
		),
		handshakeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "auth_handshake_duration_seconds",
				Help:      "Duration of authentication handshakes in seconds",
				Buckets:   latencyBuckets,
			},
			[]string{"backend"},
		),
		keepalive: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "keepalive_cycles_total",
				Help:      "Total number of keepalive probes",
			},
			[]string{"backend", "result"},
		),
	}

	registry.MustRegister(
		bm.health,
		bm.sessionOpens,
		bm.openDuration,
		bm.sessionCloses,
		bm.reauth,
		bm.handshakes,
		bm.handshakeDuration,
		bm.keepalive,
	)
	return bm
}

// UpdateHealth sets the health gauge.
func (bm *BackendMetrics) UpdateHealth(backend string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	bm.health.WithLabelValues(backend).Set(value)
}

// RecordOpen records a session open attempt.
func (bm *BackendMetrics) RecordOpen(backend, result string, d time.Duration) {
	bm.sessionOpens.WithLabelValues(backend, result).Inc()
	bm.openDuration.WithLabelValues(backend).Observe(d.Seconds())
}

// RecordClose records a session close.
func (bm *BackendMetrics) RecordClose(backend string) {
	bm.sessionCloses.WithLabelValues(backend).Inc()
}

// RecordReauth records a requested re-authentication.
func (bm *BackendMetrics) RecordReauth(backend, result string) {
	bm.reauth.WithLabelValues(backend, result).Inc()
}

// RecordHandshake records a performed handshake.
func (bm *BackendMetrics) RecordHandshake(backend, result string, d time.Duration) {
	bm.handshakes.WithLabelValues(backend, result).Inc()
	bm.handshakeDuration.WithLabelValues(backend).Observe(d.Seconds())
}

// RecordKeepalive records a keepalive probe.
func (bm *BackendMetrics) RecordKeepalive(backend, result string) {
	bm.keepalive.WithLabelValues(backend, result).Inc()
}
