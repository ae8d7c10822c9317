package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"teclab/bitgate/pkg/config"
)

// TurnMetrics tracks completion turns.
//
// Metrics:
//   - bitgate_gateway_turns_total: turns by model, mode and outcome
//   - bitgate_gateway_turn_duration_seconds: turn duration histogram
//   - bitgate_gateway_fragments_total: fragments emitted by kind
//   - bitgate_gateway_dropped_events_total: upstream events discarded as noise
type TurnMetrics struct {
	turnsTotal    *prometheus.CounterVec
	turnDuration  *prometheus.HistogramVec
	fragments     *prometheus.CounterVec
	droppedEvents *prometheus.CounterVec
}

// NewTurnMetrics creates and registers turn metrics.
func NewTurnMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *TurnMetrics {
	tm := &TurnMetrics{
		turnsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "turns_total",
				Help:      "Total number of completion turns",
			},
			[]string{"model", "mode", "outcome"},
		),

		turnDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "turn_duration_seconds",
				Help:      "Duration of completion turns in seconds, session open to close",
				Buckets:   cfg.TurnDurationBuckets,
			},
			[]string{"model", "mode"},
		),

		fragments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "fragments_total",
				Help:      "Total number of fragments emitted, by kind",
			},
			[]string{"model", "kind"},
		),

		droppedEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "dropped_events_total",
				Help:      "Total number of malformed upstream events discarded",
			},
			[]string{"model"},
		),
	}

	registry.MustRegister(tm.turnsTotal, tm.turnDuration, tm.fragments, tm.droppedEvents)
	return tm
}

// RecordTurn records a finished turn.
func (tm *TurnMetrics) RecordTurn(model, mode, outcome string, duration time.Duration) {
	tm.turnsTotal.WithLabelValues(model, mode, outcome).Inc()
	tm.turnDuration.WithLabelValues(model, mode).Observe(duration.Seconds())
}

// RecordFragment counts an emitted fragment.
func (tm *TurnMetrics) RecordFragment(model, kind string) {
	tm.fragments.WithLabelValues(model, kind).Inc()
}

// RecordDropped adds n discarded events.
func (tm *TurnMetrics) RecordDropped(model string, n int) {
	tm.droppedEvents.WithLabelValues(model).Add(float64(n))
}
