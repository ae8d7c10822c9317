package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"teclab/bitgate/pkg/config"
)

// UsageMetrics tracks estimated token usage and price.
//
// Metrics:
//   - bitgate_gateway_usage_tokens_total: estimated tokens by model and direction
//   - bitgate_gateway_usage_price_total: accumulated price by model and currency
//   - bitgate_gateway_usage_records_dropped_total: records lost to a full buffer
type UsageMetrics struct {
	tokens  *prometheus.CounterVec
	price   *prometheus.CounterVec
	dropped prometheus.Counter
}

// NewUsageMetrics creates and registers usage metrics.
func NewUsageMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *UsageMetrics {
	um := &UsageMetrics{
		tokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "usage_tokens_total",
				Help:      "Estimated tokens processed, by direction (input, output)",
			},
			[]string{"model", "direction"},
		),
		price: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "usage_price_total",
				Help:      "Accumulated estimated price",
			},
			[]string{"model", "currency"},
		),
		dropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "usage_records_dropped_total",
				Help:      "Usage records dropped because the recorder buffer was full",
			},
		),
	}

	registry.MustRegister(um.tokens, um.price, um.dropped)
	return um
}

// Record adds one turn's usage.
func (um *UsageMetrics) Record(model string, inputTokens, outputTokens int, price float64, currency string) {
	um.tokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	um.tokens.WithLabelValues(model, "output").Add(float64(outputTokens))
	if price > 0 {
		um.price.WithLabelValues(model, currency).Add(price)
	}
}

// RecordDropped counts a dropped record.
func (um *UsageMetrics) RecordDropped() {
	um.dropped.Inc()
}
