package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"teclab/bitgate/pkg/config"
)

// Collector owns every Prometheus metric of the gateway. A disabled
// collector still registers its metrics but ignores all updates.
//
// Collector satisfies session.Observer, so session managers and keepalive
// monitors report to it directly.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	turnMetrics    *TurnMetrics
	backendMetrics *BackendMetrics
	usageMetrics   *UsageMetrics

	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a collector registered on registry. If registry is
// nil a fresh one is created.
//
// Example:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = config.DefaultMetricsSubsystem
	}
	if len(cfg.TurnDurationBuckets) == 0 {
		cfg.TurnDurationBuckets = append([]float64(nil), config.DefaultTurnDurationBuckets...)
	}

	return &Collector{
		config:             cfg,
		registry:           registry,
		turnMetrics:        NewTurnMetrics(cfg, registry),
		backendMetrics:     NewBackendMetrics(cfg, registry),
		usageMetrics:       NewUsageMetrics(cfg, registry),
		cardinalityLimiter: NewCardinalityLimiter(1000),
	}
}

// RecordTurn records a finished turn.
//
// Parameters:
//   - model: public model id
//   - mode: "stream" or "complete"
//   - outcome: "success", "invalid_request", "auth_error", "session_error",
//     "stream_error", "timeout", "canceled" or "error"
func (c *Collector) RecordTurn(model, mode, outcome string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	model = c.limitModel("turn", model, outcome)
	c.turnMetrics.RecordTurn(model, mode, outcome, duration)
}

// RecordFragment counts one fragment emitted to a client.
func (c *Collector) RecordFragment(model, kind string) {
	if !c.config.Enabled {
		return
	}
	model = c.limitModel("fragment", model, kind)
	c.turnMetrics.RecordFragment(model, kind)
}

// RecordDropped counts upstream events discarded as noise.
func (c *Collector) RecordDropped(model string, n int) {
	if !c.config.Enabled || n <= 0 {
		return
	}
	model = c.limitModel("dropped", model, "")
	c.turnMetrics.RecordDropped(model, n)
}

// SessionOpened records a session open attempt.
func (c *Collector) SessionOpened(backend string, err error, d time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.backendMetrics.RecordOpen(backend, result(err), d)
}

// SessionClosed records a session close.
func (c *Collector) SessionClosed(backend string) {
	if !c.config.Enabled {
		return
	}
	c.backendMetrics.RecordClose(backend)
}

// Reauthenticated records a re-authentication requested by a session
// manager. Handshakes that actually reached the identity provider are
// counted by RecordHandshake.
func (c *Collector) Reauthenticated(backend string, err error) {
	if !c.config.Enabled {
		return
	}
	c.backendMetrics.RecordReauth(backend, result(err))
}

// KeepaliveCycle records one keepalive probe.
func (c *Collector) KeepaliveCycle(backend string, err error) {
	if !c.config.Enabled {
		return
	}
	c.backendMetrics.RecordKeepalive(backend, result(err))
}

// RecordHandshake records an authentication handshake. Its signature
// matches backends.AuthGuard.OnHandshake.
func (c *Collector) RecordHandshake(backend string, err error, d time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.backendMetrics.RecordHandshake(backend, result(err), d)
}

// UpdateBackendHealth sets the health gauge of a backend (1=healthy, 0=unhealthy).
func (c *Collector) UpdateBackendHealth(backend string, healthy bool) {
	if !c.config.Enabled {
		return
	}
	c.backendMetrics.UpdateHealth(backend, healthy)
}

// RecordUsage records estimated tokens and price of a turn.
func (c *Collector) RecordUsage(model string, inputTokens, outputTokens int, price float64, currency string) {
	if !c.config.Enabled {
		return
	}
	c.usageMetrics.Record(model, inputTokens, outputTokens, price, currency)
}

// RecordUsageDropped counts usage records dropped because the recorder
// buffer was full.
func (c *Collector) RecordUsageDropped() {
	if !c.config.Enabled {
		return
	}
	c.usageMetrics.RecordDropped()
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// limitModel folds unseen models into "other" once the label budget is spent.
func (c *Collector) limitModel(metric, model, extra string) string {
	if !c.cardinalityLimiter.Allow(fmt.Sprintf("%s:%s:%s", metric, model, extra)) {
		return "other"
	}
	return model
}

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label combinations.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether labelSet is already tracked or still fits under
// the limit.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	_, exists := cl.current[labelSet]
	cl.mu.RUnlock()
	if exists {
		return true
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[labelSet]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
