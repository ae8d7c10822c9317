package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"teclab/bitgate/pkg/config"
	"teclab/bitgate/pkg/session"
)

// Helper function to create test config
func testConfig() *config.MetricsConfig {
	return &config.MetricsConfig{
		Enabled:             true,
		Namespace:           "test",
		Subsystem:           "gw",
		TurnDurationBuckets: []float64{0.1, 1, 10},
	}
}

var _ session.Observer = (*Collector)(nil)

func TestCollector_NewCollectorDefaults(t *testing.T) {
	cfg := &config.MetricsConfig{Enabled: true}
	c := NewCollector(cfg, nil)

	if c.Registry() == nil {
		t.Fatal("expected registry")
	}
	if cfg.Namespace != "bitgate" || cfg.Subsystem != "gateway" {
		t.Errorf("unexpected names %q/%q", cfg.Namespace, cfg.Subsystem)
	}
	if len(cfg.TurnDurationBuckets) == 0 {
		t.Error("expected default buckets")
	}
}

func TestCollector_RecordTurn(t *testing.T) {
	c := NewCollector(testConfig(), prometheus.NewRegistry())

	c.RecordTurn("ibit", "stream", "success", 2*time.Second)
	c.RecordTurn("ibit", "stream", "success", time.Second)
	c.RecordTurn("ibit", "complete", "auth_error", time.Second)

	if got := testutil.ToFloat64(c.turnMetrics.turnsTotal.WithLabelValues("ibit", "stream", "success")); got != 2 {
		t.Errorf("expected 2 successful stream turns, got %v", got)
	}
	if got := testutil.ToFloat64(c.turnMetrics.turnsTotal.WithLabelValues("ibit", "complete", "auth_error")); got != 1 {
		t.Errorf("expected 1 auth_error turn, got %v", got)
	}
	if got := testutil.CollectAndCount(c.turnMetrics.turnDuration); got != 2 {
		t.Errorf("expected 2 duration series, got %d", got)
	}
}

func TestCollector_Fragments(t *testing.T) {
	c := NewCollector(testConfig(), prometheus.NewRegistry())

	c.RecordFragment("deepseek-r1", "reasoning")
	c.RecordFragment("deepseek-r1", "content")
	c.RecordFragment("deepseek-r1", "content")
	c.RecordDropped("deepseek-r1", 3)
	c.RecordDropped("deepseek-r1", 0)

	if got := testutil.ToFloat64(c.turnMetrics.fragments.WithLabelValues("deepseek-r1", "content")); got != 2 {
		t.Errorf("expected 2 content fragments, got %v", got)
	}
	if got := testutil.ToFloat64(c.turnMetrics.droppedEvents.WithLabelValues("deepseek-r1")); got != 3 {
		t.Errorf("expected 3 dropped events, got %v", got)
	}
}

func TestCollector_SessionObserver(t *testing.T) {
	c := NewCollector(testConfig(), prometheus.NewRegistry())
	fail := errors.New("boom")

	c.SessionOpened("ibit", nil, 100*time.Millisecond)
	c.SessionOpened("ibit", fail, 50*time.Millisecond)
	c.SessionClosed("ibit")
	c.Reauthenticated("ibit", nil)
	c.KeepaliveCycle("ibit", fail)
	c.RecordHandshake("ibit", nil, 300*time.Millisecond)
	c.UpdateBackendHealth("ibit", true)

	bm := c.backendMetrics
	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"open success", testutil.ToFloat64(bm.sessionOpens.WithLabelValues("ibit", "success")), 1},
		{"open failure", testutil.ToFloat64(bm.sessionOpens.WithLabelValues("ibit", "failure")), 1},
		{"close", testutil.ToFloat64(bm.sessionCloses.WithLabelValues("ibit")), 1},
		{"reauth", testutil.ToFloat64(bm.reauth.WithLabelValues("ibit", "success")), 1},
		{"keepalive failure", testutil.ToFloat64(bm.keepalive.WithLabelValues("ibit", "failure")), 1},
		{"handshake", testutil.ToFloat64(bm.handshakes.WithLabelValues("ibit", "success")), 1},
		{"health", testutil.ToFloat64(bm.health.WithLabelValues("ibit")), 1},
	}
	for _, chk := range checks {
		if chk.got != chk.want {
			t.Errorf("%s: got %v, want %v", chk.name, chk.got, chk.want)
		}
	}
}

func TestCollector_Usage(t *testing.T) {
	c := NewCollector(testConfig(), prometheus.NewRegistry())

	c.RecordUsage("ibit", 100, 400, 0.0068, "CNY")
	c.RecordUsageDropped()

	if got := testutil.ToFloat64(c.usageMetrics.tokens.WithLabelValues("ibit", "output")); got != 400 {
		t.Errorf("expected 400 output tokens, got %v", got)
	}
	if got := testutil.ToFloat64(c.usageMetrics.price.WithLabelValues("ibit", "CNY")); got != 0.0068 {
		t.Errorf("expected price 0.0068, got %v", got)
	}
	if got := testutil.ToFloat64(c.usageMetrics.dropped); got != 1 {
		t.Errorf("expected 1 dropped record, got %v", got)
	}
}

func TestCollector_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	c := NewCollector(cfg, prometheus.NewRegistry())

	c.RecordTurn("ibit", "stream", "success", time.Second)
	c.SessionOpened("ibit", nil, time.Millisecond)
	c.RecordUsage("ibit", 1, 1, 1, "CNY")

	if got := testutil.CollectAndCount(c.turnMetrics.turnsTotal); got != 0 {
		t.Errorf("disabled collector recorded %d turn series", got)
	}
	if got := testutil.CollectAndCount(c.backendMetrics.sessionOpens); got != 0 {
		t.Errorf("disabled collector recorded %d open series", got)
	}
}

func TestCardinalityLimiter(t *testing.T) {
	cl := NewCardinalityLimiter(2)

	if !cl.Allow("a") || !cl.Allow("b") {
		t.Fatal("expected first two label sets to be allowed")
	}
	if cl.Allow("c") {
		t.Error("expected third label set to be rejected")
	}
	if !cl.Allow("a") {
		t.Error("expected known label set to stay allowed")
	}
	if cl.Count() != 2 {
		t.Errorf("expected count 2, got %d", cl.Count())
	}
}

func TestCollector_ModelFoldedIntoOther(t *testing.T) {
	c := NewCollector(testConfig(), prometheus.NewRegistry())
	c.cardinalityLimiter = NewCardinalityLimiter(1)

	c.RecordFragment("ibit", "content")
	c.RecordFragment("rogue", "content")

	if got := testutil.ToFloat64(c.turnMetrics.fragments.WithLabelValues("other", "content")); got != 1 {
		t.Errorf("expected overflow under model=other, got %v", got)
	}
}

func TestHandler(t *testing.T) {
	c := NewCollector(testConfig(), prometheus.NewRegistry())
	c.RecordTurn("ibit", "stream", "success", time.Second)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "test_gw_turns_total") {
		t.Errorf("metrics output missing turns_total:\n%s", rec.Body.String())
	}
}
