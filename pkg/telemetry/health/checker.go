package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// CheckFunc is a function that performs a health check for a component.
// It returns nil if the component is healthy, or an error describing the problem.
type CheckFunc func(ctx context.Context) error

// Status values reported by the health endpoints.
const (
	StatusOK          = "ok"
	StatusReady       = "ready"
	StatusUnavailable = "unavailable"
	StatusUnhealthy   = "unhealthy"
)

// CheckResult represents the result of a single health check.
type CheckResult struct {
	// Status is "ok" or "unhealthy".
	Status string `json:"status"`

	// Message describes the problem of an unhealthy component.
	Message string `json:"message,omitempty"`

	// DurationMS is how long the check took in milliseconds.
	DurationMS float64 `json:"duration_ms"`
}

// HealthStatus represents the overall health status of the gateway.
type HealthStatus struct {
	// Status is "ok" for liveness, "ready" or "unavailable" for readiness.
	Status string `json:"status"`

	// Healthy is the number of passing checks (readiness only).
	Healthy int `json:"healthy,omitempty"`

	// Checks contains the status of individual components (readiness only).
	Checks map[string]CheckResult `json:"checks,omitempty"`

	// Uptime is the process uptime in seconds (liveness only).
	Uptime float64 `json:"uptime_seconds,omitempty"`

	// Timestamp is when the health check was performed.
	Timestamp time.Time `json:"timestamp"`
}

// Checker runs component checks. The gateway registers one check per
// backend; it is ready when at least minHealthy checks pass.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]CheckFunc

	checkTimeout time.Duration
	minHealthy   int
	started      time.Time
}

// New creates a health checker. A zero checkTimeout defaults to 5 seconds.
func New(checkTimeout time.Duration, minHealthy int) *Checker {
	if checkTimeout == 0 {
		checkTimeout = 5 * time.Second
	}
	return &Checker{
		checks:       make(map[string]CheckFunc),
		checkTimeout: checkTimeout,
		minHealthy:   minHealthy,
		started:      time.Now(),
	}
}

// RegisterCheck registers a health check function for a named component.
// If a check with the same name already exists, it will be replaced.
func (c *Checker) RegisterCheck(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// ListChecks returns the sorted names of all registered checks.
func (c *Checker) ListChecks() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckLiveness reports that the process is running.
func (c *Checker) CheckLiveness(context.Context) HealthStatus {
	return HealthStatus{
		Status:    StatusOK,
		Uptime:    time.Since(c.started).Seconds(),
		Timestamp: time.Now(),
	}
}

// CheckReadiness runs all registered checks concurrently.
func (c *Checker) CheckReadiness(ctx context.Context) HealthStatus {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	results := make(map[string]CheckResult, len(checks))
	var resultMu sync.Mutex
	var wg sync.WaitGroup

	for name, check := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := c.runCheck(ctx, check)

			resultMu.Lock()
			results[name] = result
			resultMu.Unlock()
		}()
	}
	wg.Wait()

	healthy := 0
	for _, result := range results {
		if result.Status == StatusOK {
			healthy++
		}
	}

	status := StatusReady
	if healthy < c.minHealthy {
		status = StatusUnavailable
	}

	return HealthStatus{
		Status:    status,
		Healthy:   healthy,
		Checks:    results,
		Timestamp: time.Now(),
	}
}

// runCheck executes a single health check with timeout.
func (c *Checker) runCheck(ctx context.Context, check CheckFunc) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	start := time.Now()
	errChan := make(chan error, 1)
	go func() {
		errChan <- check(checkCtx)
	}()

	elapsed := func() float64 { return float64(time.Since(start).Microseconds()) / 1000 }

	select {
	case err := <-errChan:
		if err != nil {
			return CheckResult{Status: StatusUnhealthy, Message: err.Error(), DurationMS: elapsed()}
		}
		return CheckResult{Status: StatusOK, DurationMS: elapsed()}
	case <-checkCtx.Done():
		return CheckResult{Status: StatusUnhealthy, Message: "health check timeout", DurationMS: elapsed()}
	}
}
