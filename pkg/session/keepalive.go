package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Keepalive periodically exercises a backend's session open/close path so
// credential expiry is noticed and repaired before a real turn needs it.
type Keepalive struct {
	manager  *Manager
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}

	failures int
}

// NewKeepalive creates a keepalive monitor. It does nothing until Start.
// timeout bounds one probe cycle; see Manager.ProbeTimeout.
func NewKeepalive(m *Manager, interval, timeout time.Duration) *Keepalive {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &Keepalive{
		manager:  m,
		interval: interval,
		timeout:  timeout,
		logger:   slog.Default().With("component", "keepalive", "backend", m.Backend().Name()),
	}
}

// Start launches the loop. It is a no-op if already running.
func (k *Keepalive) Start(ctx context.Context) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.cancel != nil {
		return
	}

	ctx, k.cancel = context.WithCancel(ctx)
	k.stopped = make(chan struct{})
	go k.run(ctx)
}

// Stop cancels the loop and waits for it to exit.
func (k *Keepalive) Stop(ctx context.Context) error {
	k.mu.Lock()
	cancel, stopped := k.cancel, k.stopped
	k.cancel = nil
	k.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-stopped:
		k.logger.Debug("keepalive stopped")
		return nil
	case <-ctx.Done():
		k.logger.Warn("keepalive did not stop in time")
		return ctx.Err()
	}
}

func (k *Keepalive) run(ctx context.Context) {
	defer close(k.stopped)

	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	k.logger.Info("keepalive started", "interval", k.interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			k.cycle(ctx)
			ticker.Reset(nextInterval(k.failures, k.interval))
		}
	}
}

// cycle runs one probe. Failures are logged and retried on the next tick.
func (k *Keepalive) cycle(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	start := time.Now()
	err := k.manager.Probe(probeCtx)
	k.manager.observer.KeepaliveCycle(k.manager.Backend().Name(), err)

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		k.failures++
		k.logger.Error("keepalive probe failed",
			"error", err,
			"consecutive_failures", k.failures,
			"latency", time.Since(start),
		)
		return
	}

	if k.failures > 0 {
		k.logger.Info("keepalive recovered", "previous_failures", k.failures)
	}
	k.failures = 0
	k.logger.Debug("keepalive probe passed", "latency", time.Since(start))
}

// nextInterval backs off while probes fail: base * 2^failures, capped at
// 10x the base and at 5 minutes.
func nextInterval(failures int, base time.Duration) time.Duration {
	if failures <= 0 {
		return base
	}

	multiplier := 1 << uint(min(failures, 4))
	if multiplier > 10 {
		multiplier = 10
	}

	return min(base*time.Duration(multiplier), max(base, 5*time.Minute))
}
