// Package session scopes every turn to a disposable upstream conversation.
//
// A Manager opens a session before the query is sent, hands the stream to the
// caller and closes the session on every exit path, after the stream has been
// consumed or abandoned. A failed open is retried a bounded number of times,
// refreshing authentication in between; concurrent turns that hit the same
// expiry share one handshake.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"teclab/bitgate/pkg/backends"
)

// RetryPolicy bounds re-authentication retries of a failed session open.
type RetryPolicy struct {
	// MaxAttempts is the total number of open attempts (at least 1).
	MaxAttempts int

	// InitialInterval is the wait before the second attempt.
	InitialInterval time.Duration

	// MaxInterval caps the exponential wait.
	MaxInterval time.Duration
}

// DefaultRetryPolicy returns 3 attempts with 1s..5s exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialInterval: time.Second, MaxInterval: 5 * time.Second}
}

// Observer receives lifecycle events for metrics.
type Observer interface {
	SessionOpened(backend string, err error, d time.Duration)
	SessionClosed(backend string)
	Reauthenticated(backend string, err error)
	KeepaliveCycle(backend string, err error)
}

type nopObserver struct{}

func (nopObserver) SessionOpened(string, error, time.Duration) {}
func (nopObserver) SessionClosed(string)                       {}
func (nopObserver) Reauthenticated(string, error)              {}
func (nopObserver) KeepaliveCycle(string, error)               {}

// Manager wraps one backend's session lifecycle.
type Manager struct {
	backend      backends.Backend
	retry        RetryPolicy
	closeTimeout time.Duration
	observer     Observer
	logger       *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithRetryPolicy overrides the open retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(m *Manager) { m.retry = p }
}

// WithCloseTimeout bounds the best-effort close call.
func WithCloseTimeout(d time.Duration) Option {
	return func(m *Manager) { m.closeTimeout = d }
}

// WithObserver sets the lifecycle observer.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		if o != nil {
			m.observer = o
		}
	}
}

// NewManager creates a session manager for b.
func NewManager(b backends.Backend, opts ...Option) *Manager {
	m := &Manager{
		backend:      b,
		retry:        DefaultRetryPolicy(),
		closeTimeout: 10 * time.Second,
		observer:     nopObserver{},
		logger:       slog.Default().With("component", "session", "backend", b.Name()),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.retry.MaxAttempts < 1 {
		m.retry.MaxAttempts = 1
	}
	return m
}

// Backend returns the managed backend.
func (m *Manager) Backend() backends.Backend {
	return m.backend
}

// Open opens a session, re-authenticating between failed attempts. Session
// errors and rejected credentials are retried; anything else fails at once.
// When the attempts are exhausted the last error is reported inside an
// AuthError.
func (m *Manager) Open(ctx context.Context) (backends.SessionHandle, error) {
	bo := backoff.NewExponentialBackOff()
	if m.retry.InitialInterval > 0 {
		bo.InitialInterval = m.retry.InitialInterval
	}
	if m.retry.MaxInterval > 0 {
		bo.MaxInterval = m.retry.MaxInterval
	}

	attempt := 0
	var lastErr error

	h, err := backoff.Retry(ctx, func() (backends.SessionHandle, error) {
		attempt++
		gen := m.backend.AuthGeneration()

		start := time.Now()
		h, err := m.backend.OpenSession(ctx)
		m.observer.SessionOpened(m.backend.Name(), err, time.Since(start))
		if err == nil {
			return h, nil
		}

		var sessErr *backends.SessionError
		if !errors.As(err, &sessErr) && !backends.IsAuthFailure(err) {
			return "", backoff.Permanent(err)
		}
		lastErr = err

		if attempt >= m.retry.MaxAttempts {
			return "", backoff.Permanent(err)
		}

		m.logger.Warn("session open failed, re-authenticating",
			"attempt", attempt,
			"max_attempts", m.retry.MaxAttempts,
			"error", err,
		)
		rerr := m.backend.Reauthenticate(ctx, gen)
		m.observer.Reauthenticated(m.backend.Name(), rerr)
		if rerr != nil {
			return "", backoff.Permanent(rerr)
		}
		return "", err
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(m.retry.MaxAttempts)),
	)
	if err == nil {
		return h, nil
	}
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}

	if lastErr != nil && errors.Is(err, lastErr) {
		return "", &backends.AuthError{
			Backend: m.backend.Name(),
			Message: fmt.Sprintf("session open failed after %d attempts", attempt),
			Cause:   lastErr,
		}
	}
	return "", err
}

// Close deletes the session best-effort. It runs detached from ctx's
// cancellation so an abandoned turn still cleans up.
func (m *Manager) Close(ctx context.Context, h backends.SessionHandle) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.closeTimeout)
	defer cancel()

	m.backend.CloseSession(ctx, h)
	m.observer.SessionClosed(m.backend.Name())
}

// Do runs fn with the turn's event stream inside a fresh session. The
// session is opened before the query is sent and closed on every exit path
// after the stream is released.
func (m *Manager) Do(ctx context.Context, turn *backends.Turn, fn func(backends.EventStream) error) error {
	h, err := m.Open(ctx)
	if err != nil {
		return err
	}
	defer m.Close(ctx, h)

	stream, err := m.backend.StreamQuery(ctx, turn, h)
	if err != nil {
		return err
	}
	defer stream.Close()

	return fn(stream)
}

// handshakeRequests is the number of sequential requests a handshake may
// make (login page, form post, redirect to the badge).
const handshakeRequests = 3

// defaultProbeTimeout bounds a probe when requests carry no timeout.
const defaultProbeTimeout = 2 * time.Minute

// ProbeTimeout returns a deadline that fits a worst-case Open when every
// request may take requestTimeout: each attempt's open request, plus a
// handshake and the randomized backoff wait between attempts.
func (m *Manager) ProbeTimeout(requestTimeout time.Duration) time.Duration {
	if requestTimeout <= 0 {
		return defaultProbeTimeout
	}
	wait := m.retry.MaxInterval
	if wait <= 0 {
		wait = backoff.DefaultMaxInterval
	}
	wait += wait / 2

	attempts := time.Duration(m.retry.MaxAttempts)
	return attempts*requestTimeout + (attempts-1)*(handshakeRequests*requestTimeout+wait)
}

// Probe performs one open/close cycle through the same failure path as a
// real turn.
func (m *Manager) Probe(ctx context.Context) error {
	h, err := m.Open(ctx)
	if err != nil {
		return err
	}
	m.Close(ctx, h)
	return nil
}
