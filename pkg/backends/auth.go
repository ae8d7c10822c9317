package backends

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// AuthGuard owns a backend's AuthContext and serializes handshakes. Readers
// get the current context lock-free; writers hold mu for the whole
// handshake, so at most one handshake is in flight per backend.
type AuthGuard struct {
	backend   string
	handshake func(ctx context.Context) (*AuthContext, error)

	mu         sync.Mutex
	current    atomic.Pointer[AuthContext]
	generation atomic.Uint64
	handshakes atomic.Int64

	// OnHandshake, when set, is called after every handshake attempt.
	OnHandshake func(backend string, err error, d time.Duration)
}

// NewAuthGuard creates a guard running handshake for the named backend.
func NewAuthGuard(backend string, handshake func(ctx context.Context) (*AuthContext, error)) *AuthGuard {
	return &AuthGuard{backend: backend, handshake: handshake}
}

// Current returns the installed AuthContext, or nil.
func (g *AuthGuard) Current() *AuthContext {
	return g.current.Load()
}

// Generation returns the number of successful handshakes so far.
func (g *AuthGuard) Generation() uint64 {
	return g.generation.Load()
}

// Handshakes returns the number of handshakes attempted.
func (g *AuthGuard) Handshakes() int64 {
	return g.handshakes.Load()
}

// Authenticate performs a handshake regardless of the current generation.
func (g *AuthGuard) Authenticate(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.run(ctx)
}

// Reauthenticate performs a handshake only if no other caller completed one
// since seen was read. Concurrent callers that observed the same stale
// generation therefore share a single handshake.
func (g *AuthGuard) Reauthenticate(ctx context.Context, seen uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.generation.Load() != seen {
		slog.Debug("auth context already refreshed", "backend", g.backend, "generation", g.generation.Load())
		return nil
	}
	return g.run(ctx)
}

// run must be called with mu held.
func (g *AuthGuard) run(ctx context.Context) error {
	if g.handshake == nil {
		g.generation.Add(1)
		return nil
	}

	g.handshakes.Add(1)
	start := time.Now()
	ac, err := g.handshake(ctx)
	if err == nil && ac == nil {
		err = errors.New("handshake returned no auth context")
	}
	if g.OnHandshake != nil {
		g.OnHandshake(g.backend, err, time.Since(start))
	}
	if err != nil {
		var authErr *AuthError
		if !errors.As(err, &authErr) {
			err = &AuthError{Backend: g.backend, Message: "handshake failed", Cause: err}
		}
		return err
	}

	if ac.ObtainedAt.IsZero() {
		ac.ObtainedAt = time.Now()
	}
	g.current.Store(ac)
	g.generation.Add(1)
	slog.Info("authenticated", "backend", g.backend, "generation", g.generation.Load())
	return nil
}
