// Package registry maps model identifiers to their backends. A Registry is
// built once from configuration and never mutated afterwards; concurrent
// turns only read it.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"teclab/bitgate/pkg/backends"
	"teclab/bitgate/pkg/backends/appkey"
	"teclab/bitgate/pkg/backends/unifiedlogin"
	"teclab/bitgate/pkg/config"
	"teclab/bitgate/pkg/session"
)

// ErrNoModels is returned by Build when no model has credentials.
var ErrNoModels = errors.New("no valid models configured")

// Model is one routable model.
type Model struct {
	// ID is the identifier clients send in the "model" field.
	ID string

	// Name is the display name used in usage reports.
	Name string

	// Backend serves the model.
	Backend backends.Backend

	// Sessions scopes each turn to a disposable upstream conversation.
	Sessions *session.Manager

	// Pricing is the per-million-token price at build time.
	Pricing config.PricingConfig

	keepalive *session.Keepalive
}

// Check reports an error while the backend is unhealthy.
func (m *Model) Check(context.Context) error {
	if m.Backend.IsHealthy() {
		return nil
	}
	h := m.Backend.Health()
	if h.LastError != nil {
		return fmt.Errorf("backend %q unhealthy: %w", m.ID, h.LastError)
	}
	return fmt.Errorf("backend %q unhealthy", m.ID)
}

// Factory creates a backend from its configuration.
type Factory func(cfg backends.BackendConfig) (backends.Backend, error)

// Registry is the immutable model table.
type Registry struct {
	models map[string]*Model
	ids    []string
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

type options struct {
	factory     Factory
	observer    session.Observer
	onHandshake func(backend string, err error, d time.Duration)
}

// Option configures Build.
type Option func(*options)

// WithFactory replaces NewBackend.
func WithFactory(f Factory) Option {
	return func(o *options) { o.factory = f }
}

// WithObserver sets the session lifecycle observer of every model.
func WithObserver(obs session.Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithHandshakeObserver is called after every authentication handshake.
func WithHandshakeObserver(fn func(backend string, err error, d time.Duration)) Option {
	return func(o *options) { o.onHandshake = fn }
}

// NewBackend creates the adapter selected by cfg.Type.
func NewBackend(cfg backends.BackendConfig) (backends.Backend, error) {
	switch cfg.Type {
	case backends.TypeUnifiedLogin:
		return unifiedlogin.New(cfg)
	case backends.TypeAppKey:
		return appkey.New(cfg)
	default:
		return nil, &backends.ConfigError{
			Backend: cfg.Name,
			Field:   "type",
			Message: fmt.Sprintf("unsupported backend type: %q (supported: %s, %s)", cfg.Type, backends.TypeUnifiedLogin, backends.TypeAppKey),
		}
	}
}

// BackendConfig converts a model configuration into a backend configuration.
func BackendConfig(id string, mc config.ModelConfig) backends.BackendConfig {
	return backends.BackendConfig{
		Name:        id,
		Type:        mc.Type,
		BaseURL:     mc.BaseURL,
		LoginURL:    mc.LoginURL,
		AssistantID: mc.AssistantID,
		Credentials: backends.Credentials{
			Username:   mc.Credentials.Username,
			Password:   mc.Credentials.Password,
			AppKey:     mc.Credentials.AppKey,
			VisitorKey: mc.Credentials.VisitorKey,
		},
		Timeout:             mc.Timeout,
		StreamIdleTimeout:   mc.StreamIdleTimeout,
		MaxRetries:          mc.MaxRetries,
		KeepaliveInterval:   mc.KeepaliveInterval,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
}

// Build creates a backend and session manager for every model that has
// credentials. Models without credentials are skipped with a warning.
func Build(cfg *config.Config, opts ...Option) (*Registry, error) {
	o := options{factory: NewBackend}
	for _, opt := range opts {
		opt(&o)
	}

	logger := slog.Default().With("component", "registry")
	for id, mc := range cfg.Models {
		if !mc.HasCredentials() {
			logger.Warn("skipping model without credentials", "model", id, "type", mc.Type)
		}
	}

	active := cfg.ActiveModels()
	if len(active) == 0 {
		return nil, ErrNoModels
	}

	sessionOpts := []session.Option{
		session.WithRetryPolicy(session.RetryPolicy{
			MaxAttempts:     cfg.Session.Retry.MaxAttempts,
			InitialInterval: cfg.Session.Retry.InitialInterval,
			MaxInterval:     cfg.Session.Retry.MaxInterval,
		}),
		session.WithCloseTimeout(cfg.Session.CloseTimeout),
		session.WithObserver(o.observer),
	}

	r := &Registry{models: make(map[string]*Model, len(active)), logger: logger}
	for id, mc := range active {
		b, err := o.factory(BackendConfig(id, mc))
		if err != nil {
			r.closeBackends()
			return nil, fmt.Errorf("failed to create backend for model %q: %w", id, err)
		}
		if o.onHandshake != nil {
			if g, ok := b.(interface{ Guard() *backends.AuthGuard }); ok {
				g.Guard().OnHandshake = o.onHandshake
			}
		}

		m := &Model{
			ID:       id,
			Name:     mc.Name,
			Backend:  b,
			Sessions: session.NewManager(b, sessionOpts...),
			Pricing:  mc.Pricing,
		}
		if m.Name == "" {
			m.Name = id
		}
		if mc.Type == config.TypeUnifiedLogin && mc.KeepaliveInterval > 0 {
			m.keepalive = session.NewKeepalive(m.Sessions, mc.KeepaliveInterval, m.Sessions.ProbeTimeout(mc.Timeout))
		}

		r.models[id] = m
		r.ids = append(r.ids, id)
	}
	sort.Strings(r.ids)

	logger.Info("model registry built", "models", r.ids)
	return r, nil
}

// Lookup returns the model registered under id.
func (r *Registry) Lookup(id string) (*Model, error) {
	m, ok := r.models[id]
	if !ok {
		return nil, backends.NewUnknownModelError(id)
	}
	return m, nil
}

// IDs returns the model identifiers in sorted order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.ids...)
}

// Models returns the models in identifier order.
func (r *Registry) Models() []*Model {
	out := make([]*Model, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.models[id])
	}
	return out
}

// InitAll runs every backend's Init concurrently, probes the session path
// of unified-login backends once and then starts keepalive monitors. Any
// failure aborts startup.
func (r *Registry) InitAll(ctx context.Context) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, m := range r.Models() {
		wg.Add(1)
		go func(m *Model) {
			defer wg.Done()
			start := time.Now()
			if err := m.Backend.Init(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("init model %q: %w", m.ID, err))
				mu.Unlock()
				return
			}
			if m.Backend.Type() == backends.TypeUnifiedLogin {
				if err := m.Sessions.Probe(ctx); err != nil {
					mu.Lock()
					errs = append(errs, fmt.Errorf("probe model %q: %w", m.ID, err))
					mu.Unlock()
					return
				}
			}
			r.logger.Info("backend initialized", "model", m.ID, "type", m.Backend.Type(), "latency", time.Since(start))
		}(m)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return nil
	}
	kctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel
	for _, m := range r.Models() {
		if m.keepalive != nil {
			m.keepalive.Start(kctx)
		}
	}
	return nil
}

// Close stops keepalive monitors and closes every backend.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	var errs []error
	for _, m := range r.Models() {
		if m.keepalive != nil {
			if err := m.keepalive.Stop(ctx); err != nil {
				errs = append(errs, fmt.Errorf("stop keepalive %q: %w", m.ID, err))
			}
		}
	}
	if cancel != nil {
		cancel()
	}
	if err := r.closeBackends(); err != nil {
		errs = append(errs, err)
	}

	r.logger.Info("model registry closed")
	return errors.Join(errs...)
}

func (r *Registry) closeBackends() error {
	var errs []error
	for id, m := range r.models {
		if err := m.Backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close backend %q: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
