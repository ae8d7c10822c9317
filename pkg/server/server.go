package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"teclab/bitgate/pkg/config"
	"teclab/bitgate/pkg/orchestrator"
	"teclab/bitgate/pkg/proxy/handlers"
	"teclab/bitgate/pkg/proxy/middleware"
	"teclab/bitgate/pkg/registry"
	"teclab/bitgate/pkg/telemetry/health"
	"teclab/bitgate/pkg/telemetry/metrics"
	"teclab/bitgate/pkg/telemetry/tracing"
	"teclab/bitgate/pkg/usage"
)

// healthCheckTimeout bounds each backend readiness check.
const healthCheckTimeout = 5 * time.Second

// Server is the gateway process.
type Server struct {
	config     *config.Config
	configPath string
	version    versionInfo
	started    time.Time

	registry     *registry.Registry
	orchestrator *orchestrator.Orchestrator
	collector    *metrics.Collector
	tracer       *tracing.Tracer
	checker      *health.Checker

	prices   *usage.PriceBook
	store    usage.Store
	recorder *usage.Recorder
	reporter *usage.Reporter

	httpServer   *http.Server
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
	addr         net.Addr
	logger       *slog.Logger
}

type versionInfo struct {
	version, commit, buildTime string
}

type options struct {
	configPath   string
	version      versionInfo
	registryOpts []registry.Option
}

// Option configures a Server.
type Option func(*options)

// WithConfigPath sets the file watched for pricing changes when
// usage.watch_pricing is enabled.
func WithConfigPath(path string) Option {
	return func(o *options) { o.configPath = path }
}

// WithVersion sets the build information served on /version.
func WithVersion(version, commit, buildTime string) Option {
	return func(o *options) { o.version = versionInfo{version, commit, buildTime} }
}

// WithRegistryOptions passes extra options to registry.Build.
func WithRegistryOptions(opts ...registry.Option) Option {
	return func(o *options) { o.registryOpts = append(o.registryOpts, opts...) }
}

// New builds every component from cfg. No network call is made; backends
// are initialized by Start.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	o := options{version: versionInfo{"dev", "unknown", "unknown"}}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{
		config:     cfg,
		configPath: o.configPath,
		version:    o.version,
		started:    time.Now(),
		logger:     slog.Default().With("component", "server"),
	}

	s.collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)

	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}
	s.tracer = tracer

	regOpts := append([]registry.Option{
		registry.WithObserver(s.collector),
		registry.WithHandshakeObserver(s.collector.RecordHandshake),
	}, o.registryOpts...)
	reg, err := registry.Build(cfg, regOpts...)
	if err != nil {
		return nil, err
	}
	s.registry = reg

	orchOpts := []orchestrator.Option{
		orchestrator.WithMetrics(s.collector),
		orchestrator.WithTracer(tracer.Tracer()),
		orchestrator.WithLogContent(cfg.Telemetry.Logging.LogContent),
	}

	s.prices = usage.NewPriceBook(cfg.Models)
	if cfg.Usage.Enabled {
		store, err := usage.Open(cfg.Usage)
		if err != nil {
			_ = reg.Close(context.Background())
			return nil, err
		}
		s.store = store
		s.recorder = usage.NewRecorder(store, s.prices, cfg.Usage, s.collector)
		s.reporter = usage.NewReporter(store, cfg.Usage, s.started)
		orchOpts = append(orchOpts, orchestrator.WithUsage(s.recorder))
	}
	s.orchestrator = orchestrator.New(reg, orchOpts...)

	s.checker = health.New(healthCheckTimeout, cfg.Telemetry.Health.MinHealthyBackends)
	for _, m := range reg.Models() {
		s.checker.RegisterCheck(m.ID, func(ctx context.Context) error {
			err := m.Check(ctx)
			s.collector.UpdateBackendHealth(m.ID, err == nil)
			return err
		})
	}

	return s, nil
}

// Start listens on proxy.listen_address and serves until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Proxy.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Proxy.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve initializes every backend, starts the background jobs and serves
// HTTP on ln until ctx is canceled, then shuts down gracefully. Traffic is
// accepted only after all backends finished their initialization.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		_ = ln.Close()
		return errors.New("server is already running")
	}
	s.isRunning = true
	s.addr = ln.Addr()
	s.mu.Unlock()

	if err := s.registry.InitAll(ctx); err != nil {
		_ = ln.Close()
		_ = s.Shutdown(context.Background())
		return fmt.Errorf("failed to initialize backends: %w", err)
	}

	if s.reporter != nil {
		if err := s.reporter.Start(ctx); err != nil {
			_ = ln.Close()
			_ = s.Shutdown(context.Background())
			return err
		}
	}
	s.watchPricing(ctx)

	s.httpServer = &http.Server{
		Handler:        s.Handler(),
		ReadTimeout:    s.config.Proxy.ReadTimeout,
		WriteTimeout:   s.config.Proxy.WriteTimeout,
		IdleTimeout:    s.config.Proxy.IdleTimeout,
		MaxHeaderBytes: s.config.Proxy.MaxHeaderBytes,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening",
			"address", ln.Addr().String(),
			"models", s.registry.IDs(),
		)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		_ = s.Shutdown(context.Background())
		return err
	}
}

// watchPricing reloads model prices when the config file changes.
func (s *Server) watchPricing(ctx context.Context) {
	if !s.config.Usage.WatchPricing || s.configPath == "" {
		return
	}

	config.OnReload(func(cfg *config.Config) {
		s.prices.Update(cfg.Models)
		s.logger.Info("model pricing reloaded")
	})

	w, err := usage.NewConfigWatcher(s.configPath, usage.DefaultDebounce, config.ReloadConfig)
	if err != nil {
		s.logger.Warn("pricing hot reload disabled", "path", s.configPath, "error", err)
		return
	}
	go func() {
		if err := w.Run(ctx); err != nil {
			s.logger.Warn("config watcher stopped", "error", err)
		}
	}()
}

// Shutdown stops accepting requests, waits for in-flight turns up to
// proxy.shutdown_timeout, then stops background jobs, drains the usage
// recorder and closes backends, the ledger and the tracer.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error

	s.shutdownOnce.Do(func() {
		s.logger.Info("initiating graceful shutdown", "timeout", s.config.Proxy.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Proxy.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
			}
		}
		if s.reporter != nil {
			s.reporter.Stop()
		}
		if err := s.registry.Close(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if s.recorder != nil {
			if err := s.recorder.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if s.store != nil {
			if err := s.store.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if err := s.tracer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		if len(errs) > 0 {
			s.logger.Error("errors during shutdown", "error", errors.Join(errs...))
		}
		s.logger.Info("gateway stopped")
	})

	return errors.Join(errs...)
}

// Handler returns the HTTP handler with all routes and middleware.
//
// Chain, outermost first: recovery, request id, logging, trace context,
// CORS. The /v1 routes additionally require the API key when one is
// configured.
func (s *Server) Handler() http.Handler {
	proxyCfg := s.config.Proxy
	telemetryCfg := s.config.Telemetry

	v1 := http.NewServeMux()
	v1.Handle("/v1/chat/completions", handlers.NewChatHandler(s.orchestrator, proxyCfg.MaxRequestBytes))
	v1.Handle("/v1/models", handlers.NewModelsHandler(s.registry, proxyCfg.OwnedBy, s.started))

	mux := http.NewServeMux()
	mux.Handle("/v1/", middleware.APIKeyMiddleware(proxyCfg.APIKey)(v1))

	if telemetryCfg.Health.Enabled {
		mux.Handle(telemetryCfg.Health.LivenessPath, s.checker.LivenessHandler())
		mux.Handle(telemetryCfg.Health.ReadinessPath, s.checker.ReadinessHandler())
	}
	if telemetryCfg.Metrics.Enabled {
		mux.Handle(telemetryCfg.Metrics.Path, s.collector.Handler())
	}
	mux.Handle("/version", health.VersionHandler(s.version.version, s.version.commit, s.version.buildTime))

	var handler http.Handler = mux
	handler = middleware.CORSMiddleware(middleware.NewCORSConfig(proxyCfg.CORS))(handler)
	handler = tracing.HTTPMiddleware(handler)
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.RequestIDMiddleware(handler)
	handler = middleware.RecoveryMiddleware(handler)
	return handler
}

// IsRunning reports whether Serve is active.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Addr returns the listening address once Serve has been called.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Registry returns the model registry.
func (s *Server) Registry() *registry.Registry {
	return s.registry
}
