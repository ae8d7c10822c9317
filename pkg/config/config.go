package config

import "time"

// Config is the root configuration structure for the gateway.
type Config struct {
	// Proxy contains HTTP server configuration including listen address,
	// timeouts, CORS and the optional client API key.
	Proxy ProxyConfig `yaml:"proxy"`

	// Models maps a public model identifier to the backend serving it.
	// Models whose credentials are incomplete are skipped at startup.
	Models map[string]ModelConfig `yaml:"models"`

	// Session contains session lifecycle settings shared by all backends.
	Session SessionConfig `yaml:"session"`

	// Usage contains token accounting, pricing ledger and statistics settings.
	Usage UsageConfig `yaml:"usage"`

	// Telemetry contains logging, metrics, tracing and health settings.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ProxyConfig contains configuration for the HTTP server.
type ProxyConfig struct {
	// ListenAddress is the address and port to listen on.
	// Default: "127.0.0.1:8000"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds writing the response. Streams can run for minutes,
	// so keep this generous.
	// Default: 10m
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits request header size.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// MaxRequestBytes limits request body size.
	// Default: 10485760 (10MB)
	MaxRequestBytes int64 `yaml:"max_request_bytes"`

	// APIKey, when set, must be presented as a bearer token on /v1 routes.
	// Usually supplied through the API_KEY environment variable.
	APIKey string `yaml:"api_key"`

	// OwnedBy is reported as the owner of every model in /v1/models.
	// Default: "teclab"
	OwnedBy string `yaml:"owned_by"`

	// CORS contains Cross-Origin Resource Sharing configuration.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig contains CORS configuration.
type CORSConfig struct {
	// Enabled controls whether CORS headers are sent.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins is a list of allowed origins. ["*"] allows all.
	// Default: ["*"]
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods is a list of allowed HTTP methods.
	// Default: ["GET", "POST", "OPTIONS"]
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders is a list of allowed request headers.
	// Default: ["Authorization", "Content-Type", "X-Request-ID"]
	AllowedHeaders []string `yaml:"allowed_headers"`

	// ExposedHeaders is a list of headers exposed to the client.
	// Default: ["X-Request-ID"]
	ExposedHeaders []string `yaml:"exposed_headers"`

	// MaxAge is the preflight cache duration in seconds.
	// Default: 3600
	MaxAge int `yaml:"max_age"`

	// AllowCredentials controls whether credentials are allowed.
	// Default: false
	AllowCredentials bool `yaml:"allow_credentials"`
}

// ModelConfig configures one public model and its backend.
type ModelConfig struct {
	// Name is the display name used in logs and usage statistics.
	// Default: the model identifier
	Name string `yaml:"name"`

	// Type selects the backend: "unified_login" or "app_key".
	Type string `yaml:"type"`

	// BaseURL overrides the backend's API origin.
	BaseURL string `yaml:"base_url"`

	// LoginURL overrides the identity provider login page (unified_login only).
	LoginURL string `yaml:"login_url"`

	// AssistantID overrides the upstream assistant (unified_login only).
	// Default: 43
	AssistantID int `yaml:"assistant_id"`

	// Credentials are the backend secrets. Prefer environment variables.
	Credentials CredentialsConfig `yaml:"credentials"`

	// Timeout bounds each non-streaming upstream call and the wait for
	// stream response headers.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// StreamIdleTimeout bounds the silence between two stream reads.
	// Default: 120s
	StreamIdleTimeout time.Duration `yaml:"stream_idle_timeout"`

	// MaxRetries is the number of transport retries for idempotent calls.
	// Default: 2
	MaxRetries int `yaml:"max_retries"`

	// KeepaliveInterval is the session probe period (unified_login only).
	// Default: 60s
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`

	// Pricing is the per-million-token price used for usage accounting.
	Pricing PricingConfig `yaml:"pricing"`
}

// CredentialsConfig holds backend secrets.
type CredentialsConfig struct {
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	AppKey     string `yaml:"app_key"`
	VisitorKey string `yaml:"visitor_key"`
}

// PricingConfig is a per-million-token price pair.
type PricingConfig struct {
	// Input is the price per million input tokens.
	// Default: 4
	Input float64 `yaml:"input"`

	// Output is the price per million output tokens.
	// Default: 16
	Output float64 `yaml:"output"`
}

// SessionConfig contains session lifecycle settings.
type SessionConfig struct {
	// Retry bounds re-authentication retries of a failed session open.
	Retry RetryConfig `yaml:"retry"`

	// CloseTimeout bounds the best-effort session delete.
	// Default: 10s
	CloseTimeout time.Duration `yaml:"close_timeout"`
}

// RetryConfig configures the exponential session-open retry.
type RetryConfig struct {
	// MaxAttempts is the total number of open attempts.
	// Default: 3
	MaxAttempts int `yaml:"max_attempts"`

	// InitialInterval is the first backoff wait.
	// Default: 1s
	InitialInterval time.Duration `yaml:"initial_interval"`

	// MaxInterval caps the backoff wait.
	// Default: 5s
	MaxInterval time.Duration `yaml:"max_interval"`
}

// UsageConfig contains usage accounting settings.
type UsageConfig struct {
	// Enabled controls whether usage is recorded.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Backend selects the ledger storage: "sqlite" (pure Go driver),
	// "sqlite3" (cgo driver) or "memory".
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// Path is the SQLite database file.
	// Default: "data/usage.db"
	Path string `yaml:"path"`

	// BusyTimeout is the SQLite busy timeout.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// BufferSize is the async recorder channel capacity. A full buffer
	// drops records instead of blocking a turn.
	// Default: 1000
	BufferSize int `yaml:"buffer_size"`

	// WriteTimeout bounds a single ledger write.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// Currency labels prices in reports.
	// Default: "CNY"
	Currency string `yaml:"currency"`

	// CharsPerToken is the heuristic ratio for non-CJK text.
	// Default: 4.0
	CharsPerToken float64 `yaml:"chars_per_token"`

	// WatchPricing reloads model pricing when the config file changes.
	// Default: false
	WatchPricing bool `yaml:"watch_pricing"`

	// Statistics configures the periodic usage report.
	Statistics StatisticsConfig `yaml:"statistics"`

	// Retention configures pruning of old ledger rows.
	Retention RetentionConfig `yaml:"retention"`
}

// StatisticsConfig configures the periodic usage report.
type StatisticsConfig struct {
	// Enabled controls whether the report is logged.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Interval is the report period. PRINT_STATISTICS_INTERVAL overrides it
	// in seconds.
	// Default: 30s
	Interval time.Duration `yaml:"interval"`
}

// RetentionConfig configures ledger pruning.
type RetentionConfig struct {
	// Days is how long ledger rows are kept. 0 keeps them forever.
	// Default: 0
	Days int `yaml:"days"`

	// Schedule is the cron expression for pruning.
	// Default: "0 3 * * *"
	Schedule string `yaml:"schedule"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`

	// Health contains health endpoint configuration.
	Health HealthConfig `yaml:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactSecrets masks credentials and tokens in log attributes.
	// Default: true
	RedactSecrets bool `yaml:"redact_secrets"`

	// LogContent includes query and answer text in turn logs.
	// Default: false
	LogContent bool `yaml:"log_content"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected and served.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path of the Prometheus endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "bitgate"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "gateway"
	Subsystem string `yaml:"subsystem"`

	// TurnDurationBuckets are histogram buckets for turn duration (seconds).
	// Default: [0.5, 1, 2, 5, 10, 30, 60, 120]
	TurnDurationBuckets []float64 `yaml:"turn_duration_buckets"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether spans are exported.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler is "always", "never" or "ratio".
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces sampled by the ratio sampler.
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP/gRPC collector address.
	// Example: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name in traces.
	// Default: "bitgate"
	ServiceName string `yaml:"service_name"`

	// Insecure disables TLS to the collector.
	// Default: true
	Insecure bool `yaml:"insecure"`

	// Timeout bounds each export.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// HealthConfig contains health endpoint configuration.
type HealthConfig struct {
	// Enabled controls whether health endpoints are served.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// LivenessPath is the liveness endpoint.
	// Default: "/health"
	LivenessPath string `yaml:"liveness_path"`

	// ReadinessPath is the readiness endpoint.
	// Default: "/ready"
	ReadinessPath string `yaml:"readiness_path"`

	// MinHealthyBackends is the number of healthy backends required for
	// readiness.
	// Default: 1
	MinHealthyBackends int `yaml:"min_healthy_backends"`
}

// HasCredentials reports whether the model carries the secrets its
// backend type needs.
func (m ModelConfig) HasCredentials() bool {
	switch m.Type {
	case TypeUnifiedLogin:
		return m.Credentials.Username != "" && m.Credentials.Password != ""
	case TypeAppKey:
		return m.Credentials.AppKey != "" && m.Credentials.VisitorKey != ""
	}
	return false
}

// ActiveModels returns the models whose credentials are complete.
func (c *Config) ActiveModels() map[string]ModelConfig {
	out := make(map[string]ModelConfig, len(c.Models))
	for id, m := range c.Models {
		if m.HasCredentials() {
			out[id] = m
		}
	}
	return out
}
