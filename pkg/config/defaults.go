package config

import "time"

// Backend types accepted in models.<id>.type.
const (
	TypeUnifiedLogin = "unified_login"
	TypeAppKey       = "app_key"
)

// Default values for configuration fields.
const (
	// Proxy defaults
	DefaultListenAddress   = "127.0.0.1:8000"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 10 * time.Minute
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576  // 1MB
	DefaultMaxRequestBytes = 10485760 // 10MB
	DefaultOwnedBy         = "teclab"

	// CORS defaults
	DefaultCORSMaxAge = 3600 // 1 hour

	// Model defaults
	DefaultModelTimeout           = 10 * time.Second
	DefaultModelStreamIdleTimeout = 120 * time.Second
	DefaultModelMaxRetries        = 2
	DefaultKeepaliveInterval      = 60 * time.Second
	DefaultAssistantID            = 43
	DefaultInputPrice             = 4.0
	DefaultOutputPrice            = 16.0

	// Session defaults
	DefaultRetryMaxAttempts     = 3
	DefaultRetryInitialInterval = time.Second
	DefaultRetryMaxInterval     = 5 * time.Second
	DefaultSessionCloseTimeout  = 10 * time.Second

	// Usage defaults
	DefaultUsageBackend       = "sqlite"
	DefaultUsagePath          = "data/usage.db"
	DefaultUsageBusyTimeout   = 5 * time.Second
	DefaultUsageBufferSize    = 1000
	DefaultUsageWriteTimeout  = 5 * time.Second
	DefaultUsageCurrency      = "CNY"
	DefaultCharsPerToken      = 4.0
	DefaultStatisticsInterval = 30 * time.Second
	DefaultRetentionSchedule  = "0 3 * * *"

	// Telemetry defaults
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "json"
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "bitgate"
	DefaultMetricsSubsystem   = "gateway"
	DefaultTracingSampler     = "ratio"
	DefaultTracingSampleRatio = 1.0
	DefaultServiceName        = "bitgate"
	DefaultTracingTimeout     = 10 * time.Second
	DefaultLivenessPath       = "/health"
	DefaultReadinessPath      = "/ready"
)

// DefaultTurnDurationBuckets are the default turn duration histogram buckets.
var DefaultTurnDurationBuckets = []float64{0.5, 1, 2, 5, 10, 30, 60, 120}

// Default returns a configuration populated with defaults. Boolean fields
// whose default is true are only settable here, so YAML is decoded on top
// of this value rather than into a zero Config.
func Default() *Config {
	cfg := &Config{
		Proxy: ProxyConfig{
			CORS: CORSConfig{Enabled: true},
		},
		Usage: UsageConfig{
			Enabled:    true,
			Statistics: StatisticsConfig{Enabled: true},
		},
		Telemetry: TelemetryConfig{
			Logging: LoggingConfig{RedactSecrets: true},
			Metrics: MetricsConfig{Enabled: true},
			Tracing: TracingConfig{Insecure: true},
			Health:  HealthConfig{Enabled: true},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// DefaultModels returns the two built-in models. They only become active
// once their credentials are supplied.
func DefaultModels() map[string]ModelConfig {
	return map[string]ModelConfig{
		"ibit": {
			Name: "iBit",
			Type: TypeUnifiedLogin,
		},
		"deepseek-r1": {
			Name: "DeepSeek-R1",
			Type: TypeAppKey,
		},
	}
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	applyProxyDefaults(&cfg.Proxy)

	if len(cfg.Models) == 0 {
		cfg.Models = DefaultModels()
	}
	for id, m := range cfg.Models {
		applyModelDefaults(id, &m)
		cfg.Models[id] = m
	}

	// Session defaults
	if cfg.Session.Retry.MaxAttempts == 0 {
		cfg.Session.Retry.MaxAttempts = DefaultRetryMaxAttempts
	}
	if cfg.Session.Retry.InitialInterval == 0 {
		cfg.Session.Retry.InitialInterval = DefaultRetryInitialInterval
	}
	if cfg.Session.Retry.MaxInterval == 0 {
		cfg.Session.Retry.MaxInterval = DefaultRetryMaxInterval
	}
	if cfg.Session.CloseTimeout == 0 {
		cfg.Session.CloseTimeout = DefaultSessionCloseTimeout
	}

	applyUsageDefaults(&cfg.Usage)
	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyProxyDefaults(p *ProxyConfig) {
	if p.ListenAddress == "" {
		p.ListenAddress = DefaultListenAddress
	}
	if p.ReadTimeout == 0 {
		p.ReadTimeout = DefaultReadTimeout
	}
	if p.WriteTimeout == 0 {
		p.WriteTimeout = DefaultWriteTimeout
	}
	if p.IdleTimeout == 0 {
		p.IdleTimeout = DefaultIdleTimeout
	}
	if p.ShutdownTimeout == 0 {
		p.ShutdownTimeout = DefaultShutdownTimeout
	}
	if p.MaxHeaderBytes == 0 {
		p.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if p.MaxRequestBytes == 0 {
		p.MaxRequestBytes = DefaultMaxRequestBytes
	}
	if p.OwnedBy == "" {
		p.OwnedBy = DefaultOwnedBy
	}

	// CORS lists
	if len(p.CORS.AllowedOrigins) == 0 {
		p.CORS.AllowedOrigins = []string{"*"}
	}
	if len(p.CORS.AllowedMethods) == 0 {
		p.CORS.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(p.CORS.AllowedHeaders) == 0 {
		p.CORS.AllowedHeaders = []string{"Authorization", "Content-Type", "X-Request-ID"}
	}
	if len(p.CORS.ExposedHeaders) == 0 {
		p.CORS.ExposedHeaders = []string{"X-Request-ID"}
	}
	if p.CORS.MaxAge == 0 {
		p.CORS.MaxAge = DefaultCORSMaxAge
	}
}

func applyModelDefaults(id string, m *ModelConfig) {
	if m.Name == "" {
		m.Name = id
	}
	if m.Timeout == 0 {
		m.Timeout = DefaultModelTimeout
	}
	if m.StreamIdleTimeout == 0 {
		m.StreamIdleTimeout = DefaultModelStreamIdleTimeout
	}
	if m.MaxRetries == 0 {
		m.MaxRetries = DefaultModelMaxRetries
	}
	if m.Type == TypeUnifiedLogin {
		if m.KeepaliveInterval == 0 {
			m.KeepaliveInterval = DefaultKeepaliveInterval
		}
		if m.AssistantID == 0 {
			m.AssistantID = DefaultAssistantID
		}
	}
	if m.Pricing.Input == 0 {
		m.Pricing.Input = DefaultInputPrice
	}
	if m.Pricing.Output == 0 {
		m.Pricing.Output = DefaultOutputPrice
	}
}

func applyUsageDefaults(u *UsageConfig) {
	if u.Backend == "" {
		u.Backend = DefaultUsageBackend
	}
	if u.Path == "" {
		u.Path = DefaultUsagePath
	}
	if u.BusyTimeout == 0 {
		u.BusyTimeout = DefaultUsageBusyTimeout
	}
	if u.BufferSize == 0 {
		u.BufferSize = DefaultUsageBufferSize
	}
	if u.WriteTimeout == 0 {
		u.WriteTimeout = DefaultUsageWriteTimeout
	}
	if u.Currency == "" {
		u.Currency = DefaultUsageCurrency
	}
	if u.CharsPerToken == 0 {
		u.CharsPerToken = DefaultCharsPerToken
	}
	if u.Statistics.Interval == 0 {
		u.Statistics.Interval = DefaultStatisticsInterval
	}
	if u.Retention.Schedule == "" {
		u.Retention.Schedule = DefaultRetentionSchedule
	}
}

func applyTelemetryDefaults(t *TelemetryConfig) {
	if t.Logging.Level == "" {
		t.Logging.Level = DefaultLogLevel
	}
	if t.Logging.Format == "" {
		t.Logging.Format = DefaultLogFormat
	}

	if t.Metrics.Path == "" {
		t.Metrics.Path = DefaultMetricsPath
	}
	if t.Metrics.Namespace == "" {
		t.Metrics.Namespace = DefaultMetricsNamespace
	}
	if t.Metrics.Subsystem == "" {
		t.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if len(t.Metrics.TurnDurationBuckets) == 0 {
		t.Metrics.TurnDurationBuckets = append([]float64(nil), DefaultTurnDurationBuckets...)
	}

	if t.Tracing.Sampler == "" {
		t.Tracing.Sampler = DefaultTracingSampler
	}
	if t.Tracing.SampleRatio == 0 {
		t.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if t.Tracing.ServiceName == "" {
		t.Tracing.ServiceName = DefaultServiceName
	}
	if t.Tracing.Timeout == 0 {
		t.Tracing.Timeout = DefaultTracingTimeout
	}

	if t.Health.LivenessPath == "" {
		t.Health.LivenessPath = DefaultLivenessPath
	}
	if t.Health.ReadinessPath == "" {
		t.Health.ReadinessPath = DefaultReadinessPath
	}
	if t.Health.MinHealthyBackends == 0 {
		t.Health.MinHealthyBackends = 1
	}
}
