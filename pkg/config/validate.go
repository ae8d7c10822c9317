package config

import (
	"fmt"
	"net/url"
	"strings"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "proxy.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together. Missing credentials are not an error here: such models
// are skipped by ActiveModels.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateProxy(&cfg.Proxy)...)
	errs = append(errs, validateModels(cfg.Models)...)
	errs = append(errs, validateSession(&cfg.Session)...)
	errs = append(errs, validateUsage(&cfg.Usage)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateProxy(cfg *ProxyConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "proxy.listen_address",
			Message: "listen address is required",
		})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "proxy.read_timeout",
			Message: "read timeout must be positive",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "proxy.write_timeout",
			Message: "write timeout must be positive",
		})
	}
	if cfg.MaxHeaderBytes < 0 || cfg.MaxHeaderBytes > 10*1024*1024 {
		errs = append(errs, FieldError{
			Field:   "proxy.max_header_bytes",
			Message: "max header bytes must be between 0 and 10MB",
		})
	}
	if cfg.MaxRequestBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "proxy.max_request_bytes",
			Message: "max request bytes must be non-negative",
		})
	}

	return errs
}

func validateModels(models map[string]ModelConfig) []FieldError {
	var errs []FieldError

	for id, m := range models {
		prefix := "models." + id
		if strings.TrimSpace(id) == "" {
			errs = append(errs, FieldError{Field: "models", Message: "model id must not be empty"})
		}

		switch m.Type {
		case TypeUnifiedLogin, TypeAppKey:
		case "":
			errs = append(errs, FieldError{Field: prefix + ".type", Message: "backend type is required"})
		default:
			errs = append(errs, FieldError{
				Field:   prefix + ".type",
				Message: fmt.Sprintf("unknown backend type %q: must be %q or %q", m.Type, TypeUnifiedLogin, TypeAppKey),
			})
		}

		for field, raw := range map[string]string{"base_url": m.BaseURL, "login_url": m.LoginURL} {
			if raw == "" {
				continue
			}
			u, err := url.Parse(raw)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				errs = append(errs, FieldError{
					Field:   prefix + "." + field,
					Message: fmt.Sprintf("invalid URL %q: must be absolute http(s)", raw),
				})
			}
		}

		if m.Timeout < 0 {
			errs = append(errs, FieldError{Field: prefix + ".timeout", Message: "timeout must be positive"})
		}
		if m.StreamIdleTimeout < 0 {
			errs = append(errs, FieldError{Field: prefix + ".stream_idle_timeout", Message: "stream idle timeout must be positive"})
		}
		if m.MaxRetries < 0 {
			errs = append(errs, FieldError{Field: prefix + ".max_retries", Message: "max retries must be non-negative"})
		}
		if m.KeepaliveInterval < 0 {
			errs = append(errs, FieldError{Field: prefix + ".keepalive_interval", Message: "keepalive interval must be positive"})
		}
		if m.Pricing.Input < 0 || m.Pricing.Output < 0 {
			errs = append(errs, FieldError{Field: prefix + ".pricing", Message: "prices must be non-negative"})
		}
	}

	return errs
}

func validateSession(cfg *SessionConfig) []FieldError {
	var errs []FieldError

	if cfg.Retry.MaxAttempts < 1 {
		errs = append(errs, FieldError{Field: "session.retry.max_attempts", Message: "max attempts must be at least 1"})
	}
	if cfg.Retry.InitialInterval < 0 || cfg.Retry.MaxInterval < cfg.Retry.InitialInterval {
		errs = append(errs, FieldError{
			Field:   "session.retry.max_interval",
			Message: "max interval must be greater than or equal to initial interval",
		})
	}
	if cfg.CloseTimeout <= 0 {
		errs = append(errs, FieldError{Field: "session.close_timeout", Message: "close timeout must be positive"})
	}

	return errs
}

func validateUsage(cfg *UsageConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		return nil
	}

	switch cfg.Backend {
	case "sqlite", "sqlite3":
		if cfg.Path == "" {
			errs = append(errs, FieldError{Field: "usage.path", Message: "path is required for SQLite storage"})
		}
	case "memory":
	default:
		errs = append(errs, FieldError{
			Field:   "usage.backend",
			Message: fmt.Sprintf("invalid backend %q: must be 'sqlite', 'sqlite3' or 'memory'", cfg.Backend),
		})
	}

	if cfg.BufferSize < 1 {
		errs = append(errs, FieldError{Field: "usage.buffer_size", Message: "buffer size must be at least 1"})
	}
	if cfg.CharsPerToken <= 0 {
		errs = append(errs, FieldError{Field: "usage.chars_per_token", Message: "chars per token must be positive"})
	}
	if cfg.Statistics.Enabled && cfg.Statistics.Interval <= 0 {
		errs = append(errs, FieldError{Field: "usage.statistics.interval", Message: "interval must be positive"})
	}
	if cfg.Retention.Days < 0 {
		errs = append(errs, FieldError{Field: "usage.retention.days", Message: "retention days must be non-negative"})
	}
	if cfg.Retention.Days > 0 && len(strings.Fields(cfg.Retention.Schedule)) != 5 {
		errs = append(errs, FieldError{
			Field:   "usage.retention.schedule",
			Message: fmt.Sprintf("invalid cron expression %q: expected 5 fields", cfg.Retention.Schedule),
		})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "text" {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json' or 'text'", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with /",
		})
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "tracing endpoint is required when tracing is enabled",
		})
	}
	switch cfg.Tracing.Sampler {
	case "always", "never", "ratio":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sampler",
			Message: fmt.Sprintf("invalid sampler %q: must be 'always', 'never' or 'ratio'", cfg.Tracing.Sampler),
		})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1.0 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}

	if cfg.Health.Enabled {
		if cfg.Health.LivenessPath == "" || cfg.Health.ReadinessPath == "" {
			errs = append(errs, FieldError{
				Field:   "telemetry.health",
				Message: "liveness and readiness paths are required when health checks are enabled",
			})
		}
		if cfg.Health.MinHealthyBackends < 0 {
			errs = append(errs, FieldError{
				Field:   "telemetry.health.min_healthy_backends",
				Message: "must be non-negative",
			})
		}
	}

	return errs
}
