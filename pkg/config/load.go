package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DotEnvFile is the environment file read by LoadConfigWithEnvOverrides.
// Variables already present in the process environment win.
var DotEnvFile = ".env"

// LoadConfig loads configuration from a YAML file at the specified path.
// An empty path yields the defaults. It applies default values, validates
// the configuration, and returns any errors. Environment variables are not
// consulted; use LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	cfg, err := decode(path)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file, loads
// DotEnvFile if present, and applies environment variable overrides.
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file (optional)
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	if err := loadDotEnv(DotEnvFile); err != nil {
		return nil, err
	}

	cfg, err := decode(path)
	if err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func decode(path string) (*Config, error) {
	cfg := Default()
	cfg.Models = nil

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	ApplyDefaults(cfg)
	return cfg, nil
}

func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	// godotenv.Load never overrides variables that are already set.
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Backend credentials use the deployment's historical names
// (BIT_USERNAME, AGENT_APP_KEY, ...) and apply to every model of the
// matching type; everything else uses BITGATE_SECTION_FIELD.
func applyEnvOverrides(cfg *Config) error {
	for id, m := range cfg.Models {
		switch m.Type {
		case TypeUnifiedLogin:
			setString(&m.Credentials.Username, "BIT_USERNAME")
			setString(&m.Credentials.Password, "BIT_PASSWORD")
		case TypeAppKey:
			setString(&m.Credentials.AppKey, "AGENT_APP_KEY")
			setString(&m.Credentials.VisitorKey, "AGENT_VISITOR_KEY")
		}
		cfg.Models[id] = m
	}

	setString(&cfg.Proxy.APIKey, "API_KEY")

	if val := os.Getenv("PRINT_STATISTICS_INTERVAL"); val != "" {
		secs, err := strconv.Atoi(val)
		if err != nil || secs <= 0 {
			return FieldError{Field: "PRINT_STATISTICS_INTERVAL", Message: fmt.Sprintf("must be a positive number of seconds, got %q", val)}
		}
		cfg.Usage.Statistics.Interval = time.Duration(secs) * time.Second
	}

	// Proxy overrides
	setString(&cfg.Proxy.ListenAddress, "BITGATE_PROXY_LISTEN_ADDRESS")
	if err := setDuration(&cfg.Proxy.ReadTimeout, "BITGATE_PROXY_READ_TIMEOUT"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Proxy.WriteTimeout, "BITGATE_PROXY_WRITE_TIMEOUT"); err != nil {
		return err
	}

	// Usage overrides
	setString(&cfg.Usage.Backend, "BITGATE_USAGE_BACKEND")
	setString(&cfg.Usage.Path, "BITGATE_USAGE_PATH")
	if err := setBool(&cfg.Usage.Enabled, "BITGATE_USAGE_ENABLED"); err != nil {
		return err
	}

	// Telemetry overrides
	setString(&cfg.Telemetry.Logging.Level, "BITGATE_TELEMETRY_LOGGING_LEVEL")
	setString(&cfg.Telemetry.Logging.Format, "BITGATE_TELEMETRY_LOGGING_FORMAT")
	if err := setBool(&cfg.Telemetry.Metrics.Enabled, "BITGATE_TELEMETRY_METRICS_ENABLED"); err != nil {
		return err
	}
	if err := setBool(&cfg.Telemetry.Tracing.Enabled, "BITGATE_TELEMETRY_TRACING_ENABLED"); err != nil {
		return err
	}
	setString(&cfg.Telemetry.Tracing.Endpoint, "BITGATE_TELEMETRY_TRACING_ENDPOINT")

	return nil
}

func setString(dst *string, key string) {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		*dst = val
	}
}

func setDuration(dst *time.Duration, key string) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return FieldError{Field: key, Message: fmt.Sprintf("invalid duration %q", val)}
	}
	*dst = d
	return nil
}

func setBool(dst *bool, key string) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return FieldError{Field: key, Message: fmt.Sprintf("invalid boolean %q", val)}
	}
	*dst = b
	return nil
}
