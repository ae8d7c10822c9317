package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// isolateEnv keeps tests independent of the developer's environment.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"BIT_USERNAME", "BIT_PASSWORD", "AGENT_APP_KEY", "AGENT_VISITOR_KEY",
		"API_KEY", "PRINT_STATISTICS_INTERVAL",
	} {
		t.Setenv(key, "")
	}
	old := DotEnvFile
	DotEnvFile = ""
	t.Cleanup(func() { DotEnvFile = old })
}

func TestLoadConfig_ValidFile(t *testing.T) {
	path := writeFile(t, "config.yaml", `
proxy:
  listen_address: "0.0.0.0:9000"
  read_timeout: "60s"

models:
  campus:
    type: unified_login
    assistant_id: 7
    timeout: "5s"
    credentials:
      username: "student"
      password: "pw"
    pricing:
      input: 1
      output: 2

telemetry:
  logging:
    level: "debug"
    format: "text"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Proxy.ListenAddress != "0.0.0.0:9000" {
		t.Errorf("expected listen address %q, got %q", "0.0.0.0:9000", cfg.Proxy.ListenAddress)
	}
	if cfg.Proxy.ReadTimeout != 60*time.Second {
		t.Errorf("expected read timeout 60s, got %v", cfg.Proxy.ReadTimeout)
	}
	if len(cfg.Models) != 1 {
		t.Fatalf("expected only the configured model, got %d", len(cfg.Models))
	}
	m := cfg.Models["campus"]
	if m.AssistantID != 7 || m.Timeout != 5*time.Second || m.Name != "campus" {
		t.Errorf("unexpected model: %+v", m)
	}
	if m.Pricing.Input != 1 || m.Pricing.Output != 2 {
		t.Errorf("unexpected pricing: %+v", m.Pricing)
	}
	if !cfg.Telemetry.Metrics.Enabled {
		t.Error("metrics must stay enabled when the file does not mention them")
	}
}

func TestLoadConfig_NoPath(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig(\"\") failed: %v", err)
	}
	if len(cfg.Models) != 2 {
		t.Errorf("expected the two default models, got %d", len(cfg.Models))
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", "proxy: [unclosed")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestLoadConfig_ValidationFailure(t *testing.T) {
	path := writeFile(t, "config.yaml", `
models:
  broken:
    type: carrier_pigeon
`)
	_, err := LoadConfig(path)
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Errors[0].Field != "models.broken.type" {
		t.Errorf("unexpected field %q", verr.Errors[0].Field)
	}
}

func TestLoadConfigWithEnvOverrides_Credentials(t *testing.T) {
	isolateEnv(t)
	t.Setenv("BIT_USERNAME", "1120200000")
	t.Setenv("BIT_PASSWORD", "secret")
	t.Setenv("AGENT_APP_KEY", "app")
	t.Setenv("AGENT_VISITOR_KEY", "visitor")
	t.Setenv("API_KEY", "sk-local")

	cfg, err := LoadConfigWithEnvOverrides("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	ibit := cfg.Models["ibit"].Credentials
	if ibit.Username != "1120200000" || ibit.Password != "secret" {
		t.Errorf("unexpected ibit credentials: %+v", ibit)
	}
	if ibit.AppKey != "" {
		t.Error("app key must not leak into unified_login models")
	}
	ds := cfg.Models["deepseek-r1"].Credentials
	if ds.AppKey != "app" || ds.VisitorKey != "visitor" {
		t.Errorf("unexpected deepseek credentials: %+v", ds)
	}
	if cfg.Proxy.APIKey != "sk-local" {
		t.Errorf("expected API key from env, got %q", cfg.Proxy.APIKey)
	}
	if len(cfg.ActiveModels()) != 2 {
		t.Errorf("expected both models active")
	}
}

func TestLoadConfigWithEnvOverrides_StatisticsInterval(t *testing.T) {
	isolateEnv(t)
	t.Setenv("PRINT_STATISTICS_INTERVAL", "90")

	cfg, err := LoadConfigWithEnvOverrides("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Usage.Statistics.Interval != 90*time.Second {
		t.Errorf("expected 90s, got %v", cfg.Usage.Statistics.Interval)
	}

	t.Setenv("PRINT_STATISTICS_INTERVAL", "soon")
	_, err = LoadConfigWithEnvOverrides("")
	var ferr FieldError
	if !errors.As(err, &ferr) || ferr.Field != "PRINT_STATISTICS_INTERVAL" {
		t.Errorf("expected FieldError for PRINT_STATISTICS_INTERVAL, got %v", err)
	}
}

func TestLoadConfigWithEnvOverrides_InvalidValues(t *testing.T) {
	isolateEnv(t)
	t.Setenv("BITGATE_TELEMETRY_METRICS_ENABLED", "maybe")

	if _, err := LoadConfigWithEnvOverrides(""); err == nil {
		t.Fatal("expected error for invalid boolean")
	}
}

func TestLoadConfigWithEnvOverrides_DotEnv(t *testing.T) {
	isolateEnv(t)
	// Set but empty variables count as present for godotenv, so drop them.
	os.Unsetenv("AGENT_APP_KEY")
	os.Unsetenv("AGENT_VISITOR_KEY")
	t.Cleanup(func() {
		os.Unsetenv("AGENT_APP_KEY")
		os.Unsetenv("AGENT_VISITOR_KEY")
	})
	t.Setenv("BITGATE_TELEMETRY_LOGGING_LEVEL", "warn")

	DotEnvFile = writeFile(t, ".env", "AGENT_APP_KEY=from-dotenv\nAGENT_VISITOR_KEY=v\nBITGATE_TELEMETRY_LOGGING_LEVEL=debug\n")

	cfg, err := LoadConfigWithEnvOverrides("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got := cfg.Models["deepseek-r1"].Credentials.AppKey; got != "from-dotenv" {
		t.Errorf("expected app key from .env, got %q", got)
	}
	if cfg.Telemetry.Logging.Level != "warn" {
		t.Errorf("process environment must win over .env, got %q", cfg.Telemetry.Logging.Level)
	}
}

func TestLoadConfigWithEnvOverrides_MissingDotEnv(t *testing.T) {
	isolateEnv(t)
	DotEnvFile = filepath.Join(t.TempDir(), ".env")

	if _, err := LoadConfigWithEnvOverrides(""); err != nil {
		t.Fatalf("a missing .env must be ignored, got %v", err)
	}
}
