package config

import (
	"reflect"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Proxy.ListenAddress != DefaultListenAddress {
		t.Errorf("expected listen address %q, got %q", DefaultListenAddress, cfg.Proxy.ListenAddress)
	}
	if cfg.Proxy.OwnedBy != "teclab" {
		t.Errorf("expected owned_by teclab, got %q", cfg.Proxy.OwnedBy)
	}
	if !cfg.Proxy.CORS.Enabled || !cfg.Usage.Enabled || !cfg.Telemetry.Metrics.Enabled || !cfg.Telemetry.Health.Enabled {
		t.Error("expected CORS, usage, metrics and health to default to enabled")
	}
	if cfg.Telemetry.Tracing.Enabled {
		t.Error("expected tracing to default to disabled")
	}
	if cfg.Usage.Statistics.Interval != 30*time.Second {
		t.Errorf("expected statistics interval 30s, got %v", cfg.Usage.Statistics.Interval)
	}

	ibit, ok := cfg.Models["ibit"]
	if !ok {
		t.Fatal("expected default ibit model")
	}
	if ibit.Type != TypeUnifiedLogin || ibit.Name != "iBit" {
		t.Errorf("unexpected ibit model: %+v", ibit)
	}
	if ibit.AssistantID != DefaultAssistantID {
		t.Errorf("expected assistant id %d, got %d", DefaultAssistantID, ibit.AssistantID)
	}
	if ibit.KeepaliveInterval != DefaultKeepaliveInterval {
		t.Errorf("expected keepalive %v, got %v", DefaultKeepaliveInterval, ibit.KeepaliveInterval)
	}

	ds := cfg.Models["deepseek-r1"]
	if ds.Type != TypeAppKey || ds.Name != "DeepSeek-R1" {
		t.Errorf("unexpected deepseek-r1 model: %+v", ds)
	}
	if ds.KeepaliveInterval != 0 {
		t.Errorf("app_key models do not run keepalive, got %v", ds.KeepaliveInterval)
	}
	if ds.Pricing.Input != 4 || ds.Pricing.Output != 16 {
		t.Errorf("expected pricing 4/16, got %v/%v", ds.Pricing.Input, ds.Pricing.Output)
	}
}

func TestApplyDefaults_ModelName(t *testing.T) {
	cfg := &Config{Models: map[string]ModelConfig{
		"custom": {Type: TypeAppKey},
	}}
	ApplyDefaults(cfg)

	if len(cfg.Models) != 1 {
		t.Fatalf("configured models must not be merged with the defaults, got %d", len(cfg.Models))
	}
	if got := cfg.Models["custom"].Name; got != "custom" {
		t.Errorf("expected name to default to id, got %q", got)
	}
}

func TestApplyDefaults_Idempotent(t *testing.T) {
	cfg := Default()
	before := *cfg
	before.Models = make(map[string]ModelConfig)
	for k, v := range cfg.Models {
		before.Models[k] = v
	}

	ApplyDefaults(cfg)

	if !reflect.DeepEqual(before, *cfg) {
		t.Error("ApplyDefaults is not idempotent")
	}
}
