package config

import (
	"testing"
)

func TestInitialize(t *testing.T) {
	resetForTest()
	t.Cleanup(resetForTest)
	isolateEnv(t)

	path := writeFile(t, "config.yaml", "proxy:\n  listen_address: \"127.0.0.1:8081\"\n")
	if err := Initialize(path); err != nil {
		t.Fatalf("failed to initialize config: %v", err)
	}
	if got := GetConfig().Proxy.ListenAddress; got != "127.0.0.1:8081" {
		t.Errorf("expected listen address from file, got %q", got)
	}

	other := writeFile(t, "other.yaml", "proxy:\n  listen_address: \"127.0.0.1:9999\"\n")
	if err := Initialize(other); err != nil {
		t.Fatalf("second Initialize: %v", err)
	}
	if got := GetConfig().Proxy.ListenAddress; got != "127.0.0.1:8081" {
		t.Errorf("second Initialize must be ignored, got %q", got)
	}
}

func TestReloadConfig_RunsHooks(t *testing.T) {
	resetForTest()
	t.Cleanup(resetForTest)
	isolateEnv(t)

	path := writeFile(t, "config.yaml", `
models:
  ibit:
    type: unified_login
    pricing:
      input: 2
`)
	var seen float64
	OnReload(func(cfg *Config) { seen = cfg.Models["ibit"].Pricing.Input })

	if err := ReloadConfig(path); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if seen != 2 {
		t.Errorf("expected hook to see input price 2, got %v", seen)
	}
	if GetConfig() == nil {
		t.Error("expected global config after reload")
	}
}

func TestReloadConfig_KeepsOldOnFailure(t *testing.T) {
	resetForTest()
	t.Cleanup(resetForTest)
	isolateEnv(t)

	old := Default()
	SetConfig(old)

	bad := writeFile(t, "bad.yaml", "telemetry:\n  logging:\n    level: loud\n")
	if err := ReloadConfig(bad); err == nil {
		t.Fatal("expected reload error")
	}
	if GetConfig() != old {
		t.Error("failed reload must keep the previous config")
	}
}

func TestMustGetConfig(t *testing.T) {
	resetForTest()
	t.Cleanup(resetForTest)

	defer func() {
		if recover() == nil {
			t.Error("expected panic before initialization")
		}
	}()
	MustGetConfig()
}
