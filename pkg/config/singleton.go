package config

import (
	"fmt"
	"sync"
)

var (
	// globalConfig holds the singleton configuration instance.
	globalConfig *Config

	// configMutex protects globalConfig and reloadHooks.
	configMutex sync.RWMutex

	// initOnce ensures configuration is initialized only once.
	initOnce sync.Once

	reloadHooks []func(*Config)
)

// Initialize loads configuration from the specified path with environment
// variable overrides and stores it as the global configuration.
// Subsequent calls are ignored.
func Initialize(path string) error {
	var initErr error

	initOnce.Do(func() {
		cfg, err := LoadConfigWithEnvOverrides(path)
		if err != nil {
			initErr = err
			return
		}
		SetConfig(cfg)
	})

	return initErr
}

// GetConfig returns the global configuration instance, or nil before
// Initialize succeeds.
func GetConfig() *Config {
	configMutex.RLock()
	defer configMutex.RUnlock()
	return globalConfig
}

// SetConfig sets the global configuration instance.
func SetConfig(cfg *Config) {
	configMutex.Lock()
	defer configMutex.Unlock()
	globalConfig = cfg
}

// OnReload registers fn to run after every successful ReloadConfig.
func OnReload(fn func(*Config)) {
	configMutex.Lock()
	defer configMutex.Unlock()
	reloadHooks = append(reloadHooks, fn)
}

// ReloadConfig reloads the configuration from path. The global instance is
// replaced only if loading and validation succeed; reload hooks then run
// with the new configuration.
func ReloadConfig(path string) error {
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}

	configMutex.Lock()
	globalConfig = cfg
	hooks := append([]func(*Config){}, reloadHooks...)
	configMutex.Unlock()

	for _, fn := range hooks {
		fn(cfg)
	}
	return nil
}

// MustGetConfig returns the global configuration instance.
// It panics if the configuration has not been initialized.
func MustGetConfig() *Config {
	cfg := GetConfig()
	if cfg == nil {
		panic("configuration not initialized: call Initialize first")
	}
	return cfg
}

// resetForTest clears the global state.
func resetForTest() {
	configMutex.Lock()
	defer configMutex.Unlock()
	globalConfig = nil
	reloadHooks = nil
	initOnce = sync.Once{}
}
