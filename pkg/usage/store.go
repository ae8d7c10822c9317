package usage

import (
	"fmt"

	"teclab/bitgate/pkg/config"
)

// Open returns the Store selected by cfg.Backend.
func Open(cfg config.UsageConfig) (Store, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite", "sqlite3", "":
		driver := cfg.Backend
		if driver == "" {
			driver = "sqlite"
		}
		return NewSQLiteStore(driver, cfg.Path, cfg.BusyTimeout)
	default:
		return nil, fmt.Errorf("unsupported usage backend: %s", cfg.Backend)
	}
}
