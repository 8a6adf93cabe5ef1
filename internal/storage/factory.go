package storage

import (
	"fmt"

	"github.com/hyperjump/kotae/internal/config"
)

// New opens the store selected by cfg.Backend: "sqlite" (default) or "memory".
func New(cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "sqlite", "":
		return NewSQLiteStore(cfg.DatabasePath)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: sqlite, memory)", cfg.Backend)
	}
}
