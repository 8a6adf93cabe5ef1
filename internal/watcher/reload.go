package watcher

import (
	"context"
	"reflect"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/lifecycle"
)

// Reconfigurer swaps the embedder factory.
type Reconfigurer interface {
	Reconfigure(ctx context.Context, factory lifecycle.Factory) error
}

// EmbeddingReloader restarts the embedder when the embedding section of the
// config file changes. Other sections need a process restart.
type EmbeddingReloader struct {
	manager    Reconfigurer
	newFactory func(config.EmbeddingConfig) lifecycle.Factory
	timeout    time.Duration
	logger     *zap.Logger

	mu      sync.Mutex
	current config.EmbeddingConfig
}

// NewEmbeddingReloader starts from the embedding settings in effect.
func NewEmbeddingReloader(current config.EmbeddingConfig, manager Reconfigurer, newFactory func(config.EmbeddingConfig) lifecycle.Factory, logger *zap.Logger) *EmbeddingReloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmbeddingReloader{
		manager:    manager,
		newFactory: newFactory,
		timeout:    30 * time.Second,
		logger:     logger,
		current:    current,
	}
}

// Reload reads the config at path and reconfigures the embedder if needed.
// It reports whether a reconfiguration happened. Unreadable files are logged
// and leave the running embedder alone.
func (r *EmbeddingReloader) Reload(path string) bool {
	cfg, err := config.Load(path)
	if err != nil {
		r.logger.Warn("config reload failed; keeping current embedder", zap.Error(err))
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if reflect.DeepEqual(cfg.Embedding, r.current) {
		r.logger.Debug("config changed outside embedding section; nothing to reload")
		return false
	}
	r.logger.Info("embedding config changed; restarting embedder",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
	)
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.manager.Reconfigure(ctx, r.newFactory(cfg.Embedding)); err != nil {
		r.logger.Warn("previous embedder did not stop cleanly", zap.Error(err))
	}
	r.current = cfg.Embedding
	return true
}
