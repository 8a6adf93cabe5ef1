package embedding

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
)

// NewProvider builds the provider named by cfg.Provider.
func NewProvider(ctx context.Context, cfg config.EmbeddingConfig) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:         cfg.APIKey(),
			BaseURL:        cfg.BaseURL,
			Dimensions:     cfg.Dimensions,
			MaxInputTokens: cfg.MaxInputTokens,
		})
	case "gemini":
		return NewGeminiProvider(ctx, GeminiConfig{APIKey: cfg.APIKey(), Dimensions: cfg.Dimensions})
	case "ollama":
		return NewOllamaProvider(cfg.BaseURL, &http.Client{}), nil
	case "onnx":
		if cfg.ONNX.ModelPath == "" {
			return nil, fmt.Errorf("onnx provider requires embedding.onnx.model_path")
		}
		return NewONNXProvider(cfg.ONNX.ModelPath, cfg.Dimensions, cfg.ONNX.MaxTokens)
	case "hash":
		return NewHashProvider(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// NewCache builds the cache backend named by cfg.Cache.Backend. The returned
// close function releases backend connections and is never nil.
func NewCache(ctx context.Context, cfg config.EmbeddingConfig, logger *zap.Logger) (Cache, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Cache.Backend {
	case "", "fifo":
		return NewFIFOCache(cfg.Cache.MaxSize), noop, nil
	case "lru":
		c, err := NewLRUCache(cfg.Cache.MaxSize)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create LRU cache: %w", err)
		}
		return c, noop, nil
	case "redis":
		c, err := NewRedisCache(ctx, cfg.Cache.RedisURL, cfg.Cache.RedisPrefix, cfg.Model, cfg.Cache.MaxSize, logger)
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

// New builds a ready Embedder from configuration. With cfg.Warmup set, one
// provider round trip is made so that a misconfigured key fails here rather
// than on the first query.
func New(ctx context.Context, cfg config.EmbeddingConfig, logger *zap.Logger) (*Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	provider, err := NewProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	cache, closeCache, err := NewCache(ctx, cfg, logger)
	if err != nil {
		_ = provider.Close()
		return nil, err
	}
	e := NewEmbedder(provider, cfg.Model,
		WithCache(cache),
		WithCloser(closeCache),
		WithBatchSize(cfg.BatchSize),
		WithDimensions(cfg.Dimensions),
		WithCallTimeout(cfg.RequestTimeout),
		WithRetryPolicy(RetryPolicy{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			InitialBackoff: cfg.Retry.InitialBackoff,
			MaxBackoff:     cfg.Retry.MaxBackoff,
		}),
		WithLogger(logger.Named("embedder")),
	)
	if cfg.Warmup {
		vecs, err := e.call(ctx, []string{"warmup"})
		if err != nil {
			_ = e.Close()
			return nil, fmt.Errorf("embedder warmup failed: %w", err)
		}
		if e.dimensions == 0 {
			e.dimensions = len(vecs[0])
		}
	}
	logger.Info("embedder ready",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.String("cache", cfg.Cache.Backend),
	)
	return e, nil
}
