package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultBatchSize is the largest number of texts sent in one provider call.
	DefaultBatchSize = 100
	// DefaultCacheSize bounds the in-process cache when none is configured.
	DefaultCacheSize = 1000
)

// Embedder is the cache-augmented batch pipeline in front of a Provider.
// It is safe for concurrent use.
type Embedder struct {
	provider    Provider
	model       string
	dimensions  int
	cache       Cache
	batchSize   int
	retry       RetryPolicy
	callTimeout time.Duration
	logger      *zap.Logger
	closers     []func() error
}

// Option configures an Embedder.
type Option func(*Embedder)

// WithCache replaces the default FIFO cache.
func WithCache(c Cache) Option {
	return func(e *Embedder) { e.cache = c }
}

// WithBatchSize sets the chunk size for provider calls.
func WithBatchSize(n int) Option {
	return func(e *Embedder) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithRetryPolicy sets the retry policy for provider calls.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(e *Embedder) { e.retry = p }
}

// WithCallTimeout bounds each individual provider call. Zero means no bound.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Embedder) { e.callTimeout = d }
}

// WithDimensions records the expected vector size.
func WithDimensions(n int) Option {
	return func(e *Embedder) { e.dimensions = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Embedder) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithCloser registers a cleanup run by Close after the provider is closed.
func WithCloser(fn func() error) Option {
	return func(e *Embedder) { e.closers = append(e.closers, fn) }
}

// NewEmbedder wraps provider with caching, chunking and retry.
func NewEmbedder(provider Provider, model string, opts ...Option) *Embedder {
	e := &Embedder{
		provider:  provider,
		model:     model,
		batchSize: DefaultBatchSize,
		retry:     DefaultRetryPolicy,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cache == nil {
		e.cache = NewFIFOCache(DefaultCacheSize)
	}
	return e
}

// Model returns the provider model name.
func (e *Embedder) Model() string { return e.model }

// Dimensions returns the configured vector size, or 0 if unknown.
func (e *Embedder) Dimensions() int { return e.dimensions }

// Cache returns the cache in front of the provider.
func (e *Embedder) Cache() Cache { return e.cache }

// EmbedOne returns the embedding for text, consulting the cache first.
func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := e.cache.Get(ctx, text); ok {
		return vec, nil
	}
	vecs, err := e.call(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	e.cache.Set(ctx, text, vecs[0])
	return vecs[0], nil
}

// EmbedMany returns one embedding per text in input order. Cached texts are served
// locally; the rest are sent to the provider in chunks of at most the batch size.
// On failure, vectors from chunks that already succeeded stay cached.
func (e *Embedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	var missing []int
	for i, text := range texts {
		if vec, ok := e.cache.Get(ctx, text); ok {
			out[i] = vec
			continue
		}
		missing = append(missing, i)
	}
	e.logger.Debug("embedding batch",
		zap.Int("texts", len(texts)),
		zap.Int("cached", len(texts)-len(missing)),
	)

	for start := 0; start < len(missing); start += e.batchSize {
		end := min(start+e.batchSize, len(missing))
		idx := missing[start:end]
		batch := make([]string, len(idx))
		for j, i := range idx {
			batch[j] = texts[i]
		}
		vecs, err := e.call(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("embedding chunk %d-%d of %d: %w", start, end, len(missing), err)
		}
		for j, i := range idx {
			out[i] = vecs[j]
			e.cache.Set(ctx, texts[i], vecs[j])
		}
	}
	return out, nil
}

// call sends one chunk to the provider under the retry policy.
// Empty strings are sent as a single space, which providers accept.
func (e *Embedder) call(ctx context.Context, texts []string) ([][]float32, error) {
	input := make([]string, len(texts))
	for i, t := range texts {
		if t == "" {
			t = " "
		}
		input[i] = t
	}

	var vecs [][]float32
	attempt := 0
	err := e.retry.Do(ctx, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			e.logger.Warn("retrying embedding call", zap.Int("attempt", attempt), zap.Int("texts", len(input)))
		}
		callCtx := ctx
		if e.callTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, e.callTimeout)
			defer cancel()
		}
		var err error
		vecs, err = e.provider.Embed(callCtx, e.model, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(input) {
		return nil, fmt.Errorf("provider returned %d embeddings for %d texts", len(vecs), len(input))
	}
	return vecs, nil
}

// Close releases the provider and any registered resources.
func (e *Embedder) Close() error {
	err := e.provider.Close()
	for _, fn := range e.closers {
		if cerr := fn(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
