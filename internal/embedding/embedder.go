// Package embedding turns text into vectors: providers, a bounded cache and the
// batch pipeline that sits between them.
package embedding

import "context"

// Provider computes embeddings for an ordered batch of texts.
// The returned slice has one vector per input, in input order.
type Provider interface {
	Embed(ctx context.Context, model string, texts []string) ([][]float32, error)
	Close() error
}
