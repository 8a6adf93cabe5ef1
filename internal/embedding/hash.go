package embedding

import (
	"context"
	"strings"

	"github.com/hyperjump/kotae/pkg/utils"
)

// HashProvider is a deterministic offline provider. Each lowercase word is hashed
// into one of the dimensions, so texts sharing words score as similar.
// It needs no network or model files and is used for tests and local demos.
type HashProvider struct {
	dimensions int
}

// NewHashProvider returns a provider producing unit vectors of the given size.
func NewHashProvider(dimensions int) *HashProvider {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashProvider{dimensions: dimensions}
}

func (p *HashProvider) Embed(ctx context.Context, _ string, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = p.vector(text)
	}
	return out, nil
}

func (p *HashProvider) vector(text string) []float32 {
	vec := make([]float32, p.dimensions)
	words := strings.Fields(text)
	if len(words) == 0 {
		vec[0] = 1
		return vec
	}
	for _, w := range words {
		h := hashWord(w)
		sign := float32(1)
		if h&(1<<31) != 0 {
			sign = -1
		}
		vec[int(h%uint32(p.dimensions))] += sign
	}
	utils.NormalizeL2(vec)
	return vec
}

// Dimensions returns the vector size.
func (p *HashProvider) Dimensions() int { return p.dimensions }

func (p *HashProvider) Close() error { return nil }
