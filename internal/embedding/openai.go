package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAIConfig configures the OpenAI embeddings provider.
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	Dimensions     int
	MaxInputTokens int
	RequestTimeout time.Duration
}

// OpenAIProvider embeds text through the OpenAI embeddings API.
// SDK retries are disabled; the pipeline owns retry policy.
type OpenAIProvider struct {
	client     openai.Client
	dimensions int
	truncator  *Truncator
}

// NewOpenAIProvider creates an OpenAI provider. An API key is required.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.RequestTimeout))
	}
	p := &OpenAIProvider{
		client:     openai.NewClient(opts...),
		dimensions: cfg.Dimensions,
	}
	if cfg.MaxInputTokens > 0 {
		t, err := NewTruncator(cfg.MaxInputTokens)
		if err != nil {
			return nil, err
		}
		p.truncator = t
	}
	return p, nil
}

// Embed sends texts in a single request.
func (p *OpenAIProvider) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	input := texts
	if p.truncator != nil {
		input = make([]string, len(texts))
		for i, t := range texts {
			input[i] = p.truncator.Truncate(t)
		}
	}
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: input,
		},
	}
	if p.dimensions > 0 {
		params.Dimensions = openai.Int(int64(p.dimensions))
	}
	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &StatusError{
				Provider:   "openai",
				StatusCode: apiErr.StatusCode,
				Code:       apiErr.Code,
				Message:    apiErr.Message,
			}
		}
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d texts", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, fmt.Errorf("openai returned embedding index %d out of range", d.Index)
		}
		out[d.Index] = toFloat32(d.Embedding)
	}
	return out, nil
}

func (p *OpenAIProvider) Close() error { return nil }

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
