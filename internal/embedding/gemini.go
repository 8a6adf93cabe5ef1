package embedding

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini embeddings provider.
type GeminiConfig struct {
	APIKey     string
	Dimensions int
}

// GeminiProvider embeds text through the Gemini API.
type GeminiProvider struct {
	client     *genai.Client
	dimensions int
}

// NewGeminiProvider creates a Gemini provider. An API key is required.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("Gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiProvider{client: client, dimensions: cfg.Dimensions}, nil
}

// Embed sends texts as one batch of contents.
func (p *GeminiProvider) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}
	var cfg *genai.EmbedContentConfig
	if p.dimensions > 0 {
		dims := int32(p.dimensions)
		cfg = &genai.EmbedContentConfig{OutputDimensionality: &dims}
	}
	resp, err := p.client.Models.EmbedContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, geminiError(err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini returned %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}
	out := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		if e == nil {
			return nil, fmt.Errorf("gemini returned no embedding at index %d", i)
		}
		out[i] = e.Values
	}
	return out, nil
}

func (p *GeminiProvider) Close() error { return nil }

func geminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &StatusError{Provider: "gemini", StatusCode: apiErr.Code, Code: apiErr.Status, Message: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &StatusError{Provider: "gemini", StatusCode: apiErrPtr.Code, Code: apiErrPtr.Status, Message: apiErrPtr.Message}
	}
	return fmt.Errorf("gemini embeddings: %w", err)
}
