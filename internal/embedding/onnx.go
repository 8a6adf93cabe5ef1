//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hyperjump/kotae/pkg/utils"
)

// ONNXProvider runs a local sentence-embedding model with ONNX Runtime.
// It requires CGO and the onnxruntime shared library.
type ONNXProvider struct {
	session    *ort.AdvancedSession
	dimensions int
	maxTokens  int
	tokenizer  Tokenizer
	// Tensors are bound to the session; Embed rewrites inputs and reads the output.
	inputIDsTensor      *ort.Tensor[int64]
	attentionMaskTensor *ort.Tensor[int64]
	tokenTypeIDsTensor  *ort.Tensor[int64]
	outputTensor        *ort.Tensor[float32]
	mu                  sync.Mutex
}

// NewONNXProvider loads the model at modelPath. The runtime environment is
// initialized on first use.
func NewONNXProvider(modelPath string, dimensions, maxTokens int) (*ONNXProvider, error) {
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	p := &ONNXProvider{
		dimensions: dimensions,
		maxTokens:  maxTokens,
		tokenizer:  &WordTokenizer{},
	}
	inputIDs, attentionMask, tokenTypeIDs := p.tokenizer.Tokenize("", maxTokens)
	shape := ort.NewShape(1, int64(len(inputIDs)))

	var err error
	if p.inputIDsTensor, err = ort.NewTensor(shape, inputIDs); err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	if p.attentionMaskTensor, err = ort.NewTensor(shape, attentionMask); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	if p.tokenTypeIDsTensor, err = ort.NewTensor(shape, tokenTypeIDs); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}
	if p.outputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(dimensions))); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	p.session, err = ort.NewAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"output"},
		[]ort.ArbitraryTensor{p.inputIDsTensor, p.attentionMaskTensor, p.tokenTypeIDsTensor},
		[]ort.ArbitraryTensor{p.outputTensor},
		nil,
	)
	if err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return p, nil
}

// Embed runs inference once per text. The model name is fixed by the loaded file.
func (p *ONNXProvider) Embed(ctx context.Context, _ string, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session == nil {
		return nil, fmt.Errorf("onnx provider is closed")
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		inputIDs, attentionMask, tokenTypeIDs := p.tokenizer.Tokenize(text, p.maxTokens)
		copy(p.inputIDsTensor.GetData(), inputIDs)
		copy(p.attentionMaskTensor.GetData(), attentionMask)
		copy(p.tokenTypeIDsTensor.GetData(), tokenTypeIDs)

		if err := p.session.Run(); err != nil {
			return nil, fmt.Errorf("inference failed: %w", err)
		}
		vec := make([]float32, p.dimensions)
		copy(vec, p.outputTensor.GetData())
		utils.NormalizeL2(vec)
		out[i] = vec
	}
	return out, nil
}

// Close destroys the session and tensors.
func (p *ONNXProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	if p.session != nil {
		err = p.session.Destroy()
		p.session = nil
	}
	if p.inputIDsTensor != nil {
		_ = p.inputIDsTensor.Destroy()
	}
	if p.attentionMaskTensor != nil {
		_ = p.attentionMaskTensor.Destroy()
	}
	if p.tokenTypeIDsTensor != nil {
		_ = p.tokenTypeIDsTensor.Destroy()
	}
	if p.outputTensor != nil {
		_ = p.outputTensor.Destroy()
	}
	p.inputIDsTensor, p.attentionMaskTensor, p.tokenTypeIDsTensor, p.outputTensor = nil, nil, nil, nil
	return err
}
