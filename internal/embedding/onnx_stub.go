//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"
)

var errONNXUnavailable = errors.New("ONNX provider requires CGO; build with CGO_ENABLED=1 and onnxruntime")

// ONNXProvider stub type when built without CGO (see onnx.go for real implementation).
type ONNXProvider struct{}

// NewONNXProvider returns an error when built without CGO.
func NewONNXProvider(_ string, _, _ int) (*ONNXProvider, error) {
	return nil, errONNXUnavailable
}

func (p *ONNXProvider) Embed(context.Context, string, []string) ([][]float32, error) {
	return nil, errONNXUnavailable
}

func (p *ONNXProvider) Close() error { return nil }
