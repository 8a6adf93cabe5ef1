package health

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/lifecycle"
)

// Pinger is a dependency that can be checked with a round trip.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingProbe reports up when p.Ping succeeds.
func PingProbe(p Pinger, okMessage string) Probe {
	return func(ctx context.Context) (ServiceStatus, error) {
		if err := p.Ping(ctx); err != nil {
			return ServiceStatus{}, err
		}
		return ServiceStatus{Status: StatusUp, Message: okMessage}, nil
	}
}

// EmbedderState is the read-only view of the embedder lifecycle.
type EmbedderState interface {
	State() lifecycle.State
	Err() error
}

// EmbedderProbe reports the lifecycle state without waiting for or starting construction.
func EmbedderProbe(m EmbedderState) Probe {
	return func(context.Context) (ServiceStatus, error) {
		switch m.State() {
		case lifecycle.StateReady:
			return ServiceStatus{Status: StatusUp, Message: "ready"}, nil
		case lifecycle.StateInitializing:
			return ServiceStatus{Status: StatusInitializing, Message: "loading embedding model"}, nil
		case lifecycle.StateFailed:
			return ServiceStatus{Status: StatusDown, Message: fmt.Sprintf("initialization failed: %v", m.Err())}, nil
		default:
			return ServiceStatus{Status: StatusDown, Message: "not started"}, nil
		}
	}
}
