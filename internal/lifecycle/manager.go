// Package lifecycle owns the process-wide embedder: it constructs it in the
// background at startup and gates callers until it is ready.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/embedding"
)

// DefaultInitTimeout bounds how long Acquire waits for construction.
const DefaultInitTimeout = 60 * time.Second

var (
	// ErrNotStarted is returned by Acquire before Start or after Shutdown.
	ErrNotStarted = errors.New("embedder not started")
	// ErrInitTimeout is returned when construction does not finish within the init timeout.
	ErrInitTimeout = errors.New("timed out waiting for embedder initialization")
	// ErrInitFailed wraps the error returned by the embedder factory.
	ErrInitFailed = errors.New("embedder initialization failed")
)

// State describes where the manager is in the embedder lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "uninitialized"
	}
}

// Factory constructs an embedder. It should honor ctx cancellation.
type Factory func(ctx context.Context) (*embedding.Embedder, error)

// Manager holds at most one embedder and at most one in-flight construction.
type Manager struct {
	factory     Factory
	initTimeout time.Duration
	logger      *zap.Logger

	// lifecycleMu serializes Start, Shutdown and Reconfigure.
	lifecycleMu sync.Mutex

	mu       sync.Mutex
	gen      uint64
	embedder *embedding.Embedder
	done     chan struct{} // closed when the current construction finishes; nil when idle
	cancel   context.CancelFunc
	err      error
}

// Option configures a Manager.
type Option func(*Manager)

// WithInitTimeout sets how long Acquire waits for construction.
func WithInitTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.initTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager creates a manager that builds embedders with factory.
func NewManager(factory Factory, opts ...Option) *Manager {
	m := &Manager{
		factory:     factory,
		initTimeout: DefaultInitTimeout,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches background construction and returns immediately. It is a no-op
// while an embedder is ready or being constructed. After a failed construction,
// Start tries again.
func (m *Manager) Start() {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	m.startLocked()
}

func (m *Manager) startLocked() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.embedder != nil || m.constructingLocked() {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.gen++
	done := make(chan struct{})
	m.done, m.cancel, m.err = done, cancel, nil
	go m.construct(ctx, m.factory, m.gen, done)
}

func (m *Manager) construct(ctx context.Context, factory Factory, gen uint64, done chan struct{}) {
	defer close(done)

	start := time.Now()
	m.logger.Info("starting embedder initialization")
	emb, err := callFactory(ctx, factory)

	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen {
		// Superseded by Shutdown; nobody will hand this embedder out.
		if emb != nil {
			_ = emb.Close()
		}
		m.logger.Info("discarded embedder from cancelled initialization")
		return
	}
	if err == nil && emb == nil {
		err = errors.New("factory returned no embedder")
	}
	if err != nil {
		m.err = err
		m.logger.Error("embedder initialization failed",
			zap.Error(err),
			zap.Duration("elapsed", time.Since(start)),
		)
		return
	}
	m.embedder = emb
	m.logger.Info("embedder initialized", zap.Duration("elapsed", time.Since(start)))
}

// callFactory converts a factory panic into a construction failure.
func callFactory(ctx context.Context, factory Factory) (emb *embedding.Embedder, err error) {
	defer func() {
		if r := recover(); r != nil {
			emb, err = nil, fmt.Errorf("embedder factory panicked: %v", r)
		}
	}()
	return factory(ctx)
}

func (m *Manager) constructingLocked() bool {
	if m.done == nil {
		return false
	}
	select {
	case <-m.done:
		return false
	default:
		return true
	}
}

// Acquire returns the embedder, waiting up to the init timeout for an in-flight
// construction. It never starts construction itself.
func (m *Manager) Acquire(ctx context.Context) (*embedding.Embedder, error) {
	m.mu.Lock()
	if emb := m.embedder; emb != nil {
		m.mu.Unlock()
		return emb, nil
	}
	done := m.done
	m.mu.Unlock()

	if done == nil {
		return nil, ErrNotStarted
	}

	select {
	case <-done:
	default:
		m.logger.Info("waiting for embedder initialization", zap.Duration("timeout", m.initTimeout))
		timer := time.NewTimer(m.initTimeout)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			return nil, fmt.Errorf("%w after %s", ErrInitTimeout, m.initTimeout)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.embedder != nil:
		return m.embedder, nil
	case m.done != done:
		// Shut down, and possibly restarted, while we waited.
		return nil, ErrNotStarted
	case m.err != nil:
		return nil, fmt.Errorf("%w: %w", ErrInitFailed, m.err)
	default:
		return nil, ErrInitFailed
	}
}

// IsInitializing reports whether a construction is in flight.
func (m *Manager) IsInitializing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.constructingLocked()
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.embedder != nil:
		return StateReady
	case m.done == nil:
		return StateUninitialized
	case m.constructingLocked():
		return StateInitializing
	default:
		return StateFailed
	}
}

// Err returns the last construction failure, if the manager is in StateFailed.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Shutdown cancels any in-flight construction, waits for it to finish, closes
// the embedder and returns the manager to the uninitialized state. It is
// idempotent. If ctx expires before construction stops, the manager is still
// reset and the late result is discarded.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	return m.shutdownLocked(ctx)
}

func (m *Manager) shutdownLocked(ctx context.Context) error {
	m.mu.Lock()
	m.gen++
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var waitErr error
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			waitErr = fmt.Errorf("waiting for embedder initialization to stop: %w", ctx.Err())
		}
	}

	m.mu.Lock()
	emb := m.embedder
	m.embedder, m.done, m.cancel, m.err = nil, nil, nil, nil
	m.mu.Unlock()

	if emb != nil {
		if err := emb.Close(); err != nil {
			m.logger.Warn("failed to close embedder", zap.Error(err))
		}
		m.logger.Info("embedder shut down")
	}
	return waitErr
}

// Reconfigure shuts down the current embedder and starts constructing a new
// one with factory.
func (m *Manager) Reconfigure(ctx context.Context, factory Factory) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	err := m.shutdownLocked(ctx)
	m.mu.Lock()
	m.factory = factory
	m.mu.Unlock()
	m.startLocked()
	return err
}
