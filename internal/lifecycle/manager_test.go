package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/embedding"
)

type closeTracker struct {
	*embedding.HashProvider
	closed atomic.Bool
}

func (c *closeTracker) Close() error {
	c.closed.Store(true)
	return nil
}

func newEmbedder() (*embedding.Embedder, *closeTracker) {
	p := &closeTracker{HashProvider: embedding.NewHashProvider(8)}
	return embedding.NewEmbedder(p, "hash"), p
}

func TestAcquire_notStarted(t *testing.T) {
	m := NewManager(func(context.Context) (*embedding.Embedder, error) {
		t.Fatal("factory should not be called")
		return nil, nil
	})
	if _, err := m.Acquire(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("err = %v, want ErrNotStarted", err)
	}
	if m.IsInitializing() {
		t.Error("IsInitializing should be false before Start")
	}
	if s := m.State(); s != StateUninitialized {
		t.Errorf("State = %s", s)
	}
}

func TestStart_concurrentCallsConstructOnce(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	m := NewManager(func(context.Context) (*embedding.Embedder, error) {
		calls.Add(1)
		<-release
		e, _ := newEmbedder()
		return e, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Start()
		}()
	}
	wg.Wait()
	if !m.IsInitializing() {
		t.Error("expected construction in flight")
	}
	close(release)

	e, err := m.Acquire(context.Background())
	if err != nil || e == nil {
		t.Fatalf("Acquire: %v", err)
	}
	m.Start()
	if got := calls.Load(); got != 1 {
		t.Errorf("factory calls = %d, want 1", got)
	}
	if m.IsInitializing() || m.State() != StateReady {
		t.Errorf("state = %s", m.State())
	}
	again, _ := m.Acquire(context.Background())
	if again != e {
		t.Error("Acquire should return the same embedder")
	}
}

func TestAcquire_waitsForConstruction(t *testing.T) {
	m := NewManager(func(context.Context) (*embedding.Embedder, error) {
		time.Sleep(20 * time.Millisecond)
		e, _ := newEmbedder()
		return e, nil
	})
	m.Start()
	if _, err := m.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestAcquire_timeout(t *testing.T) {
	m := NewManager(func(ctx context.Context) (*embedding.Embedder, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, WithInitTimeout(20*time.Millisecond))
	m.Start()

	start := time.Now()
	_, err := m.Acquire(context.Background())
	if !errors.Is(err, ErrInitTimeout) {
		t.Fatalf("err = %v, want ErrInitTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Acquire took %v", elapsed)
	}
	if !m.IsInitializing() {
		t.Error("construction should still be in flight after a wait timeout")
	}
	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestAcquire_callerContext(t *testing.T) {
	m := NewManager(func(ctx context.Context) (*embedding.Embedder, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	m.Start()
	defer m.Shutdown(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := m.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context deadline", err)
	}
}

func TestAcquire_constructionFailure(t *testing.T) {
	cause := errors.New("missing API key")
	var calls atomic.Int32
	m := NewManager(func(context.Context) (*embedding.Embedder, error) {
		if calls.Add(1) == 1 {
			return nil, cause
		}
		e, _ := newEmbedder()
		return e, nil
	})
	m.Start()

	_, err := m.Acquire(context.Background())
	if !errors.Is(err, ErrInitFailed) || !errors.Is(err, cause) {
		t.Fatalf("err = %v, want ErrInitFailed wrapping cause", err)
	}
	if m.State() != StateFailed || !errors.Is(m.Err(), cause) {
		t.Errorf("state = %s err = %v", m.State(), m.Err())
	}
	if m.IsInitializing() {
		t.Error("IsInitializing should be false after failure")
	}

	m.Start()
	if _, err := m.Acquire(context.Background()); err != nil {
		t.Fatalf("restart after failure: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("factory calls = %d, want 2", got)
	}
}

func TestAcquire_factoryPanic(t *testing.T) {
	m := NewManager(func(context.Context) (*embedding.Embedder, error) {
		panic("boom")
	})
	m.Start()
	if _, err := m.Acquire(context.Background()); !errors.Is(err, ErrInitFailed) {
		t.Errorf("err = %v, want ErrInitFailed", err)
	}
}

func TestShutdown_cancelsConstruction(t *testing.T) {
	started := make(chan struct{})
	var built *closeTracker
	m := NewManager(func(ctx context.Context) (*embedding.Embedder, error) {
		close(started)
		<-ctx.Done()
		// Return a result anyway; it must be discarded.
		e, p := newEmbedder()
		built = p
		return e, nil
	})
	m.Start()
	<-started

	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if m.State() != StateUninitialized || m.IsInitializing() {
		t.Errorf("state = %s", m.State())
	}
	if _, err := m.Acquire(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("err = %v, want ErrNotStarted", err)
	}
	if built == nil || !built.closed.Load() {
		t.Error("late embedder should be closed")
	}
}

func TestShutdown_closesEmbedderAndIsIdempotent(t *testing.T) {
	var p *closeTracker
	m := NewManager(func(context.Context) (*embedding.Embedder, error) {
		var e *embedding.Embedder
		e, p = newEmbedder()
		return e, nil
	})
	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown before start: %v", err)
	}
	m.Start()
	if _, err := m.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := m.Shutdown(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if !p.closed.Load() {
		t.Error("embedder should be closed")
	}
}

func TestShutdown_contextExpires(t *testing.T) {
	release := make(chan struct{})
	m := NewManager(func(context.Context) (*embedding.Embedder, error) {
		<-release // ignores cancellation
		e, _ := newEmbedder()
		return e, nil
	})
	m.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := m.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline", err)
	}
	close(release)
	time.Sleep(10 * time.Millisecond)
	if m.State() != StateUninitialized {
		t.Errorf("late construction leaked into state %s", m.State())
	}
}

func TestReconfigure(t *testing.T) {
	first, _ := newEmbedder()
	m := NewManager(func(context.Context) (*embedding.Embedder, error) { return first, nil })
	m.Start()
	if e, _ := m.Acquire(context.Background()); e != first {
		t.Fatal("expected first embedder")
	}

	second, _ := newEmbedder()
	if err := m.Reconfigure(context.Background(), func(context.Context) (*embedding.Embedder, error) {
		return second, nil
	}); err != nil {
		t.Fatal(err)
	}
	if e, err := m.Acquire(context.Background()); err != nil || e != second {
		t.Errorf("after reconfigure: %v, %v", e, err)
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{
		StateUninitialized: "uninitialized",
		StateInitializing:  "initializing",
		StateReady:         "ready",
		StateFailed:        "failed",
	} {
		if s.String() != want {
			t.Errorf("%d.String() = %s", s, s.String())
		}
	}
}
