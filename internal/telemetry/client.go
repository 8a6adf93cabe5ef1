// Package telemetry talks to an optional Langfuse-compatible tracing backend.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
)

const (
	queueSize     = 256
	maxBatch      = 50
	flushInterval = time.Second
)

// Client sends traces and answers health checks. A Client built from a config
// without host or keys is disabled: Ping reports an error and Trace is a no-op.
//
// Traces are queued and sent in batches by a single worker. When the queue is
// full new traces are dropped.
type Client struct {
	host      string
	publicKey string
	secretKey string
	timeout   time.Duration
	http      *http.Client
	logger    *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan ingestionEvent
	done   chan struct{}
}

// Trace is one traced operation.
type Trace struct {
	Name     string
	Input    any
	Output   any
	Metadata map[string]any
}

// New creates a client from cfg. Keys are read from the environment.
func New(cfg config.TelemetryConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	public, secret := cfg.Keys()
	c := &Client{
		host:    strings.TrimRight(cfg.Host, "/"),
		timeout: cfg.Timeout,
		http:    &http.Client{},
		logger:  logger,
	}
	if cfg.Enabled {
		c.publicKey, c.secretKey = public, secret
	}
	if c.timeout <= 0 {
		c.timeout = 3 * time.Second
	}
	if c.Enabled() {
		c.queue = make(chan ingestionEvent, queueSize)
		c.done = make(chan struct{})
		go c.run()
	}
	return c
}

// Enabled reports whether the client has a host and both keys.
func (c *Client) Enabled() bool {
	return c != nil && c.host != "" && c.publicKey != "" && c.secretKey != ""
}

// Ping checks the backend health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return fmt.Errorf("telemetry not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/api/public/health", nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.publicKey, c.secretKey)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("telemetry health: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("telemetry health: status %d", resp.StatusCode)
	}
	return nil
}

type ingestionEvent struct {
	ID        string         `json:"id"`
	Timestamp string         `json:"timestamp"`
	Type      string         `json:"type"`
	Body      map[string]any `json:"body"`
}

// Trace queues t for the next batch. Failures are logged, never returned.
func (c *Client) Trace(t Trace) {
	if !c.Enabled() {
		return
	}
	ev := newEvent(t)

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.queue <- ev:
	default:
		c.logger.Warn("trace queue full, dropping trace", zap.String("name", t.Name))
	}
}

func newEvent(t Trace) ingestionEvent {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	body := map[string]any{
		"id":        uuid.NewString(),
		"timestamp": now,
		"name":      t.Name,
		"input":     t.Input,
		"output":    t.Output,
	}
	if len(t.Metadata) > 0 {
		body["metadata"] = t.Metadata
	}
	return ingestionEvent{ID: uuid.NewString(), Timestamp: now, Type: "trace-create", Body: body}
}

// run drains the queue until it is closed, sending a batch when it fills up
// or when the flush interval passes.
func (c *Client) run() {
	defer close(c.done)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]ingestionEvent, 0, maxBatch)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		if err := c.send(ctx, batch); err != nil {
			c.logger.Warn("failed to send traces", zap.Int("count", len(batch)), zap.Error(err))
		}
		cancel()
		batch = batch[:0]
	}

	for {
		select {
		case ev, ok := <-c.queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= maxBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (c *Client) send(ctx context.Context, batch []ingestionEvent) error {
	payload, err := json.Marshal(map[string]any{"batch": batch})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/public/ingestion", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.publicKey, c.secretKey)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("ingestion: status %d", resp.StatusCode)
	}
	return nil
}

// Close stops accepting traces, flushes the queue and waits for the worker.
// It is safe to call more than once.
func (c *Client) Close() error {
	if c == nil || c.queue == nil {
		return nil
	}
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.queue)
	}
	c.mu.Unlock()
	<-c.done
	return nil
}
