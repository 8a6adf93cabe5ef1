// Package health aggregates per-dependency probes into a single service status.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status is the state of one dependency.
type Status string

const (
	StatusUp           Status = "up"
	StatusDown         Status = "down"
	StatusInitializing Status = "initializing"
)

// Overall is the aggregate service status.
type Overall string

const (
	OverallOK       Overall = "ok"
	OverallDegraded Overall = "degraded"
	OverallDown     Overall = "down"
)

// Well-known dependency names used by the decision table.
const (
	ServiceStorage   = "storage"
	ServiceEmbedder  = "embedder"
	ServiceTelemetry = "telemetry"
)

// DefaultProbeTimeout bounds a single probe.
const DefaultProbeTimeout = 5 * time.Second

// ServiceStatus is the result of one probe.
type ServiceStatus struct {
	Status    Status  `json:"status"`
	Message   string  `json:"message,omitempty"`
	LatencyMS float64 `json:"latency_ms"`
}

// Report is a point-in-time health snapshot.
type Report struct {
	Status    Overall                  `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Services  map[string]ServiceStatus `json:"services"`
}

// Accepting reports whether the service should receive traffic.
func (r *Report) Accepting() bool {
	return r.Status != OverallDown
}

// Probe checks one dependency. A returned error marks it down.
type Probe func(ctx context.Context) (ServiceStatus, error)

type namedProbe struct {
	name  string
	probe Probe
}

// Engine runs registered probes concurrently and applies the decision table.
type Engine struct {
	mu      sync.RWMutex
	probes  []namedProbe
	timeout time.Duration
	rules   []Rule
	logger  *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithProbeTimeout sets the per-probe time bound.
func WithProbeTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithRules replaces the default decision table.
func WithRules(rules []Rule) Option {
	return func(e *Engine) { e.rules = rules }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an engine with no probes.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		timeout: DefaultProbeTimeout,
		rules:   DefaultRules,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register adds a probe under name, replacing any probe of the same name.
func (e *Engine) Register(name string, p Probe) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.probes {
		if e.probes[i].name == name {
			e.probes[i].probe = p
			return
		}
	}
	e.probes = append(e.probes, namedProbe{name: name, probe: p})
}

// Check runs every probe and returns a fresh report. It never fails: probe
// errors, panics and timeouts are folded into the report as down services.
func (e *Engine) Check(ctx context.Context) *Report {
	e.mu.RLock()
	probes := append([]namedProbe(nil), e.probes...)
	e.mu.RUnlock()

	services := make(map[string]ServiceStatus, len(probes))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, np := range probes {
		wg.Add(1)
		go func(np namedProbe) {
			defer wg.Done()
			st := e.run(ctx, np)
			mu.Lock()
			services[np.name] = st
			mu.Unlock()
		}(np)
	}
	wg.Wait()

	report := &Report{
		Status:    Evaluate(e.rules, services),
		Timestamp: time.Now().UTC(),
		Services:  services,
	}
	if report.Status != OverallOK {
		e.logger.Warn("health check not ok", zap.String("status", string(report.Status)), zap.Any("services", services))
	}
	return report
}

type probeResult struct {
	status ServiceStatus
	err    error
}

func (e *Engine) run(ctx context.Context, np namedProbe) ServiceStatus {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	ch := make(chan probeResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- probeResult{err: fmt.Errorf("probe panicked: %v", r)}
			}
		}()
		st, err := np.probe(ctx)
		ch <- probeResult{status: st, err: err}
	}()

	var st ServiceStatus
	select {
	case res := <-ch:
		st = res.status
		if res.err != nil {
			st = ServiceStatus{Status: StatusDown, Message: res.err.Error()}
		}
	case <-ctx.Done():
		st = ServiceStatus{Status: StatusDown, Message: fmt.Sprintf("probe timed out: %v", ctx.Err())}
	}
	if st.Status == "" {
		st.Status = StatusDown
	}
	st.LatencyMS = float64(time.Since(start).Microseconds()) / 1000
	if st.Status == StatusDown {
		e.logger.Debug("probe down", zap.String("service", np.name), zap.String("message", st.Message))
	}
	return st
}
