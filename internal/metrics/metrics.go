// Package metrics exposes Prometheus metrics for agent tool calls, HTTP
// requests and the two phases of a search.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors on a private registry. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	toolRequests *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec
	activeTools  prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	embedding prometheus.Histogram
	dbSearch  prometheus.Histogram
}

// New creates and registers all collectors, including the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		toolRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_requests_total",
			Help: "Total number of MCP tool requests.",
		}, []string{"tool_name", "status"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mcp_request_duration_seconds",
			Help:    "MCP request duration in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 1.5, 2, 3, 5},
		}, []string{"tool_name"}),
		activeTools: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mcp_active_requests",
			Help: "MCP tool requests in flight.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 1.5, 2, 3, 5},
		}, []string{"route"}),
		embedding: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rag_embedding_time_seconds",
			Help:    "Query embedding time in seconds.",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 1},
		}),
		dbSearch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rag_db_search_time_seconds",
			Help:    "Vector store search time in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1},
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.toolRequests, m.toolDuration, m.activeTools,
		m.httpRequests, m.httpDuration,
		m.embedding, m.dbSearch,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// StartTool marks a tool call as active. The returned func ends it and records
// its outcome: "success" when err is nil, "error" otherwise.
func (m *Metrics) StartTool(name string) func(err error) {
	if m == nil {
		return func(error) {}
	}
	start := time.Now()
	m.activeTools.Inc()
	return func(err error) {
		m.activeTools.Dec()
		status := "success"
		if err != nil {
			status = "error"
		}
		m.toolRequests.WithLabelValues(name, status).Inc()
		m.toolDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
}

// ObserveHTTP records one finished request against its route pattern.
func (m *Metrics) ObserveHTTP(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// ObserveSearch records how long a search spent embedding the query and
// querying the store.
func (m *Metrics) ObserveSearch(embedding, db time.Duration) {
	if m == nil {
		return
	}
	m.embedding.Observe(embedding.Seconds())
	m.dbSearch.Observe(db.Seconds())
}
