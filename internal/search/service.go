// Package search answers knowledge-base queries: it embeds the query and ranks
// stored chunks against it.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/telemetry"
)

// EmbedderSource hands out the shared embedder, waiting for it if necessary.
type EmbedderSource interface {
	Acquire(ctx context.Context) (*embedding.Embedder, error)
}

// Tracer records completed operations.
type Tracer interface {
	Trace(t telemetry.Trace)
}

const overviewScanLimit = 10000

// Overview is a summary of the knowledge base contents.
type Overview struct {
	Documents int64                     `json:"total_documents"`
	Chunks    int64                     `json:"total_chunks"`
	SizeBytes int64                     `json:"size_bytes"`
	Sources   []string                  `json:"sources"`
	Recent    []*models.DocumentSummary `json:"documents"`
}

// Recorder observes the phases of a search.
type Recorder interface {
	ObserveSearch(embedding, db time.Duration)
}

// Service runs searches and batch embeddings.
type Service struct {
	embedders EmbedderSource
	store     storage.Store
	cfg       config.SearchConfig
	tracer    Tracer
	recorder  Recorder
	logger    *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithTracer records a trace per search.
func WithTracer(t Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithRecorder reports search timings to r.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a search service.
func NewService(embedders EmbedderSource, store storage.Store, cfg config.SearchConfig, opts ...Option) *Service {
	s := &Service{
		embedders: embedders,
		store:     store,
		cfg:       cfg,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search embeds the query and returns the closest chunks.
func (s *Service) Search(ctx context.Context, q *models.SearchQuery) (*models.SearchResponse, error) {
	start := time.Now()
	if err := q.Validate(s.cfg.DefaultLimit, s.cfg.MaxLimit); err != nil {
		return nil, err
	}

	emb, err := s.embedders.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	vec, err := emb.EmbedOne(ctx, q.Query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	embedded := time.Now()

	results, err := s.store.Search(ctx, vec, q.Limit, q.SourceFilter)
	if err != nil {
		return nil, fmt.Errorf("searching store: %w", err)
	}
	done := time.Now()

	timing := models.Timing{
		EmbeddingMS: millis(embedded.Sub(start)),
		DBMS:        millis(done.Sub(embedded)),
		TotalMS:     millis(done.Sub(start)),
	}
	s.logger.Info("search completed",
		zap.Int("results", len(results)),
		zap.Int("limit", q.Limit),
		zap.String("source_filter", q.SourceFilter),
		zap.Float64("embedding_ms", timing.EmbeddingMS),
		zap.Float64("db_ms", timing.DBMS),
		zap.Float64("total_ms", timing.TotalMS),
	)
	if s.recorder != nil {
		s.recorder.ObserveSearch(embedded.Sub(start), done.Sub(embedded))
	}
	if s.tracer != nil {
		s.tracer.Trace(telemetry.Trace{
			Name:   "search",
			Input:  q,
			Output: len(results),
			Metadata: map[string]any{
				"embedding_ms": timing.EmbeddingMS,
				"db_ms":        timing.DBMS,
			},
		})
	}

	return &models.SearchResponse{
		Query:   q.Query,
		Results: results,
		Total:   len(results),
		Timing:  timing,
	}, nil
}

// Embed returns one vector per text in input order.
func (s *Service) Embed(ctx context.Context, texts []string) (*models.EmbedResponse, error) {
	emb, err := s.embedders.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	vecs, err := emb.EmbedMany(ctx, texts)
	if err != nil {
		return nil, err
	}
	return &models.EmbedResponse{Model: emb.Model(), Embeddings: vecs}, nil
}

// Document returns a stored document by ID.
func (s *Service) Document(ctx context.Context, id string) (*models.Document, error) {
	return s.store.GetDocument(ctx, id)
}

// ListDocuments returns a page of documents, newest first.
func (s *Service) ListDocuments(ctx context.Context, limit, offset int) ([]*models.DocumentSummary, error) {
	if limit < 0 || offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must not be negative", models.ErrInvalidPage)
	}
	return s.store.ListDocuments(ctx, limit, offset)
}

// Overview summarizes the knowledge base: totals, top-level sources and up to
// overviewScanLimit of the newest documents.
func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	docs, err := s.store.ListDocuments(ctx, overviewScanLimit, 0)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	for _, d := range docs {
		if d.Source == "" {
			continue
		}
		top, _, _ := strings.Cut(d.Source, "/")
		seen[top] = struct{}{}
	}
	sources := make([]string, 0, len(seen))
	for src := range seen {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	return &Overview{
		Documents: st.Documents,
		Chunks:    st.Chunks,
		SizeBytes: st.SizeBytes,
		Sources:   sources,
		Recent:    docs,
	}, nil
}

// Stats summarizes the knowledge base.
func (s *Service) Stats(ctx context.Context) (*storage.Stats, error) {
	return s.store.Stats(ctx)
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
