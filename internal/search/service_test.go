package search

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/lifecycle"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/telemetry"
)

type staticSource struct {
	emb *embedding.Embedder
	err error
}

func (s staticSource) Acquire(context.Context) (*embedding.Embedder, error) { return s.emb, s.err }

type recordingTracer struct {
	mu     sync.Mutex
	traces []telemetry.Trace
}

func (r *recordingTracer) Trace(t telemetry.Trace) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.traces = append(r.traces, t)
}

type recordingRecorder struct {
	mu    sync.Mutex
	calls int
}

func (r *recordingRecorder) ObserveSearch(embedding, db time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if embedding >= 0 && db >= 0 {
		r.calls++
	}
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "kb.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	emb := embedding.NewEmbedder(embedding.NewHashProvider(256), "hash")
	cfg := config.SearchConfig{DefaultLimit: 5, MaxLimit: 10}
	return NewService(staticSource{emb: emb}, store, cfg, opts...)
}

var corpus = []*models.DocumentInput{
	{Title: "Account help", Source: "kb/accounts/password.md", Chunks: []string{
		"to reset your password open the login page and choose forgot password",
		"two factor authentication can be enabled in account settings",
	}},
	{Title: "Billing", Source: "kb/billing/invoices.md", Chunks: []string{
		"invoices are emailed on the first day of every month",
	}},
	{Title: "Empty", Source: "kb/empty.md"},
}

func TestService_IngestAndSearch(t *testing.T) {
	ctx := context.Background()
	tracer := &recordingTracer{}
	recorder := &recordingRecorder{}
	svc := newTestService(t, WithTracer(tracer), WithRecorder(recorder))

	res, err := svc.Ingest(ctx, corpus)
	if err != nil {
		t.Fatal(err)
	}
	if res.Documents != 2 || res.Chunks != 3 {
		t.Errorf("ingest = %+v", res)
	}

	resp, err := svc.Search(ctx, &models.SearchQuery{Query: "how do I reset my password"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 3 || len(resp.Results) != 3 {
		t.Fatalf("total = %d", resp.Total)
	}
	if !strings.Contains(resp.Results[0].Content, "reset your password") {
		t.Errorf("top result = %q", resp.Results[0].Content)
	}
	if resp.Timing.TotalMS < resp.Timing.DBMS || resp.Timing.TotalMS < 0 {
		t.Errorf("timing = %+v", resp.Timing)
	}
	if len(tracer.traces) != 1 || tracer.traces[0].Name != "search" {
		t.Errorf("traces = %+v", tracer.traces)
	}
	if recorder.calls != 1 {
		t.Errorf("recorded %d searches, want 1", recorder.calls)
	}

	filtered, err := svc.Search(ctx, &models.SearchQuery{Query: "invoices", SourceFilter: "billing"})
	if err != nil {
		t.Fatal(err)
	}
	if filtered.Total != 1 || filtered.Results[0].Title != "Billing" {
		t.Errorf("filtered = %+v", filtered.Results)
	}

	st, err := svc.Stats(ctx)
	if err != nil || st.Documents != 2 || st.Chunks != 3 {
		t.Errorf("stats = %+v, %v", st, err)
	}
}

func TestService_SearchValidation(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.Search(context.Background(), &models.SearchQuery{Query: "  "}); !errors.Is(err, models.ErrEmptyQuery) {
		t.Errorf("err = %v, want ErrEmptyQuery", err)
	}
	q := &models.SearchQuery{Query: "x", Limit: 500}
	if _, err := svc.Search(context.Background(), q); err != nil {
		t.Fatal(err)
	}
	if q.Limit != 10 {
		t.Errorf("limit = %d, want capped at 10", q.Limit)
	}
}

func TestService_embedderUnavailable(t *testing.T) {
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "kb.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	svc := NewService(staticSource{err: lifecycle.ErrNotStarted}, store, config.SearchConfig{DefaultLimit: 5})

	if _, err := svc.Search(context.Background(), &models.SearchQuery{Query: "q"}); !errors.Is(err, lifecycle.ErrNotStarted) {
		t.Errorf("Search err = %v", err)
	}
	if _, err := svc.Embed(context.Background(), []string{"q"}); !errors.Is(err, lifecycle.ErrNotStarted) {
		t.Errorf("Embed err = %v", err)
	}
}

func TestService_Embed(t *testing.T) {
	svc := newTestService(t)
	resp, err := svc.Embed(context.Background(), []string{"a", "", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Model != "hash" || len(resp.Embeddings) != 3 || len(resp.Embeddings[1]) != 256 {
		t.Errorf("resp: model=%s n=%d", resp.Model, len(resp.Embeddings))
	}
}

func TestService_Document(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	docs := []*models.DocumentInput{{ID: "guide", Title: "Guide", Source: "kb/guide.md", Chunks: []string{"hello"}}}
	if _, err := svc.Ingest(ctx, docs); err != nil {
		t.Fatal(err)
	}
	doc, err := svc.Document(ctx, "guide")
	if err != nil || doc.Title != "Guide" {
		t.Errorf("doc = %+v, %v", doc, err)
	}
	if _, err := svc.Document(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestService_ListDocuments(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	if _, err := svc.Ingest(ctx, corpus); err != nil {
		t.Fatal(err)
	}
	docs, err := svc.ListDocuments(ctx, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 || docs[0].Title != "Billing" || docs[1].Title != "Account help" {
		t.Errorf("docs = %+v", docs)
	}
	if _, err := svc.ListDocuments(ctx, -1, 0); !errors.Is(err, models.ErrInvalidPage) {
		t.Errorf("negative limit err = %v", err)
	}
	if _, err := svc.ListDocuments(ctx, 1, -5); !errors.Is(err, models.ErrInvalidPage) {
		t.Errorf("negative offset err = %v", err)
	}
}

func TestService_Overview(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	docs := append([]*models.DocumentInput{
		{Title: "Runbook", Source: "wiki/ops/runbook.md", Chunks: []string{"restart the worker"}},
		{Title: "Readme", Source: "README.md", Chunks: []string{"start here"}},
		{Title: "Orphan", Chunks: []string{"no source recorded"}},
	}, corpus...)
	if _, err := svc.Ingest(ctx, docs); err != nil {
		t.Fatal(err)
	}
	o, err := svc.Overview(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if o.Documents != 5 || o.Chunks != 6 {
		t.Errorf("totals = %d documents, %d chunks", o.Documents, o.Chunks)
	}
	if want := []string{"README.md", "kb", "wiki"}; strings.Join(o.Sources, ",") != strings.Join(want, ",") {
		t.Errorf("sources = %v, want %v", o.Sources, want)
	}
	if len(o.Recent) != 5 || o.Recent[0].Title != "Billing" {
		t.Errorf("recent = %d documents", len(o.Recent))
	}
}
