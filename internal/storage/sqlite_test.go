package storage

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seed(t *testing.T, store *SQLiteStore, id, title, source string, embs ...[]float32) {
	t.Helper()
	ctx := context.Background()
	doc := &models.Document{ID: id, Title: title, Source: source, Metadata: map[string]interface{}{"lang": "en"}}
	if err := store.CreateDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	chunks := make([]*models.Chunk, len(embs))
	for i, e := range embs {
		chunks[i] = &models.Chunk{
			ID:         id + "-" + string(rune('a'+i)),
			DocumentID: id,
			ChunkIndex: i,
			Content:    title + " chunk " + string(rune('a'+i)),
			Embedding:  e,
		}
	}
	if err := store.CreateChunks(ctx, chunks); err != nil {
		t.Fatal(err)
	}
}

func TestSQLiteStore_Search(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seed(t, store, "d1", "Passwords", "kb/Accounts/passwords.md", []float32{1, 0, 0}, []float32{0.8, 0.6, 0})
	seed(t, store, "d2", "Billing", "kb/billing.md", []float32{0, 1, 0})
	seed(t, store, "d3", "Legacy", "kb/old.md", []float32{1, 0}) // wrong dimension

	results, err := store.Search(ctx, []float32{1, 0, 0}, 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].Content != "Passwords chunk a" || results[0].Similarity < 0.999 {
		t.Errorf("top result = %+v", results[0])
	}
	for i := 1; i < len(results); i++ {
		if results[i].Similarity > results[i-1].Similarity {
			t.Error("results not sorted by descending similarity")
		}
	}
	if results[0].Title != "Passwords" || results[0].Source != "kb/Accounts/passwords.md" {
		t.Errorf("document fields missing: %+v", results[0])
	}

	limited, _ := store.Search(ctx, []float32{1, 0, 0}, 1, "")
	if len(limited) != 1 {
		t.Errorf("limit ignored: %d results", len(limited))
	}

	filtered, err := store.Search(ctx, []float32{1, 0, 0}, 10, "ACCOUNTS")
	if err != nil {
		t.Fatal(err)
	}
	if len(filtered) != 2 {
		t.Errorf("source filter: got %d results, want 2", len(filtered))
	}
	none, _ := store.Search(ctx, []float32{1, 0, 0}, 10, "%")
	if len(none) != 0 {
		t.Errorf("wildcard characters should be matched literally, got %d results", len(none))
	}
}

func TestSQLiteStore_Documents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seed(t, store, "d1", "Title", "src", []float32{1})

	got, err := store.GetDocument(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Title" || got.Metadata["lang"] != "en" || got.CreatedAt.IsZero() {
		t.Errorf("got %+v", got)
	}

	st, err := store.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Documents != 1 || st.Chunks != 1 || st.SizeBytes == 0 {
		t.Errorf("stats = %+v", st)
	}

	if err := store.DeleteDocument(ctx, "d1"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetDocument(ctx, "d1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	st, _ = store.Stats(ctx)
	if st.Chunks != 0 {
		t.Errorf("chunks should cascade on delete, got %d", st.Chunks)
	}
}

func TestSQLiteStore_ListDocuments(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seed(t, store, "d1", "First", "kb/a.md", []float32{1})
	seed(t, store, "d2", "Second", "kb/b.md", []float32{1}, []float32{0.5})
	seed(t, store, "d3", "Third", "notes/c.md")

	tests := []struct {
		name          string
		limit, offset int
		wantIDs       []string
	}{
		{"all", 10, 0, []string{"d3", "d2", "d1"}},
		{"first page", 2, 0, []string{"d3", "d2"}},
		{"second page", 2, 2, []string{"d1"}},
		{"past end", 10, 5, nil},
		{"zero limit", 0, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := store.ListDocuments(ctx, tt.limit, tt.offset)
			if err != nil {
				t.Fatal(err)
			}
			var ids []string
			for _, d := range docs {
				ids = append(ids, d.ID)
			}
			if !reflect.DeepEqual(ids, tt.wantIDs) {
				t.Errorf("ids = %v, want %v", ids, tt.wantIDs)
			}
		})
	}

	docs, _ := store.ListDocuments(ctx, 10, 0)
	counts := map[string]int{}
	for _, d := range docs {
		counts[d.ID] = d.ChunkCount
		if d.CreatedAt.IsZero() {
			t.Errorf("%s has no created_at", d.ID)
		}
	}
	if counts["d1"] != 1 || counts["d2"] != 2 || counts["d3"] != 0 {
		t.Errorf("chunk counts = %v", counts)
	}
}

func TestSQLiteStore_CreateChunksRollsBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.CreateDocument(ctx, &models.Document{ID: "d1"}); err != nil {
		t.Fatal(err)
	}
	err := store.CreateChunks(ctx, []*models.Chunk{
		{ID: "c1", DocumentID: "d1", Content: "ok", Embedding: []float32{1}},
		{ID: "c2", DocumentID: "d1", Content: "missing embedding"},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	st, _ := store.Stats(ctx)
	if st.Chunks != 0 {
		t.Errorf("partial insert committed: %d chunks", st.Chunks)
	}
}

func TestSQLiteStore_Ping(t *testing.T) {
	store := newTestStore(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
	_ = store.Close()
	if err := store.Ping(context.Background()); err == nil {
		t.Error("expected error after close")
	}
}
