package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
)

// MemoryStore keeps the knowledge base in process memory and searches it by
// brute force. Nothing survives Close.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[string]*models.Document
	order  []string // document ids in insertion order
	chunks map[string][]*models.Chunk
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:   make(map[string]*models.Document),
		chunks: make(map[string][]*models.Chunk),
	}
}

// Ping fails only after Close.
func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("memory store is closed")
	}
	return nil
}

// Search ranks every stored chunk by cosine similarity to query.
func (m *MemoryStore) Search(ctx context.Context, query []float32, limit int, sourceFilter string) ([]*models.SearchResult, error) {
	if limit <= 0 {
		return []*models.SearchResult{}, nil
	}
	filter := strings.ToLower(sourceFilter)

	m.mu.RLock()
	defer m.mu.RUnlock()
	results := []*models.SearchResult{}
	for _, id := range m.order {
		doc := m.docs[id]
		if filter != "" && !strings.Contains(strings.ToLower(doc.Source), filter) {
			continue
		}
		for _, c := range m.chunks[id] {
			if len(c.Embedding) != len(query) {
				continue
			}
			results = append(results, &models.SearchResult{
				Content:    c.Content,
				Similarity: vector.Similarity(query, c.Embedding),
				Title:      doc.Title,
				Source:     doc.Source,
				Metadata:   c.Metadata,
			})
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// CreateDocument stores a copy of doc. IDs must be unique.
func (m *MemoryStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[doc.ID]; ok {
		return fmt.Errorf("document %s already exists", doc.ID)
	}
	doc.CreatedAt = time.Now()
	cp := *doc
	m.docs[doc.ID] = &cp
	m.order = append(m.order, doc.ID)
	return nil
}

// GetDocument returns a copy of the document with id.
func (m *MemoryStore) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	cp := *doc
	return &cp, nil
}

// ListDocuments returns a page of documents, most recently created first.
func (m *MemoryStore) ListDocuments(ctx context.Context, limit, offset int) ([]*models.DocumentSummary, error) {
	docs := []*models.DocumentSummary{}
	if limit <= 0 {
		return docs, nil
	}
	if offset < 0 {
		offset = 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.order) - 1 - offset; i >= 0 && len(docs) < limit; i-- {
		doc := m.docs[m.order[i]]
		docs = append(docs, &models.DocumentSummary{
			ID:         doc.ID,
			Title:      doc.Title,
			Source:     doc.Source,
			ChunkCount: len(m.chunks[doc.ID]),
			CreatedAt:  doc.CreatedAt,
		})
	}
	return docs, nil
}

// DeleteDocument removes a document and its chunks. Unknown ids are ignored.
func (m *MemoryStore) DeleteDocument(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return nil
	}
	delete(m.docs, id)
	delete(m.chunks, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// CreateChunks stores all chunks or none.
func (m *MemoryStore) CreateChunks(ctx context.Context, chunks []*models.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("chunk %s has no embedding", c.ID)
		}
		if _, ok := m.docs[c.DocumentID]; !ok {
			return fmt.Errorf("chunk %s: document %s: %w", c.ID, c.DocumentID, ErrNotFound)
		}
	}
	now := time.Now()
	for _, c := range chunks {
		cp := *c
		cp.Embedding = append([]float32(nil), c.Embedding...)
		cp.CreatedAt = now
		c.CreatedAt = now
		m.chunks[c.DocumentID] = append(m.chunks[c.DocumentID], &cp)
	}
	return nil
}

// Stats counts documents and chunks. SizeBytes approximates the payload held.
func (m *MemoryStore) Stats(ctx context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := &Stats{Documents: int64(len(m.docs))}
	for _, cs := range m.chunks {
		st.Chunks += int64(len(cs))
		for _, c := range cs {
			st.SizeBytes += int64(len(c.Content) + 4*len(c.Embedding))
		}
	}
	return st, nil
}

// Close drops all data.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.docs = make(map[string]*models.Document)
	m.chunks = make(map[string][]*models.Chunk)
	m.order = nil
	return nil
}
