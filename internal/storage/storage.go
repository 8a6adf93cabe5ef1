// Package storage persists documents and their embedded chunks and answers
// nearest-neighbour queries over them.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/kotae/internal/models"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("not found")

// Store is the knowledge base backing search.
type Store interface {
	// Ping checks that the backing database answers queries.
	Ping(ctx context.Context) error

	// Search returns up to limit chunks ordered by descending similarity to query.
	// A non-empty sourceFilter keeps only documents whose source contains it (case-insensitive).
	Search(ctx context.Context, query []float32, limit int, sourceFilter string) ([]*models.SearchResult, error)

	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	// ListDocuments returns documents newest first with their chunk counts.
	ListDocuments(ctx context.Context, limit, offset int) ([]*models.DocumentSummary, error)
	CreateChunks(ctx context.Context, chunks []*models.Chunk) error

	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

// Stats summarizes the knowledge base.
type Stats struct {
	Documents int64 `json:"documents"`
	Chunks    int64 `json:"chunks"`
	SizeBytes int64 `json:"size_bytes"`
}
