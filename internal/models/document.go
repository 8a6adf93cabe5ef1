// Package models defines core data structures for documents, queries, and search results.
package models

import "time"

// Document is a source document whose chunks are searchable.
type Document struct {
	ID        string                 `json:"id" db:"id"`
	Title     string                 `json:"title" db:"title"`
	Source    string                 `json:"source" db:"source"`
	Metadata  map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
}

// Chunk is a piece of a document together with its embedding.
type Chunk struct {
	ID         string                 `json:"id" db:"id"`
	DocumentID string                 `json:"document_id" db:"document_id"`
	ChunkIndex int                    `json:"chunk_index" db:"chunk_index"`
	Content    string                 `json:"content" db:"content"`
	Embedding  []float32              `json:"-" db:"embedding"`
	Metadata   map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt  time.Time              `json:"created_at" db:"created_at"`
}

// DocumentSummary is a document listing entry.
type DocumentSummary struct {
	ID         string    `json:"id" db:"id"`
	Title      string    `json:"title" db:"title"`
	Source     string    `json:"source" db:"source"`
	ChunkCount int       `json:"chunk_count" db:"chunk_count"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// DocumentInput is a pre-chunked document as accepted by the load command.
type DocumentInput struct {
	ID       string                 `json:"id,omitempty"`
	Title    string                 `json:"title"`
	Source   string                 `json:"source"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Chunks   []string               `json:"chunks"`
}
