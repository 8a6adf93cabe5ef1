package models

import (
	"errors"
	"strings"
)

// ErrEmptyQuery is returned when a search query has no text.
var ErrEmptyQuery = errors.New("query cannot be empty")

// ErrInvalidPage is returned for a negative limit or offset.
var ErrInvalidPage = errors.New("invalid page")

// SearchQuery represents a semantic search request.
type SearchQuery struct {
	Query        string `json:"query"`
	Limit        int    `json:"limit,omitempty"`
	SourceFilter string `json:"source_filter,omitempty"` // substring match on document source
}

// Validate ensures the query has text and normalizes limit into [1, maxLimit],
// using defaultLimit when unset.
func (q *SearchQuery) Validate(defaultLimit, maxLimit int) error {
	if strings.TrimSpace(q.Query) == "" {
		return ErrEmptyQuery
	}
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if maxLimit > 0 && q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	q.SourceFilter = strings.TrimSpace(q.SourceFilter)
	return nil
}

// EmbedRequest is the body of a batch embedding request.
type EmbedRequest struct {
	Texts []string `json:"texts"`
}

// EmbedResponse returns one vector per input text, in input order.
type EmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}
