package models

// SearchResult is a single ranked chunk returned by the vector store.
type SearchResult struct {
	Content    string                 `json:"content"`
	Similarity float64                `json:"similarity"`
	Title      string                 `json:"title"`
	Source     string                 `json:"source"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Timing breaks a search down into its embedding and store phases.
type Timing struct {
	EmbeddingMS float64 `json:"embedding_ms"`
	DBMS        float64 `json:"db_ms"`
	TotalMS     float64 `json:"total_ms"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Query   string          `json:"query"`
	Results []*SearchResult `json:"results"`
	Total   int             `json:"total"`
	Timing  Timing          `json:"timing"`
}
