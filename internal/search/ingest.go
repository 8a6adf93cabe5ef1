package search

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
)

// IngestResult counts what Ingest wrote.
type IngestResult struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
}

// Ingest embeds pre-chunked documents and writes them to the store. Documents
// without an ID get a random one. It stops at the first failure; documents
// written before it stay.
func (s *Service) Ingest(ctx context.Context, docs []*models.DocumentInput) (*IngestResult, error) {
	emb, err := s.embedders.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	res := &IngestResult{}
	for _, in := range docs {
		if len(in.Chunks) == 0 {
			s.logger.Warn("skipping document without chunks", zap.String("title", in.Title))
			continue
		}
		vecs, err := emb.EmbedMany(ctx, in.Chunks)
		if err != nil {
			return res, fmt.Errorf("embedding %q: %w", in.Title, err)
		}

		id := in.ID
		if id == "" {
			id = uuid.NewString()
		}
		doc := &models.Document{ID: id, Title: in.Title, Source: in.Source, Metadata: in.Metadata}
		if err := s.store.CreateDocument(ctx, doc); err != nil {
			return res, fmt.Errorf("storing document %q: %w", in.Title, err)
		}
		chunks := make([]*models.Chunk, len(in.Chunks))
		for i, content := range in.Chunks {
			chunks[i] = &models.Chunk{
				ID:         uuid.NewString(),
				DocumentID: id,
				ChunkIndex: i,
				Content:    content,
				Embedding:  vecs[i],
			}
		}
		if err := s.store.CreateChunks(ctx, chunks); err != nil {
			_ = s.store.DeleteDocument(ctx, id)
			return res, fmt.Errorf("storing chunks of %q: %w", in.Title, err)
		}
		res.Documents++
		res.Chunks += len(chunks)
		s.logger.Info("document ingested", zap.String("id", id), zap.String("title", in.Title), zap.Int("chunks", len(chunks)))
	}
	return res, nil
}
