package services

import (
	"context"
	"fmt"

	"github.com/paperlens-ai/paperlens/internal/core"
	"github.com/paperlens-ai/paperlens/internal/models"
)

// Search defaults. The UI commonly asks for 6; the API default is 8.
const (
	DefaultSearchTopK      = 8
	DefaultSearchThreshold = float32(0.3)
)

// SearchService answers semantic queries scoped to one document: embed the
// query text, then rank that document's chunks by cosine similarity.
type SearchService struct {
	db       core.DbClient
	embedder core.EmbeddingProvider
}

func NewSearchService(db core.DbClient, embedder core.EmbeddingProvider) *SearchService {
	return &SearchService{db: db, embedder: embedder}
}

// SearchChunks returns at most topK chunks of the document with similarity at
// or above threshold, sorted descending. topK <= 0 and threshold <= 0 select
// the defaults. Search never crosses document boundaries.
func (s *SearchService) SearchChunks(ctx context.Context, docID, query string, topK int, threshold float32) ([]models.ChunkMatch, error) {
	if topK <= 0 {
		topK = DefaultSearchTopK
	}
	if threshold <= 0 {
		threshold = DefaultSearchThreshold
	}

	vecs, err := s.embedder.EmbedTexts(ctx, []string{query}, core.EmbedTaskQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vecs))
	}

	return s.db.SearchDocumentChunks(ctx, docID, vecs[0], threshold, topK)
}
