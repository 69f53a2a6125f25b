package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperlens-ai/paperlens/internal/core"
	"github.com/paperlens-ai/paperlens/internal/models"
)

type searchFakeDB struct {
	core.DbClient

	gotDocID     string
	gotVec       []float32
	gotThreshold float32
	gotTopK      int
	matches      []models.ChunkMatch
}

func (f *searchFakeDB) SearchDocumentChunks(_ context.Context, docID string, queryVec []float32, threshold float32, topK int) ([]models.ChunkMatch, error) {
	f.gotDocID = docID
	f.gotVec = queryVec
	f.gotThreshold = threshold
	f.gotTopK = topK
	return f.matches, nil
}

type searchFakeEmbedder struct {
	gotTask core.EmbedTask
	gotText string
	vec     []float32
	err     error
}

func (f *searchFakeEmbedder) EmbedTexts(_ context.Context, texts []string, task core.EmbedTask) ([][]float32, error) {
	f.gotTask = task
	if len(texts) > 0 {
		f.gotText = texts[0]
	}
	if f.err != nil {
		return nil, f.err
	}
	return [][]float32{f.vec}, nil
}

func TestSearchChunksDefaults(t *testing.T) {
	db := &searchFakeDB{matches: []models.ChunkMatch{
		{Chunk: models.DocumentChunk{ID: "c1"}, Similarity: 0.9},
	}}
	emb := &searchFakeEmbedder{vec: []float32{0.1, 0.2, 0.3}}
	svc := NewSearchService(db, emb)

	matches, err := svc.SearchChunks(context.Background(), "doc-1", "what is the method?", 0, 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)

	assert.Equal(t, core.EmbedTaskQuery, emb.gotTask, "query text embeds in query mode")
	assert.Equal(t, "what is the method?", emb.gotText)
	assert.Equal(t, "doc-1", db.gotDocID)
	assert.Equal(t, emb.vec, db.gotVec)
	assert.Equal(t, DefaultSearchTopK, db.gotTopK)
	assert.Equal(t, DefaultSearchThreshold, db.gotThreshold)
}

func TestSearchChunksExplicitParams(t *testing.T) {
	db := &searchFakeDB{}
	svc := NewSearchService(db, &searchFakeEmbedder{vec: []float32{1}})

	_, err := svc.SearchChunks(context.Background(), "doc-1", "q", 6, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 6, db.gotTopK)
	assert.Equal(t, float32(0.5), db.gotThreshold)
}

func TestSearchChunksEmbedFailure(t *testing.T) {
	emb := &searchFakeEmbedder{err: &core.EmbeddingServiceError{StatusCode: 503, Body: "overloaded"}}
	svc := NewSearchService(&searchFakeDB{}, emb)

	_, err := svc.SearchChunks(context.Background(), "doc-1", "q", 0, 0)
	require.Error(t, err)
	var embErr *core.EmbeddingServiceError
	assert.True(t, errors.As(err, &embErr))
}
