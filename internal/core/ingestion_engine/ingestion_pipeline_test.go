package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperlens-ai/paperlens/internal/core"
	"github.com/paperlens-ai/paperlens/internal/models"
)

type fakeDB struct {
	core.DbClient
	mu sync.Mutex

	doc        *models.Document
	statuses   []string
	lastErrMsg string
	totalPages int
	chunks     []models.DocumentChunk
	insertErr  error
}

func (f *fakeDB) GetDocumentByID(_ context.Context, id string) (*models.Document, error) {
	if f.doc == nil || f.doc.ID != id {
		return nil, nil
	}
	return f.doc, nil
}

func (f *fakeDB) UpdateDocumentStatus(_ context.Context, _ string, status, statusError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	f.lastErrMsg = statusError
	return nil
}

func (f *fakeDB) UpdateDocumentPages(_ context.Context, _ string, totalPages int) error {
	f.totalPages = totalPages
	return nil
}

// InsertDocumentChunks enforces the schema's (document_id, position)
// uniqueness so tests catch append-instead-of-replace bugs.
func (f *fakeDB) InsertDocumentChunks(_ context.Context, chunks []models.DocumentChunk) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range chunks {
		for _, existing := range f.chunks {
			if existing.DocumentID == ch.DocumentID && existing.Position == ch.Position {
				return fmt.Errorf("duplicate key value violates unique constraint (%s/%d)", ch.DocumentID, ch.Position)
			}
		}
	}
	f.chunks = append(f.chunks, chunks...)
	return nil
}

func (f *fakeDB) DeleteChunksByDocument(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.chunks[:0]
	for _, ch := range f.chunks {
		if ch.DocumentID != documentID {
			kept = append(kept, ch)
		}
	}
	f.chunks = kept
	return nil
}

func (f *fakeDB) lastStatus() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statuses) == 0 {
		return ""
	}
	return f.statuses[len(f.statuses)-1]
}

type fakeObj struct {
	core.ObjectClient
	data      []byte
	err       error
	gotBucket string
	gotKey    string
}

func (f *fakeObj) GetFile(_ context.Context, bucket, key string) ([]byte, error) {
	f.gotBucket, f.gotKey = bucket, key
	return f.data, f.err
}

type fakeEmbedder struct {
	err     error
	gotTask core.EmbedTask
	dim     int
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string, task core.EmbedTask) ([][]float32, error) {
	f.gotTask = task
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, f.dim)
		out[i][0] = float32(i)
	}
	return out, nil
}

type fakeExtractor struct {
	pages []models.PageText
	err   error
}

func (f *fakeExtractor) ExtractPages(_ context.Context, _ []byte) ([]models.PageText, int, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.pages, len(f.pages), nil
}

func selectorFor(e core.PageExtractor) ExtractorSelector {
	return func(string) core.PageExtractor { return e }
}

func testDoc() *models.Document {
	return &models.Document{
		ID:          "doc-1",
		UserID:      "user-1",
		FileName:    "paper.pdf",
		StorageURL:  "https://paperlens-docs.s3.us-east-2.amazonaws.com/users/user-1/documents/doc-1/paper.pdf",
		ContentType: "application/pdf",
		Status:      models.DocStatusUploading,
	}
}

func TestProcessOneSuccess(t *testing.T) {
	db := &fakeDB{doc: testDoc()}
	obj := &fakeObj{data: []byte("%PDF")}
	emb := &fakeEmbedder{dim: 4}
	ext := &fakeExtractor{pages: []models.PageText{
		{Page: 1, Text: strings.Repeat("A sentence that carries some weight. ", 20)},
		{Page: 2, Text: strings.Repeat("Another page of steady prose here. ", 20)},
	}}

	ing := NewDocumentIngestor(db, obj, emb, selectorFor(ext), &IngestConfig{TargetTokens: 60, OverlapTokens: 10, EmbedDim: 4})
	require.NoError(t, ing.ProcessOne(context.Background(), "doc-1"))

	assert.Equal(t, models.DocStatusReady, db.lastStatus())
	assert.Equal(t, []string{models.DocStatusProcessing, models.DocStatusReady}, db.statuses)
	assert.Equal(t, 2, db.totalPages)
	assert.Equal(t, "paperlens-docs", obj.gotBucket)
	assert.Equal(t, "users/user-1/documents/doc-1/paper.pdf", obj.gotKey)
	assert.Equal(t, core.EmbedTaskDocument, emb.gotTask)

	require.NotEmpty(t, db.chunks)
	for i, ch := range db.chunks {
		assert.Equal(t, i, ch.Position)
		assert.Equal(t, "doc-1", ch.DocumentID)
		assert.NotEmpty(t, ch.ID)
		assert.Len(t, ch.Embedding, 4)
	}
}

func TestProcessOneReprocessReplacesChunks(t *testing.T) {
	db := &fakeDB{doc: testDoc()}
	obj := &fakeObj{data: []byte("%PDF")}
	ext := &fakeExtractor{pages: []models.PageText{
		{Page: 1, Text: strings.Repeat("A sentence that carries some weight. ", 20)},
	}}

	ing := NewDocumentIngestor(db, obj, &fakeEmbedder{dim: 4}, selectorFor(ext), &IngestConfig{TargetTokens: 60, OverlapTokens: 10, EmbedDim: 4})
	require.NoError(t, ing.ProcessOne(context.Background(), "doc-1"))
	firstRun := len(db.chunks)
	require.Greater(t, firstRun, 0)

	require.NoError(t, ing.ProcessOne(context.Background(), "doc-1"),
		"a second run replaces the chunk set instead of colliding with it")
	assert.Equal(t, models.DocStatusReady, db.lastStatus())
	assert.Len(t, db.chunks, firstRun, "reprocessing re-derives, never appends")
	for i, ch := range db.chunks {
		assert.Equal(t, i, ch.Position)
	}
}

func TestProcessOneEmbedDimensionMismatch(t *testing.T) {
	db := &fakeDB{doc: testDoc()}
	ext := &fakeExtractor{pages: []models.PageText{{Page: 1, Text: "A single page of text."}}}

	ing := NewDocumentIngestor(db, &fakeObj{data: []byte("%PDF")}, &fakeEmbedder{dim: 3}, selectorFor(ext), &IngestConfig{EmbedDim: 4})
	err := ing.ProcessOne(context.Background(), "doc-1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension")
	assert.Equal(t, models.DocStatusFailed, db.lastStatus())
	assert.Empty(t, db.chunks)
}

func TestProcessOneExtractionFailure(t *testing.T) {
	db := &fakeDB{doc: testDoc()}
	ext := &fakeExtractor{err: &core.ExtractionError{Reason: "document is not a valid PDF"}}

	ing := NewDocumentIngestor(db, &fakeObj{data: []byte("junk")}, &fakeEmbedder{dim: 4}, selectorFor(ext), nil)
	err := ing.ProcessOne(context.Background(), "doc-1")

	var exErr *core.ExtractionError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, models.DocStatusFailed, db.lastStatus())
	assert.Contains(t, db.lastErrMsg, "not a valid PDF")
	assert.Empty(t, db.chunks)
}

func TestProcessOneEmptyTextFails(t *testing.T) {
	db := &fakeDB{doc: testDoc()}
	ext := &fakeExtractor{pages: []models.PageText{{Page: 1, Text: "   "}}}

	ing := NewDocumentIngestor(db, &fakeObj{data: []byte("%PDF")}, &fakeEmbedder{dim: 4}, selectorFor(ext), nil)
	err := ing.ProcessOne(context.Background(), "doc-1")

	require.Error(t, err)
	assert.Equal(t, models.DocStatusFailed, db.lastStatus())
	assert.Contains(t, db.lastErrMsg, "zero chunks")
	assert.Empty(t, db.chunks)
}

func TestProcessOneEmbeddingFailure(t *testing.T) {
	db := &fakeDB{doc: testDoc()}
	emb := &fakeEmbedder{err: &core.EmbeddingServiceError{StatusCode: 429, Body: "rate limited"}}
	ext := &fakeExtractor{pages: []models.PageText{{Page: 1, Text: "A single page of text."}}}

	ing := NewDocumentIngestor(db, &fakeObj{data: []byte("%PDF")}, emb, selectorFor(ext), nil)
	err := ing.ProcessOne(context.Background(), "doc-1")

	require.Error(t, err)
	var embErr *core.EmbeddingServiceError
	assert.ErrorAs(t, err, &embErr)
	assert.Equal(t, models.DocStatusFailed, db.lastStatus())
	assert.Empty(t, db.chunks)
}

func TestProcessOneDownloadFailure(t *testing.T) {
	db := &fakeDB{doc: testDoc()}
	obj := &fakeObj{err: errors.New("object not found")}

	ing := NewDocumentIngestor(db, obj, &fakeEmbedder{dim: 4}, selectorFor(&fakeExtractor{}), nil)
	err := ing.ProcessOne(context.Background(), "doc-1")

	require.Error(t, err)
	assert.Equal(t, models.DocStatusFailed, db.lastStatus())
	assert.Contains(t, db.lastErrMsg, "download")
}

func TestProcessOneUnknownDocument(t *testing.T) {
	ing := NewDocumentIngestor(&fakeDB{}, &fakeObj{}, &fakeEmbedder{dim: 4}, selectorFor(&fakeExtractor{}), nil)
	err := ing.ProcessOne(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestParseS3URL(t *testing.T) {
	bucket, key := parseS3URL("https://my-bucket.s3.us-east-2.amazonaws.com/users/u/documents/d/f.pdf")
	assert.Equal(t, "my-bucket", bucket)
	assert.Equal(t, "users/u/documents/d/f.pdf", key)
}
