package ingestion_engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/paperlens-ai/paperlens/internal/core"
	"github.com/paperlens-ai/paperlens/internal/models"
)

// Ingestor is the processing-flow entrypoint exposed to the API layer.
type Ingestor interface {
	Start(ctx context.Context, numWorkers int)
	Enqueue(docID string)
	ProcessOne(ctx context.Context, docID string) error
}

var _ Ingestor = (*DocumentIngestor)(nil)

// NewDocumentIngestor constructs the ingestor with a bounded job queue (64).
func NewDocumentIngestor(db core.DbClient, obj core.ObjectClient, emb core.EmbeddingProvider, extractorFor ExtractorSelector, cfg *IngestConfig) *DocumentIngestor {
	if cfg == nil {
		cfg = &IngestConfig{}
	}
	return &DocumentIngestor{
		db: db, obj: obj, embedder: emb, extractorFor: extractorFor,
		chunker: NewChunker(cfg.TargetTokens, cfg.OverlapTokens),
		cfg:     cfg,
		jobs:    make(chan string, 64),
	}
}

// Start runs worker goroutines reading from the jobs channel.
func (i *DocumentIngestor) Start(ctx context.Context, numWorkers int) {
	for w := 1; w <= numWorkers; w++ {
		go func(w int) {
			for {
				select {
				case <-ctx.Done():
					log.Println("DocumentIngestor: worker shutting down.")
					return
				case docID := <-i.jobs:
					log.Printf("DocumentIngestor: processing document %s on worker %d", docID, w)
					if err := i.ProcessOne(ctx, docID); err != nil {
						log.Printf("DocumentIngestor: document %s failed: %v", docID, err)
					}
				}
			}
		}(w)
	}
}

// Enqueue schedules a document ID for processing.
// If the queue is full, this call blocks until space frees up.
func (i *DocumentIngestor) Enqueue(docID string) {
	i.jobs <- docID
}

// ProcessOne runs the full processing flow for a single document:
// processing → download → extract → chunk → embed → persist → ready.
// Every failure maps to the terminal "failed" status with a surfaced message;
// reprocessing re-runs the whole flow from download, never resumes.
func (i *DocumentIngestor) ProcessOne(ctx context.Context, docID string) error {
	proctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	doc, err := i.db.GetDocumentByID(proctx, docID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("document not found: %s", docID)
	}

	if err := i.db.UpdateDocumentStatus(proctx, docID, models.DocStatusProcessing, ""); err != nil {
		return fmt.Errorf("set processing: %w", err)
	}

	bucket, key := parseS3URL(doc.StorageURL)
	data, err := i.obj.GetFile(proctx, bucket, key)
	if err != nil {
		return i.fail(proctx, docID, fmt.Errorf("download: %w", err))
	}

	extractor := i.extractorFor(doc.ContentType)
	pages, totalPages, err := extractor.ExtractPages(proctx, data)
	if err != nil {
		return i.fail(proctx, docID, err)
	}
	if err := i.db.UpdateDocumentPages(proctx, docID, totalPages); err != nil {
		return i.fail(proctx, docID, fmt.Errorf("record page count: %w", err))
	}

	chunks := i.chunker.Chunk(pages)
	if len(chunks) == 0 {
		return i.fail(proctx, docID, &core.ExtractionError{Reason: "document produced zero chunks"})
	}

	texts := make([]string, len(chunks))
	for idx := range chunks {
		texts[idx] = chunks[idx].Content
	}
	vecs, err := i.embedder.EmbedTexts(proctx, texts, core.EmbedTaskDocument)
	if err != nil {
		return i.fail(proctx, docID, fmt.Errorf("embed chunks: %w", err))
	}
	if len(vecs) != len(chunks) {
		return i.fail(proctx, docID, fmt.Errorf("embed size mismatch: got %d want %d", len(vecs), len(chunks)))
	}
	if i.cfg.EmbedDim > 0 {
		for k := range vecs {
			if len(vecs[k]) != i.cfg.EmbedDim {
				return i.fail(proctx, docID, fmt.Errorf("embedding dimension %d for chunk %d, want %d", len(vecs[k]), k, i.cfg.EmbedDim))
			}
		}
	}

	rows := make([]models.DocumentChunk, len(chunks))
	now := time.Now()
	for k, ch := range chunks {
		rows[k] = models.DocumentChunk{
			ID:         uuid.NewString(),
			DocumentID: docID,
			Position:   ch.Position,
			Content:    ch.Content,
			PageStart:  ch.PageStart,
			PageEnd:    ch.PageEnd,
			TokenCount: ch.TokenCount,
			Embedding:  vecs[k],
			CreatedAt:  now,
		}
	}
	// A reprocessing run replaces the previous chunk set, never appends to it;
	// stale rows would trip the (document_id, position) uniqueness.
	if err := i.db.DeleteChunksByDocument(proctx, docID); err != nil {
		return i.fail(proctx, docID, fmt.Errorf("clear previous chunks: %w", err))
	}
	if err := i.db.InsertDocumentChunks(proctx, rows); err != nil {
		// Earlier batches are not rolled back; a fresh processing run
		// re-derives everything from scratch.
		return i.fail(proctx, docID, fmt.Errorf("persist chunks: %w", err))
	}

	return i.db.UpdateDocumentStatus(proctx, docID, models.DocStatusReady, "")
}

// fail marks the document failed with a surfaced message and returns cause.
func (i *DocumentIngestor) fail(ctx context.Context, docID string, cause error) error {
	if err := i.db.UpdateDocumentStatus(ctx, docID, models.DocStatusFailed, cause.Error()); err != nil {
		log.Printf("DocumentIngestor: could not mark %s failed: %v", docID, err)
	}
	return cause
}

// parseS3URL extracts the bucket and key from a virtual-hosted-style S3 URL.
// Example: https://my-bucket.s3.us-east-2.amazonaws.com/path/to/file.pdf
func parseS3URL(u string) (bucket, key string) {
	hostPath := strings.SplitN(strings.TrimPrefix(u, "https://"), "/", 2)
	host := hostPath[0]
	if len(hostPath) == 2 {
		key = hostPath[1]
	}
	parts := strings.Split(host, ".")
	if len(parts) > 0 {
		bucket = parts[0]
	}
	return bucket, key
}
