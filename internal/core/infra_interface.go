package core

import (
	"context"

	"github.com/paperlens-ai/paperlens/internal/models"
)

// DbClient defines all persistence operations the services need.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
type DbClient interface {
	CreateUser(ctx context.Context, user *models.User) (err error)
	GetUserByEmail(ctx context.Context, email string) (user *models.User, err error)

	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error)
	UpdateDocumentStatus(ctx context.Context, id string, status string, statusError string) error
	UpdateDocumentPages(ctx context.Context, id string, totalPages int) error
	DeleteDocument(ctx context.Context, id string) error

	// InsertDocumentChunks is append-only and writes in fixed-size batches;
	// a failing batch aborts the remainder but earlier batches stay.
	InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error
	// DeleteChunksByDocument clears a document's chunk set so a reprocessing
	// run can re-derive it from scratch.
	DeleteChunksByDocument(ctx context.Context, documentID string) error
	GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error)
	CountChunksByDocument(ctx context.Context, documentID string) (int, error)

	// SearchDocumentChunks returns chunks of one document ranked by descending
	// cosine similarity, keeping at most topK rows with similarity >= threshold.
	SearchDocumentChunks(ctx context.Context, docID string, queryVec []float32, threshold float32, topK int) ([]models.ChunkMatch, error)

	// Per-document insight cache: one row per document, replaced wholesale.
	UpsertDocumentInsights(ctx context.Context, docID string, insights []models.Insight, degraded bool) error
	GetDocumentInsights(ctx context.Context, docID string) ([]models.Insight, error)
	DeleteDocumentInsights(ctx context.Context, docID string) error

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
// It's abstract so AWS can be swapped for MinIO, GCP, etc. easily.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
}

// PageExtractor turns raw document bytes into per-page plain text.
type PageExtractor interface {
	// ExtractPages returns one PageText per page in page order plus the total
	// page count. It returns *ExtractionError when the bytes are not parseable
	// or no page has an extractable text layer.
	ExtractPages(ctx context.Context, data []byte) ([]models.PageText, int, error)
}
