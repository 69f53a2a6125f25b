package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/paperlens-ai/paperlens/internal/config"
	"github.com/paperlens-ai/paperlens/internal/core"
	"github.com/paperlens-ai/paperlens/internal/models"
)

// chunkInsertBatchSize bounds a single insert transaction to respect payload
// limits. A failing batch aborts the remainder; earlier batches stay.
const chunkInsertBatchSize = 50

type DatabaseClient struct {
	db *sql.DB
}

var _ core.DbClient = (*DatabaseClient)(nil)

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (core.DbClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	dsn := cfg.DatabaseURL
	if cfg.SslCertPath != "" {
		u, err := url.Parse(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
		q := u.Query()
		q.Set("sslmode", "verify-ca")
		q.Set("sslrootcert", cfg.SslCertPath)
		u.RawQuery = q.Encode()
		dsn = u.String()
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Users

func (c *DatabaseClient) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("nil user")
	}
	const q = `
		INSERT INTO users (id, first_name, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q, user.ID, user.FirstName, user.Email, user.PasswordHash)
	return err
}

func (c *DatabaseClient) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `
		SELECT id, first_name, email, password_hash, created_at, updated_at
		FROM users WHERE email = $1
	`
	var u models.User
	err := c.db.QueryRowContext(ctx, q, email).Scan(
		&u.ID, &u.FirstName, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Documents

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO documents
			(id, user_id, file_name, storage_url, content_type, byte_size, status, status_error, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, '', now(), now())
	`
	_, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.UserID, doc.FileName, doc.StorageURL, doc.ContentType, doc.ByteSize, doc.Status)
	return err
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	const q = `
		SELECT id, user_id, file_name, storage_url, content_type, byte_size, total_pages, status, status_error, created_at, updated_at
		FROM documents
		WHERE id = $1
	`
	var d models.Document
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&d.ID, &d.UserID, &d.FileName, &d.StorageURL, &d.ContentType, &d.ByteSize,
		&d.TotalPages, &d.Status, &d.StatusError, &d.CreatedAt, &d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *DatabaseClient) ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error) {
	const q = `
		SELECT id, user_id, file_name, storage_url, content_type, byte_size, total_pages, status, status_error, created_at, updated_at
		FROM documents
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(
			&d.ID, &d.UserID, &d.FileName, &d.StorageURL, &d.ContentType, &d.ByteSize,
			&d.TotalPages, &d.Status, &d.StatusError, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) UpdateDocumentStatus(ctx context.Context, id string, status string, statusError string) error {
	const q = `
		UPDATE documents
		SET status = $2, status_error = $3, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, status, statusError)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	return nil
}

func (c *DatabaseClient) UpdateDocumentPages(ctx context.Context, id string, totalPages int) error {
	const q = `
		UPDATE documents
		SET total_pages = $2, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, totalPages)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	return nil
}

// DeleteDocument removes the document row; chunks and the cached insight set
// go with it via FK cascade.
func (c *DatabaseClient) DeleteDocument(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	return err
}

// Chunks

// InsertDocumentChunks writes chunks in batches of chunkInsertBatchSize, one
// transaction per batch. The first failing batch aborts the rest; rows from
// earlier batches are not rolled back (a fresh processing run re-derives the
// whole set).
func (c *DatabaseClient) InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	for start := 0; start < len(chunks); start += chunkInsertBatchSize {
		end := start + chunkInsertBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		if err := c.insertChunkBatch(ctx, chunks[start:end]); err != nil {
			return fmt.Errorf("chunk batch %d-%d: %w", start, end-1, err)
		}
	}
	return nil
}

func (c *DatabaseClient) insertChunkBatch(ctx context.Context, batch []models.DocumentChunk) error {
	if len(batch) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO document_chunks
			(id, document_id, position, content, page_start, page_end, token_count, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, now()))
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range batch {
		ch := &batch[i]
		vec := pgvector.NewVector(ch.Embedding)
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.DocumentID, ch.Position, ch.Content, ch.PageStart, ch.PageEnd,
			ch.TokenCount, vec, ch.CreatedAt,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// DeleteChunksByDocument drops the whole chunk set for a document, making
// room for a reprocessing run to insert a fresh one without tripping the
// (document_id, position) uniqueness.
func (c *DatabaseClient) DeleteChunksByDocument(ctx context.Context, documentID string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	return err
}

func (c *DatabaseClient) GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error) {
	const q = `
		SELECT id, document_id, position, content, page_start, page_end, token_count, embedding, created_at
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY position ASC
	`
	rows, err := c.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DocumentChunk
	for rows.Next() {
		var (
			ch  models.DocumentChunk
			emb pgvector.Vector
		)
		if err := rows.Scan(
			&ch.ID, &ch.DocumentID, &ch.Position, &ch.Content, &ch.PageStart, &ch.PageEnd,
			&ch.TokenCount, &emb, &ch.CreatedAt,
		); err != nil {
			return nil, err
		}
		ch.Embedding = emb.Slice()
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) CountChunksByDocument(ctx context.Context, documentID string) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM document_chunks WHERE document_id = $1`, documentID).Scan(&n)
	return n, err
}

// SearchDocumentChunks ranks one document's chunks by descending cosine
// similarity against the query vector, keeping rows at or above threshold.
// Tie order is whatever pgvector returns.
func (c *DatabaseClient) SearchDocumentChunks(ctx context.Context, docID string, queryVec []float32, threshold float32, topK int) ([]models.ChunkMatch, error) {
	const q = `
		SELECT id, document_id, position, content, page_start, page_end, token_count,
		       1 - (embedding <=> $2) AS similarity
		FROM document_chunks
		WHERE document_id = $1 AND 1 - (embedding <=> $2) >= $3
		ORDER BY embedding <=> $2
		LIMIT $4
	`
	vec := pgvector.NewVector(queryVec)
	rows, err := c.db.QueryContext(ctx, q, docID, vec, threshold, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ChunkMatch
	for rows.Next() {
		var m models.ChunkMatch
		if err := rows.Scan(
			&m.Chunk.ID, &m.Chunk.DocumentID, &m.Chunk.Position, &m.Chunk.Content,
			&m.Chunk.PageStart, &m.Chunk.PageEnd, &m.Chunk.TokenCount, &m.Similarity,
		); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Insight cache

// UpsertDocumentInsights replaces the cached insight set for a document
// wholesale. Concurrent writers race last-writer-wins; accepted.
func (c *DatabaseClient) UpsertDocumentInsights(ctx context.Context, docID string, insights []models.Insight, degraded bool) error {
	payload, err := json.Marshal(insights)
	if err != nil {
		return fmt.Errorf("marshal insights: %w", err)
	}
	const q = `
		INSERT INTO document_insights (document_id, insights, degraded, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (document_id)
		DO UPDATE SET insights = EXCLUDED.insights, degraded = EXCLUDED.degraded, updated_at = now()
	`
	_, err = c.db.ExecContext(ctx, q, docID, payload, degraded)
	return err
}

// GetDocumentInsights returns the cached set, or nil when no cache row exists.
func (c *DatabaseClient) GetDocumentInsights(ctx context.Context, docID string) ([]models.Insight, error) {
	var payload []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT insights FROM document_insights WHERE document_id = $1`, docID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var insights []models.Insight
	if err := json.Unmarshal(payload, &insights); err != nil {
		return nil, fmt.Errorf("unmarshal cached insights: %w", err)
	}
	return insights, nil
}

func (c *DatabaseClient) DeleteDocumentInsights(ctx context.Context, docID string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM document_insights WHERE document_id = $1`, docID)
	return err
}
