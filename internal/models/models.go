package models

import (
	"time"
)

// Document lifecycle statuses. Status transitions are the only mutation a
// document undergoes after creation; "ready" and "failed" are terminal for a
// processing run.
const (
	DocStatusUploading  = "uploading"
	DocStatusProcessing = "processing"
	DocStatusReady      = "ready"
	DocStatusFailed     = "failed"
)

// Research direction categories. The model is only allowed to emit these;
// anything else is dropped during schema validation.
const (
	DirectionAdjacentField       = "Adjacent Field"
	DirectionAlternativeApproach = "Alternative Approach"
	DirectionContrastingTheory   = "Contrasting Theory"
	DirectionCrossDiscipline     = "Cross-Discipline"
)

// User represents an authenticated user of the system.
type User struct {
	ID           string    `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Document represents an uploaded PDF and its processing state.
// TotalPages is nil until extraction has completed at least once.
type Document struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	FileName    string    `db:"file_name" json:"file_name"`
	StorageURL  string    `db:"storage_url" json:"storage_url"`
	ContentType string    `db:"content_type" json:"content_type"`
	ByteSize    int64     `db:"byte_size" json:"byte_size"`
	TotalPages  *int      `db:"total_pages" json:"total_pages,omitempty"`
	Status      string    `db:"status" json:"status"` // uploading | processing | ready | failed
	StatusError string    `db:"status_error" json:"status_error,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// PageText is the extractor's output: the plain text of a single page.
// It is ephemeral and never persisted; only the chunker consumes it.
type PageText struct {
	Page int // 1-indexed
	Text string
}

// DocumentChunk represents one text chunk from a document.
// Positions are dense from 0 and define retrieval and grouping order.
// PageStart/PageEnd are the inclusive page range the chunk's text spans;
// consecutive chunks may share boundary pages due to overlap.
type DocumentChunk struct {
	ID         string    `db:"id" json:"id"`
	DocumentID string    `db:"document_id" json:"document_id"`
	Position   int       `db:"position" json:"position"`
	Content    string    `db:"content" json:"content"`
	PageStart  int       `db:"page_start" json:"page_start"`
	PageEnd    int       `db:"page_end" json:"page_end"`
	TokenCount int       `db:"token_count" json:"token_count"`
	Embedding  []float32 `db:"embedding" json:"-"` // pgvector column
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ChunkMatch is one similarity-search result: a chunk plus its cosine
// similarity against the query vector.
type ChunkMatch struct {
	Chunk      DocumentChunk `json:"chunk"`
	Similarity float32       `json:"similarity"`
}

// InsightSource is a verbatim citation backing an insight. Quote must be
// traceable to actual chunk content.
type InsightSource struct {
	Page    int    `json:"page"`
	Section string `json:"section"`
	Quote   string `json:"quote"`
}

// ResearchDirection is a suggested follow-up reading angle attached to an
// insight. Category is one of the Direction* constants.
type ResearchDirection struct {
	Category    string `json:"category"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Insight is a structured, citation-backed finding extracted from document
// content. IDs are scoped to a document + generation run, not globally unique
// across regenerations.
type Insight struct {
	ID                 string              `json:"id"`
	Title              string              `json:"title"`
	Description        string              `json:"description"`
	Sources            []InsightSource     `json:"sources"`
	ResearchDirections []ResearchDirection `json:"research_directions"`
}

// ValidDirectionCategory reports whether c belongs to the closed category set.
func ValidDirectionCategory(c string) bool {
	switch c {
	case DirectionAdjacentField, DirectionAlternativeApproach,
		DirectionContrastingTheory, DirectionCrossDiscipline:
		return true
	}
	return false
}
