package ingestion_engine

import (
	"github.com/paperlens-ai/paperlens/internal/core"
)

// IngestConfig tunes the processing pipeline.
//
// TargetTokens:  approximate tokens per chunk (default 800).
// OverlapTokens: token overlap carried between consecutive chunks (default 100).
// EmbedDim:      expected embedding dimension (default 768).
type IngestConfig struct {
	TargetTokens  int
	OverlapTokens int
	EmbedDim      int
}

// ExtractorSelector picks the page extractor for an upload's content type.
type ExtractorSelector func(contentType string) core.PageExtractor

// DocumentIngestor orchestrates the processing flow for one document at a
// time: download, extract, chunk, embed, persist, with status transitions.
//
// jobs is an in-memory queue of document IDs (easy to swap with a broker
// later); the surrounding system is expected to trigger at most one
// processing run per document at a time.
type DocumentIngestor struct {
	db           core.DbClient
	obj          core.ObjectClient
	embedder     core.EmbeddingProvider
	extractorFor ExtractorSelector
	chunker      *Chunker
	cfg          *IngestConfig
	jobs         chan string
}
