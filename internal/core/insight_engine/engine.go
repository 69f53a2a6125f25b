package insight_engine

import (
	"context"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/paperlens-ai/paperlens/internal/core"
	"github.com/paperlens-ai/paperlens/internal/models"
)

// Engine drives the insight flow: plan, per-group extraction, merge, cache.
// It is stateless per call; the progressive Session carries the client-driven
// loop's state. Concurrent runs for one document race last-writer-wins on the
// cache upsert (accepted).
type Engine struct {
	db  core.DbClient
	llm core.LLMProvider
}

func NewEngine(db core.DbClient, llm core.LLMProvider) *Engine {
	return &Engine{db: db, llm: llm}
}

// Plan describes how a document's chunks split into extraction groups.
type Plan struct {
	TotalChunks int `json:"total_chunks"`
	TotalGroups int `json:"total_groups"`
}

// GetInsightPlan returns the group plan, or nil when the document has no
// chunks (nothing to extract from).
func (e *Engine) GetInsightPlan(ctx context.Context, docID string) (*Plan, error) {
	count, err := e.db.CountChunksByDocument(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("count chunks: %w", err)
	}
	if count == 0 {
		return nil, nil
	}
	return &Plan{
		TotalChunks: count,
		TotalGroups: (count + ChunksPerGroup - 1) / ChunksPerGroup,
	}, nil
}

// ExtractGroupInsights loads the group's chunk window and extracts candidate
// insights from it. The extractor is stateless and order-independent.
func (e *Engine) ExtractGroupInsights(ctx context.Context, docID string, groupIndex, totalGroups int) ([]models.Insight, error) {
	if groupIndex < 0 {
		return nil, fmt.Errorf("negative group index %d", groupIndex)
	}
	chunks, err := e.db.GetChunksByDocument(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	start := groupIndex * ChunksPerGroup
	if start >= len(chunks) {
		return nil, nil
	}
	end := start + ChunksPerGroup
	if end > len(chunks) {
		end = len(chunks)
	}
	return e.extractGroup(ctx, docID, chunks[start:end], groupIndex, totalGroups)
}

// GetCachedDocumentInsights returns the cached final set, or nil if none.
func (e *Engine) GetCachedDocumentInsights(ctx context.Context, docID string) ([]models.Insight, error) {
	return e.db.GetDocumentInsights(ctx, docID)
}

// GenerateInsights is the single-shot flow: cache check, then all groups
// fanned out concurrently, then merge. A group whose extraction fails
// contributes zero insights; the rest proceed.
func (e *Engine) GenerateInsights(ctx context.Context, docID string) (Outcome, error) {
	cached, err := e.db.GetDocumentInsights(ctx, docID)
	if err != nil {
		return Outcome{}, fmt.Errorf("read insight cache: %w", err)
	}
	if len(cached) > 0 {
		return Outcome{Insights: cached}, nil
	}

	plan, err := e.GetInsightPlan(ctx, docID)
	if err != nil {
		return Outcome{}, err
	}
	if plan == nil {
		return Outcome{}, nil
	}

	results := make([][]models.Insight, plan.TotalGroups)
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for gi := 0; gi < plan.TotalGroups; gi++ {
		g.Go(func() error {
			insights, err := e.ExtractGroupInsights(gctx, docID, gi, plan.TotalGroups)
			if err != nil {
				// Degrade: this group yields nothing, the others continue.
				log.Printf("insight_engine: group %d failed for doc %s: %v", gi, docID, err)
				return nil
			}
			mu.Lock()
			results[gi] = insights
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Outcome{}, err
	}

	var candidates []models.Insight
	for _, r := range results {
		candidates = append(candidates, r...)
	}
	return e.MergeAndCacheInsights(ctx, docID, candidates)
}

// RegenerateInsights busts the cache and recomputes the full set.
func (e *Engine) RegenerateInsights(ctx context.Context, docID string) (Outcome, error) {
	if err := e.db.DeleteDocumentInsights(ctx, docID); err != nil {
		return Outcome{}, fmt.Errorf("delete insight cache: %w", err)
	}
	return e.GenerateInsights(ctx, docID)
}
