package insight_engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/paperlens-ai/paperlens/internal/core"
	"github.com/paperlens-ai/paperlens/internal/models"
)

// mergeSkipThreshold: with this few candidates, collisions are unlikely and
// the generative merge is not worth its cost.
const mergeSkipThreshold = 6

var mergeOpts = core.GenerateOptions{
	Temperature:     0.3,
	MaxOutputTokens: 32000,
	JSONMode:        true,
}

// Outcome is the tagged result of a merge: a clean merged set, or a degraded
// fallback carrying the unmerged candidates and the reason the merge was
// skipped. Callers and tests can tell the two apart instead of inferring it
// from content.
type Outcome struct {
	Insights []models.Insight `json:"insights"`
	Degraded bool             `json:"degraded"`
	Reason   string           `json:"reason,omitempty"`
}

// MergeAndCacheInsights deduplicates the accumulated candidates and caches
// the final set for the document (wholesale replace). Merge failure never
// fails the pipeline: the unmerged, re-IDed candidates are cached instead and
// the outcome is marked degraded.
func (e *Engine) MergeAndCacheInsights(ctx context.Context, docID string, candidates []models.Insight) (Outcome, error) {
	if len(candidates) == 0 {
		return Outcome{}, nil
	}

	prefix := docPrefix(docID)

	if len(candidates) <= mergeSkipThreshold {
		final := reassignIDs(candidates, prefix)
		if err := e.db.UpsertDocumentInsights(ctx, docID, final, false); err != nil {
			return Outcome{}, fmt.Errorf("cache insights: %w", err)
		}
		return Outcome{Insights: final}, nil
	}

	merged, reason := e.mergeWithModel(ctx, candidates)
	outcome := Outcome{}
	if reason != "" {
		outcome.Insights = reassignIDs(candidates, prefix)
		outcome.Degraded = true
		outcome.Reason = reason
		log.Printf("insight_engine: merge degraded for doc %s: %s", docID, reason)
	} else {
		outcome.Insights = reassignIDs(merged, prefix)
	}

	if err := e.db.UpsertDocumentInsights(ctx, docID, outcome.Insights, outcome.Degraded); err != nil {
		return Outcome{}, fmt.Errorf("cache insights: %w", err)
	}
	return outcome, nil
}

// mergeWithModel runs the generative merge. It returns the merged set, or an
// empty reason-tagged fallback signal when the response is unusable.
// Candidate IDs are stripped before the call; IDs are never trusted across
// the merge boundary.
func (e *Engine) mergeWithModel(ctx context.Context, candidates []models.Insight) ([]models.Insight, string) {
	stripped := make([]models.Insight, len(candidates))
	copy(stripped, candidates)
	for i := range stripped {
		stripped[i].ID = ""
	}

	payload, err := json.Marshal(stripped)
	if err != nil {
		return nil, fmt.Sprintf("marshal candidates: %v", err)
	}

	resp, err := e.llm.Generate(ctx, mergeSystemPrompt, string(payload), mergeOpts)
	if err != nil {
		return nil, fmt.Sprintf("merge call failed: %v", err)
	}
	if strings.TrimSpace(resp) == "" {
		return nil, "merge returned empty response"
	}

	raws, err := parseInsightArray(resp)
	if err != nil {
		return nil, fmt.Sprintf("merge response unparseable: %v", err)
	}

	var merged []models.Insight
	for _, r := range raws {
		if in, ok := buildInsight(r); ok {
			merged = append(merged, in)
		}
	}
	if len(merged) == 0 {
		return nil, "merge produced no valid insights"
	}
	return merged, ""
}

// reassignIDs gives the final set sequential document-scoped IDs.
func reassignIDs(insights []models.Insight, prefix string) []models.Insight {
	out := make([]models.Insight, len(insights))
	copy(out, insights)
	for i := range out {
		out[i].ID = fmt.Sprintf("insight-%s-%d", prefix, i)
	}
	return out
}
