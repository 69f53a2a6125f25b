package insight_engine

import (
	"context"
	"encoding/json"
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

const testDocID = "deadbeef-0000-4000-8000-000000000000"

type fakeDB struct {
	core.DbClient
	mu sync.Mutex

	chunks []models.DocumentChunk
	cached []models.Insight

	upserts       int
	lastInsights  []models.Insight
	lastDegraded  bool
	deletes       int
}

func (f *fakeDB) GetChunksByDocument(_ context.Context, _ string) ([]models.DocumentChunk, error) {
	return f.chunks, nil
}

func (f *fakeDB) CountChunksByDocument(_ context.Context, _ string) (int, error) {
	return len(f.chunks), nil
}

func (f *fakeDB) GetDocumentInsights(_ context.Context, _ string) ([]models.Insight, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cached, nil
}

func (f *fakeDB) UpsertDocumentInsights(_ context.Context, _ string, insights []models.Insight, degraded bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	f.cached = insights
	f.lastInsights = insights
	f.lastDegraded = degraded
	return nil
}

func (f *fakeDB) DeleteDocumentInsights(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	f.cached = nil
	return nil
}

// fakeLLM scripts responses by call kind; the system prompt tells extraction
// and merge calls apart.
type fakeLLM struct {
	mu           sync.Mutex
	extractFn    func(user string) (string, error)
	mergeFn      func(user string) (string, error)
	extractCalls int
	mergeCalls   int
}

func (f *fakeLLM) Generate(_ context.Context, system, user string, _ core.GenerateOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if system == mergeSystemPrompt {
		f.mergeCalls++
		if f.mergeFn == nil {
			return "[]", nil
		}
		return f.mergeFn(user)
	}
	f.extractCalls++
	if f.extractFn == nil {
		return "[]", nil
	}
	return f.extractFn(user)
}

func makeChunks(n int) []models.DocumentChunk {
	out := make([]models.DocumentChunk, n)
	for i := range out {
		out[i] = models.DocumentChunk{
			ID:         fmt.Sprintf("chunk-%d", i),
			DocumentID: testDocID,
			Position:   i,
			Content:    fmt.Sprintf("Content of chunk %d.", i),
			PageStart:  i/3 + 1,
			PageEnd:    i/3 + 1,
			TokenCount: 10,
		}
	}
	return out
}

func insightJSON(titles ...string) string {
	var raws []map[string]any
	for _, title := range titles {
		raws = append(raws, map[string]any{
			"title":       title,
			"description": "A description of " + title + ". It spans two sentences.",
			"sources":     []map[string]any{{"page": 1, "section": "Intro", "quote": "a quote"}},
			"research_directions": []map[string]any{
				{"category": models.DirectionAdjacentField, "title": "Related", "description": "Look nearby."},
			},
		})
	}
	b, _ := json.Marshal(raws)
	return string(b)
}

func namedInsights(n int) []models.Insight {
	out := make([]models.Insight, n)
	for i := range out {
		out[i] = models.Insight{
			ID:          fmt.Sprintf("insight-deadbeef-g0-%d", i),
			Title:       fmt.Sprintf("Finding %d", i),
			Description: "Something the document claims.",
		}
	}
	return out
}

func TestGetInsightPlan(t *testing.T) {
	e := NewEngine(&fakeDB{chunks: makeChunks(25)}, &fakeLLM{})
	plan, err := e.GetInsightPlan(context.Background(), testDocID)
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, 25, plan.TotalChunks)
	assert.Equal(t, 3, plan.TotalGroups)

	e = NewEngine(&fakeDB{}, &fakeLLM{})
	plan, err = e.GetInsightPlan(context.Background(), testDocID)
	require.NoError(t, err)
	assert.Nil(t, plan, "no chunks means no plan")
}

func TestExtractGroupInsightsIDsAndValidation(t *testing.T) {
	llm := &fakeLLM{extractFn: func(string) (string, error) {
		return insightJSON("First finding", "Second finding"), nil
	}}
	e := NewEngine(&fakeDB{chunks: makeChunks(12)}, llm)

	insights, err := e.ExtractGroupInsights(context.Background(), testDocID, 1, 2)
	require.NoError(t, err)
	require.Len(t, insights, 2)

	assert.Equal(t, "insight-deadbeef-g1-0", insights[0].ID)
	assert.Equal(t, "insight-deadbeef-g1-1", insights[1].ID)
	assert.Equal(t, "First finding", insights[0].Title)
	require.Len(t, insights[0].ResearchDirections, 1)
	assert.Equal(t, models.DirectionAdjacentField, insights[0].ResearchDirections[0].Category)
}

func TestExtractGroupInsightsDropsInvalidCandidates(t *testing.T) {
	resp := `[
		{"title": "", "description": "no title, dropped"},
		{"title": "Kept", "description": "valid", "research_directions": [
			{"category": "Made Up Category", "title": "x", "description": "y"},
			{"category": "Cross-Discipline", "title": "ok", "description": "kept"}
		]}
	]`
	llm := &fakeLLM{extractFn: func(string) (string, error) { return resp, nil }}
	e := NewEngine(&fakeDB{chunks: makeChunks(3)}, llm)

	insights, err := e.ExtractGroupInsights(context.Background(), testDocID, 0, 1)
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Equal(t, "Kept", insights[0].Title)
	require.Len(t, insights[0].ResearchDirections, 1)
	assert.Equal(t, models.DirectionCrossDiscipline, insights[0].ResearchDirections[0].Category)
}

func TestExtractGroupInsightsMalformedJSON(t *testing.T) {
	llm := &fakeLLM{extractFn: func(string) (string, error) { return "here are your insights:", nil }}
	e := NewEngine(&fakeDB{chunks: makeChunks(3)}, llm)

	_, err := e.ExtractGroupInsights(context.Background(), testDocID, 0, 1)
	var schemaErr *core.SchemaError
	require.ErrorAs(t, err, &schemaErr)
}

func TestExtractGroupInsightsToleratesFences(t *testing.T) {
	llm := &fakeLLM{extractFn: func(string) (string, error) {
		return "```json\n" + insightJSON("Fenced") + "\n```", nil
	}}
	e := NewEngine(&fakeDB{chunks: makeChunks(3)}, llm)

	insights, err := e.ExtractGroupInsights(context.Background(), testDocID, 0, 1)
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Equal(t, "Fenced", insights[0].Title)
}

func TestExtractGroupInsightsEmptyResponse(t *testing.T) {
	llm := &fakeLLM{extractFn: func(string) (string, error) { return "  ", nil }}
	e := NewEngine(&fakeDB{chunks: makeChunks(3)}, llm)

	insights, err := e.ExtractGroupInsights(context.Background(), testDocID, 0, 1)
	require.NoError(t, err)
	assert.Empty(t, insights)
}

func TestExtractGroupInsightsWindowing(t *testing.T) {
	var seen string
	llm := &fakeLLM{extractFn: func(user string) (string, error) {
		seen = user
		return "[]", nil
	}}
	e := NewEngine(&fakeDB{chunks: makeChunks(25)}, llm)

	_, err := e.ExtractGroupInsights(context.Background(), testDocID, 2, 3)
	require.NoError(t, err)
	assert.Contains(t, seen, "Document section 3 of 3.")
	assert.Contains(t, seen, "Content of chunk 20.")
	assert.Contains(t, seen, "Content of chunk 24.")
	assert.NotContains(t, seen, "Content of chunk 19.")

	// Past the end there is nothing to extract and no model call.
	calls := llm.extractCalls
	insights, err := e.ExtractGroupInsights(context.Background(), testDocID, 9, 3)
	require.NoError(t, err)
	assert.Nil(t, insights)
	assert.Equal(t, calls, llm.extractCalls)
}

func TestMergeSkipsModelForFewCandidates(t *testing.T) {
	db := &fakeDB{}
	llm := &fakeLLM{}
	e := NewEngine(db, llm)

	outcome, err := e.MergeAndCacheInsights(context.Background(), testDocID, namedInsights(6))
	require.NoError(t, err)

	assert.Zero(t, llm.mergeCalls, "6 or fewer candidates skip the generative merge")
	assert.False(t, outcome.Degraded)
	require.Len(t, outcome.Insights, 6)
	for i, in := range outcome.Insights {
		assert.Equal(t, fmt.Sprintf("insight-deadbeef-%d", i), in.ID)
	}
	assert.Equal(t, 1, db.upserts)
	assert.False(t, db.lastDegraded)
}

func TestMergeEmptyCandidates(t *testing.T) {
	db := &fakeDB{}
	e := NewEngine(db, &fakeLLM{})

	outcome, err := e.MergeAndCacheInsights(context.Background(), testDocID, nil)
	require.NoError(t, err)
	assert.Empty(t, outcome.Insights)
	assert.False(t, outcome.Degraded)
	assert.Zero(t, db.upserts, "nothing to cache for an empty run")
}

func TestMergeWithModel(t *testing.T) {
	db := &fakeDB{}
	llm := &fakeLLM{mergeFn: func(user string) (string, error) {
		// Candidate IDs must not cross the merge boundary.
		assert.NotContains(t, user, "insight-deadbeef-g0")
		return insightJSON("Merged A", "Merged B"), nil
	}}
	e := NewEngine(db, llm)

	outcome, err := e.MergeAndCacheInsights(context.Background(), testDocID, namedInsights(7))
	require.NoError(t, err)

	assert.Equal(t, 1, llm.mergeCalls)
	assert.False(t, outcome.Degraded)
	require.Len(t, outcome.Insights, 2)
	assert.Equal(t, "insight-deadbeef-0", outcome.Insights[0].ID)
	assert.Equal(t, "insight-deadbeef-1", outcome.Insights[1].ID)
	assert.Equal(t, outcome.Insights, db.lastInsights)
}

func TestMergeDegradesOnModelFailure(t *testing.T) {
	db := &fakeDB{}
	llm := &fakeLLM{mergeFn: func(string) (string, error) {
		return "", errors.New("model unavailable")
	}}
	e := NewEngine(db, llm)

	candidates := namedInsights(8)
	outcome, err := e.MergeAndCacheInsights(context.Background(), testDocID, candidates)
	require.NoError(t, err, "merge failure degrades, never fails the run")

	assert.True(t, outcome.Degraded)
	assert.Contains(t, outcome.Reason, "model unavailable")
	require.Len(t, outcome.Insights, 8)
	for i, in := range outcome.Insights {
		assert.Equal(t, fmt.Sprintf("insight-deadbeef-%d", i), in.ID)
		assert.Equal(t, candidates[i].Title, in.Title)
	}
	assert.Equal(t, 1, db.upserts)
	assert.True(t, db.lastDegraded)
}

func TestMergeDegradesOnUnparseableResponse(t *testing.T) {
	llm := &fakeLLM{mergeFn: func(string) (string, error) { return "not json", nil }}
	e := NewEngine(&fakeDB{}, llm)

	outcome, err := e.MergeAndCacheInsights(context.Background(), testDocID, namedInsights(7))
	require.NoError(t, err)
	assert.True(t, outcome.Degraded)
	assert.Contains(t, outcome.Reason, "unparseable")
}

func TestGenerateInsightsCacheShortCircuit(t *testing.T) {
	cached := namedInsights(2)
	db := &fakeDB{chunks: makeChunks(30), cached: cached}
	llm := &fakeLLM{}
	e := NewEngine(db, llm)

	outcome, err := e.GenerateInsights(context.Background(), testDocID)
	require.NoError(t, err)
	assert.Equal(t, cached, outcome.Insights)
	assert.False(t, outcome.Degraded)
	assert.Zero(t, llm.extractCalls)
	assert.Zero(t, llm.mergeCalls)
}

func TestGenerateInsightsFullRun(t *testing.T) {
	db := &fakeDB{chunks: makeChunks(25)}
	llm := &fakeLLM{
		extractFn: func(user string) (string, error) {
			if strings.Contains(user, "section 2 of 3") {
				// One failing group contributes nothing; the rest proceed.
				return "not an array", nil
			}
			return insightJSON("A", "B", "C", "D"), nil
		},
		mergeFn: func(string) (string, error) {
			return insightJSON("Merged"), nil
		},
	}
	e := NewEngine(db, llm)

	outcome, err := e.GenerateInsights(context.Background(), testDocID)
	require.NoError(t, err)

	assert.Equal(t, 3, llm.extractCalls)
	// 8 surviving candidates cross the skip threshold, so the merge runs.
	assert.Equal(t, 1, llm.mergeCalls)
	assert.False(t, outcome.Degraded)
	require.Len(t, outcome.Insights, 1)
	assert.Equal(t, "insight-deadbeef-0", outcome.Insights[0].ID)
	assert.Equal(t, 1, db.upserts)
}

func TestGenerateInsightsSmallDocumentSkipsMerge(t *testing.T) {
	db := &fakeDB{chunks: makeChunks(3)}
	llm := &fakeLLM{extractFn: func(string) (string, error) {
		return insightJSON("One", "Two", "Three", "Four"), nil
	}}
	e := NewEngine(db, llm)

	outcome, err := e.GenerateInsights(context.Background(), testDocID)
	require.NoError(t, err)

	assert.Equal(t, 1, llm.extractCalls, "3 chunks fit in one group")
	assert.Zero(t, llm.mergeCalls, "4 candidates stay under the merge threshold")
	require.Len(t, outcome.Insights, 4)
	for i, in := range outcome.Insights {
		assert.Equal(t, fmt.Sprintf("insight-deadbeef-%d", i), in.ID)
	}
	assert.Equal(t, outcome.Insights, db.cached, "final set is cached")
}

func TestGenerateInsightsNoChunks(t *testing.T) {
	e := NewEngine(&fakeDB{}, &fakeLLM{})
	outcome, err := e.GenerateInsights(context.Background(), testDocID)
	require.NoError(t, err)
	assert.Empty(t, outcome.Insights)
}

func TestRegenerateInsightsBustsCache(t *testing.T) {
	db := &fakeDB{chunks: makeChunks(5), cached: namedInsights(3)}
	llm := &fakeLLM{extractFn: func(string) (string, error) {
		return insightJSON("Fresh"), nil
	}}
	e := NewEngine(db, llm)

	outcome, err := e.RegenerateInsights(context.Background(), testDocID)
	require.NoError(t, err)

	assert.Equal(t, 1, db.deletes)
	assert.Equal(t, 1, llm.extractCalls, "regenerate must not reuse the old cache")
	require.Len(t, outcome.Insights, 1)
	assert.Equal(t, "Fresh", outcome.Insights[0].Title)
}
