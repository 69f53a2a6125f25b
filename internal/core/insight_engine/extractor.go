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

// ChunksPerGroup is the number of contiguous chunks one extraction call sees.
const ChunksPerGroup = 10

var extractOpts = core.GenerateOptions{
	Temperature:     0.4,
	MaxOutputTokens: 16000,
	JSONMode:        true,
}

// rawInsight mirrors the shape the model is asked to emit. The model response
// is untrusted; fields are validated before Insight values are built.
type rawInsight struct {
	Title              string                     `json:"title"`
	Description        string                     `json:"description"`
	Sources            []models.InsightSource     `json:"sources"`
	ResearchDirections []models.ResearchDirection `json:"research_directions"`
}

// extractGroup prompts the model over one group of chunks and returns the
// validated candidates. IDs are scoped doc-prefix + group + in-group index so
// they cannot collide across groups before the merge re-IDs everything.
// A response that does not parse as a JSON array is a *core.SchemaError; the
// caller logs it and the group contributes zero insights.
func (e *Engine) extractGroup(ctx context.Context, docID string, chunks []models.DocumentChunk, groupIndex, totalGroups int) ([]models.Insight, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	user := buildGroupMessage(chunks, groupIndex, totalGroups)
	resp, err := e.llm.Generate(ctx, extractSystemPrompt, user, extractOpts)
	if err != nil {
		return nil, fmt.Errorf("extract group %d: %w", groupIndex, err)
	}
	if strings.TrimSpace(resp) == "" {
		// The model had nothing to say about this group; not an error.
		return nil, nil
	}

	raws, err := parseInsightArray(resp)
	if err != nil {
		return nil, err
	}

	prefix := docPrefix(docID)
	out := make([]models.Insight, 0, len(raws))
	for _, r := range raws {
		in, ok := buildInsight(r)
		if !ok {
			log.Printf("insight_engine: dropping candidate without title/description (doc %s group %d)", docID, groupIndex)
			continue
		}
		in.ID = fmt.Sprintf("insight-%s-g%d-%d", prefix, groupIndex, len(out))
		out = append(out, in)
	}
	return out, nil
}

// buildGroupMessage labels every chunk with its index and page range so the
// model can cite pages accurately.
func buildGroupMessage(chunks []models.DocumentChunk, groupIndex, totalGroups int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Document section %d of %d.\n\n", groupIndex+1, totalGroups)
	for _, ch := range chunks {
		if ch.PageStart == ch.PageEnd {
			fmt.Fprintf(&b, "[Chunk %d | page %d]\n", ch.Position, ch.PageStart)
		} else {
			fmt.Fprintf(&b, "[Chunk %d | pages %d-%d]\n", ch.Position, ch.PageStart, ch.PageEnd)
		}
		b.WriteString(ch.Content)
		b.WriteString("\n\n")
	}
	return b.String()
}

// parseInsightArray decodes a strict JSON array of candidates. Markdown
// fences are tolerated (models sneak them in even in JSON mode); anything
// else that fails to decode is a schema violation.
func parseInsightArray(resp string) ([]rawInsight, error) {
	text := stripFences(resp)
	var raws []rawInsight
	if err := json.Unmarshal([]byte(text), &raws); err != nil {
		return nil, &core.SchemaError{Detail: fmt.Sprintf("not a JSON insight array: %v", err)}
	}
	return raws, nil
}

// buildInsight validates one candidate. Missing title or description drops
// the candidate; a research direction with an unknown category is dropped
// from it without discarding the rest.
func buildInsight(r rawInsight) (models.Insight, bool) {
	title := strings.TrimSpace(r.Title)
	desc := strings.TrimSpace(r.Description)
	if title == "" || desc == "" {
		return models.Insight{}, false
	}

	in := models.Insight{
		Title:       title,
		Description: desc,
		Sources:     r.Sources,
	}
	for _, d := range r.ResearchDirections {
		if !models.ValidDirectionCategory(d.Category) {
			log.Printf("insight_engine: dropping research direction with category %q", d.Category)
			continue
		}
		in.ResearchDirections = append(in.ResearchDirections, d)
	}
	return in, true
}

// stripFences removes a ```json ... ``` wrapper if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// docPrefix is the leading segment of the document UUID, enough to scope
// insight IDs to a document without dragging the whole UUID around.
func docPrefix(docID string) string {
	if i := strings.IndexByte(docID, '-'); i > 0 {
		return docID[:i]
	}
	return docID
}
