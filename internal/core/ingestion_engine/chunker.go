package ingestion_engine

import (
	"strings"
	"unicode"

	"github.com/paperlens-ai/paperlens/internal/models"
)

// Chunk is one page-annotated slice of document text sized for embedding
// context. Position is dense from 0 and defines retrieval and grouping order.
type Chunk struct {
	Position   int
	Content    string
	PageStart  int
	PageEnd    int
	TokenCount int
}

// sentence is a single sentence tagged with its source page.
type sentence struct {
	text   string
	page   int
	tokens int
}

// Chunker splits per-page text into overlapping sentence-aligned chunks.
// Identical input always yields an identical chunk sequence.
type Chunker struct {
	targetTokens  int
	overlapTokens int
}

func NewChunker(targetTokens, overlapTokens int) *Chunker {
	if targetTokens <= 0 {
		targetTokens = 800
	}
	if overlapTokens < 0 {
		overlapTokens = 0
	}
	return &Chunker{targetTokens: targetTokens, overlapTokens: overlapTokens}
}

// Chunk flattens all pages into one ordered sentence stream and greedily
// packs sentences into token-bounded chunks with a trailing overlap seed.
// The size ceiling is soft: a sentence is never split, so a single oversized
// sentence still becomes a whole chunk. Zero sentences yield zero chunks.
func (c *Chunker) Chunk(pages []models.PageText) []Chunk {
	var sents []sentence
	for _, p := range pages {
		for _, s := range splitSentences(p.Text) {
			sents = append(sents, sentence{text: s, page: p.Page, tokens: approxTokens(s)})
		}
	}
	if len(sents) == 0 {
		return nil
	}

	var (
		chunks    []Chunk
		buf       []sentence
		tokSum    int
		fresh     int // sentences added since the last overlap seed
		pageStart = -1
	)

	// finalize emits the buffer as a chunk and reseeds it with a trailing
	// overlap whose token sum stays within the overlap budget.
	finalize := func() {
		start := pageStart
		if start < 0 {
			// Chunk is pure overlap; fall back to its first sentence's page.
			start = buf[0].page
		}
		chunks = append(chunks, Chunk{
			Position:   len(chunks),
			Content:    joinSentences(buf),
			PageStart:  start,
			PageEnd:    buf[len(buf)-1].page,
			TokenCount: tokSum,
		})

		var keep []sentence
		keepTok := 0
		for j := len(buf) - 1; j >= 0; j-- {
			t := buf[j].tokens
			if keepTok+t > c.overlapTokens {
				break
			}
			keep = append([]sentence{buf[j]}, keep...)
			keepTok += t
		}
		buf = keep
		tokSum = keepTok
		fresh = 0
		// The recorded page_start of the next chunk is the page of its first
		// post-overlap sentence; overlap sentences may belong to an earlier
		// page. Known approximation, kept as-is.
		pageStart = -1
	}

	for _, s := range sents {
		if tokSum+s.tokens > c.targetTokens && len(buf) > 0 {
			finalize()
		}
		buf = append(buf, s)
		tokSum += s.tokens
		fresh++
		if pageStart < 0 {
			pageStart = s.page
		}
	}
	// Flush the remainder even when below target, but never re-emit a tail
	// that is overlap only.
	if fresh > 0 {
		finalize()
	}

	return chunks
}

func joinSentences(sents []sentence) string {
	parts := make([]string, len(sents))
	for i, s := range sents {
		parts[i] = s.text
	}
	return strings.Join(parts, " ")
}

// splitSentences cuts text at terminal punctuation followed by whitespace
// (or end of text). Runs of terminal punctuation stay with their sentence.
// Whitespace-only fragments are dropped; a trailing fragment without
// terminal punctuation is kept as a final sentence.
func splitSentences(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}
		j := i + 1
		for j < len(runes) && isTerminal(runes[j]) {
			j++
		}
		if j < len(runes) && !unicode.IsSpace(runes[j]) {
			// Mid-token punctuation (e.g. "3.14"); not a boundary.
			i = j - 1
			continue
		}
		if s := strings.TrimSpace(string(runes[start:j])); s != "" {
			out = append(out, s)
		}
		start = j
		i = j - 1
	}
	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		out = append(out, tail)
	}
	return out
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// approxTokens is a cheap token estimator (~4 chars ≈ 1 token), used
// everywhere a token count is needed; never an exact tokenizer.
func approxTokens(s string) int {
	n := len([]rune(s))
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}
