package llm

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/paperlens-ai/paperlens/internal/core"
)

var _ core.EmbeddingProvider = (*GeminiEmbedder)(nil)

// embedBatchSize is the number of texts sent per request. Batches are issued
// sequentially and results concatenated in input order.
const embedBatchSize = 20

type GeminiEmbedder struct {
	client    *genai.Client
	modelName string
	dim       int
}

func NewGeminiEmbedder(ctx context.Context, apiKey, modelName string, dim int) (*GeminiEmbedder, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "text-embedding-004"
	}
	if dim <= 0 {
		dim = 768
	}
	return &GeminiEmbedder{client: cl, modelName: modelName, dim: dim}, nil
}

func (g *GeminiEmbedder) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// EmbedTexts embeds all texts in fixed-size batches and returns vectors
// index-aligned with the input. The task hint selects document vs. query
// embedding; it never changes dimensionality or batching. Non-success
// responses surface as *core.EmbeddingServiceError and are not retried here.
func (g *GeminiEmbedder) EmbedTexts(ctx context.Context, texts []string, task core.EmbedTask) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	em := g.client.EmbeddingModel(g.modelName)
	switch task {
	case core.EmbedTaskQuery:
		em.TaskType = genai.TaskTypeRetrievalQuery
	default:
		em.TaskType = genai.TaskTypeRetrievalDocument
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := em.NewBatch()
		for _, t := range texts[start:end] {
			batch.AddContent(genai.Text(t))
		}

		resp, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, wrapEmbedErr(err)
		}
		if len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("gemini batch embed: got %d vectors for %d texts", len(resp.Embeddings), end-start)
		}
		for _, e := range resp.Embeddings {
			if len(e.Values) != g.dim {
				return nil, fmt.Errorf("gemini batch embed: unexpected dimension %d (want %d)", len(e.Values), g.dim)
			}
			out = append(out, e.Values)
		}
	}
	return out, nil
}

// wrapEmbedErr lifts the HTTP status and body out of a googleapi error so the
// caller sees a typed service error.
func wrapEmbedErr(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &core.EmbeddingServiceError{StatusCode: gerr.Code, Body: gerr.Body, Err: err}
	}
	return &core.EmbeddingServiceError{Body: err.Error(), Err: err}
}
