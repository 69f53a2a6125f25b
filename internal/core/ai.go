package core

import "context"

// EmbedTask tells the embedding service what the vectors will be used for.
// It affects only the request's task hint, not dimensionality or batching.
type EmbedTask string

const (
	EmbedTaskDocument EmbedTask = "document"
	EmbedTaskQuery    EmbedTask = "query"
)

type EmbeddingProvider interface {
	// EmbedTexts returns one fixed-dimension vector per input text,
	// index-aligned with the input.
	EmbedTexts(ctx context.Context, texts []string, task EmbedTask) ([][]float32, error)
}

// GenerateOptions tunes a single generation call.
type GenerateOptions struct {
	Temperature     float32
	MaxOutputTokens int32
	JSONMode        bool
}

type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string, opts GenerateOptions) (string, error)
}
