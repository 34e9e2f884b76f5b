// Package embedding provides text embedding via a local Ollama endpoint.
package embedding

import "context"

// Embedder produces vector embeddings for text.
type Embedder interface {
	// Warmup forces the model into memory before the first real call.
	Warmup(ctx context.Context) error
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Model returns the model name stored alongside generated vectors.
	Model() string
}
