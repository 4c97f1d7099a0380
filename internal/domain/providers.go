package domain

import "context"

// KeyPrefix namespaces every Redis key written by snapmatch.
const KeyPrefix = "snapmatch:"

// Embedder is the shared text vectorization contract between layers.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// Describer produces a natural-language description of an image by URL.
type Describer interface {
	Describe(ctx context.Context, imageURL string) (DescriptionResult, error)
}

// BlobStore persists a binary object and returns a stable retrievable URL.
type BlobStore interface {
	Write(ctx context.Context, name string, data []byte) (string, error)
}

// HealthChecker verifies provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the embedding vector and token usage through the decorator chain.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// DescriptionResult carries the image description and token usage.
type DescriptionResult struct {
	Description  string
	PromptTokens int
	TotalTokens  int
}
