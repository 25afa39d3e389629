package driven

import "context"

// Embedder generates vector embeddings from text.
//
// Implementations wrap rate-limited external APIs. A rate-limit
// rejection surfaces as domain.ErrRateLimited (retryable with backoff);
// input the provider rejects outright surfaces as domain.ErrInvalidInput
// (not retryable, the chunk is marked failed).
type Embedder interface {
	// EmbedBatch generates embeddings for the given texts. The result
	// has the same order and length as the input.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size (e.g., 1536).
	// This must match the VectorIndex configuration.
	Dimensions() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string

	// Close releases resources.
	Close() error
}
