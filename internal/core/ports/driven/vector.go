package driven

import (
	"context"

	"github.com/quarrylabs/quarry/internal/core/domain"
)

// VectorIndex wraps an external vector store.
//
// The store is treated as eventually consistent: a query immediately
// following an upsert may or may not reflect it. The job queue does not
// complete an ingestion job until every upsert has been confirmed, so
// job completion implies visibility.
type VectorIndex interface {
	// Upsert inserts or replaces the vector for a chunk. Upserts are
	// idempotent by chunk ID.
	Upsert(ctx context.Context, chunk domain.Chunk, embedding []float32) error

	// Delete removes individual chunks from the index.
	Delete(ctx context.Context, chunkIDs []string) error

	// DeleteBySource removes every chunk owned by a source.
	DeleteBySource(ctx context.Context, sourceID string) error

	// Query finds the k nearest chunks to the query vector, ordered by
	// descending similarity. An empty sourceID searches all sources.
	Query(ctx context.Context, embedding []float32, k int, sourceID string) ([]VectorHit, error)

	// Close releases resources.
	Close() error
}

// VectorHit is a similarity search result.
type VectorHit struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// Score is the similarity score, higher is more similar.
	Score float64

	// Text, SourceID, URL and Ordinal are the chunk metadata stored
	// alongside the vector.
	Text     string
	SourceID string
	URL      string
	Ordinal  int
}
