// Package memory provides an in-memory VectorIndex with exact cosine
// similarity search. Intended for local use and tests; the index is
// lost on process exit.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/quarrylabs/quarry/internal/core/domain"
	"github.com/quarrylabs/quarry/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// Index stores chunk vectors in memory.
type Index struct {
	mu     sync.RWMutex
	points map[string]point
}

type point struct {
	chunk  domain.Chunk
	vector []float32
}

// NewIndex creates an empty in-memory index.
func NewIndex() *Index {
	return &Index{points: make(map[string]point)}
}

// Upsert inserts or replaces the vector for a chunk.
func (x *Index) Upsert(_ context.Context, chunk domain.Chunk, embedding []float32) error {
	vec := make([]float32, len(embedding))
	copy(vec, embedding)

	x.mu.Lock()
	defer x.mu.Unlock()
	x.points[chunk.ID] = point{chunk: chunk, vector: vec}
	return nil
}

// Delete removes individual chunks from the index.
func (x *Index) Delete(_ context.Context, chunkIDs []string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, id := range chunkIDs {
		delete(x.points, id)
	}
	return nil
}

// DeleteBySource removes every chunk owned by a source.
func (x *Index) DeleteBySource(_ context.Context, sourceID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	for id, p := range x.points {
		if p.chunk.SourceID == sourceID {
			delete(x.points, id)
		}
	}
	return nil
}

// Query finds the k nearest chunks by cosine similarity.
func (x *Index) Query(_ context.Context, embedding []float32, k int, sourceID string) ([]driven.VectorHit, error) {
	if k <= 0 {
		k = 10
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	hits := make([]driven.VectorHit, 0, len(x.points))
	for _, p := range x.points {
		if sourceID != "" && p.chunk.SourceID != sourceID {
			continue
		}
		hits = append(hits, driven.VectorHit{
			ChunkID:  p.chunk.ID,
			Score:    cosine(embedding, p.vector),
			Text:     p.chunk.Text,
			SourceID: p.chunk.SourceID,
			URL:      p.chunk.URL,
			Ordinal:  p.chunk.Ordinal,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Close releases resources.
func (x *Index) Close() error {
	return nil
}

// Len returns the number of stored vectors.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.points)
}

// cosine computes cosine similarity. Mismatched or zero-length vectors
// score zero.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
