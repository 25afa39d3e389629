package services

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/quarrylabs/quarry/internal/core/domain"
	"github.com/quarrylabs/quarry/internal/core/ports/driven"
)

const (
	// DefaultBatchSize caps chunks per embedding request.
	DefaultBatchSize = 32

	// DefaultBatchTokenBudget caps total tokens per embedding request.
	DefaultBatchTokenBudget = 8000

	// embedAttempts is the per-batch retry budget for transient errors.
	embedAttempts = 3
)

// EmbedResult carries the outcome of embedding one chunk. A failed
// chunk has a nil Vector and a non-nil Err; the rest of the batch is
// unaffected.
type EmbedResult struct {
	Chunk  domain.Chunk
	Vector []float32
	Err    error
}

// Batcher splits chunks into size- and token-bounded sub-batches and
// embeds them concurrently through the embed gate. A sub-batch that
// fails permanently marks only its own chunks failed.
type Batcher struct {
	embedder    driven.Embedder
	gate        *Gate
	backoff     Backoff
	batchSize   int
	tokenBudget int
	fanOut      int
}

// NewBatcher creates a batcher. A nil gate disables gating.
func NewBatcher(embedder driven.Embedder, gate *Gate) *Batcher {
	return &Batcher{
		embedder:    embedder,
		gate:        gate,
		backoff:     DefaultBackoff,
		batchSize:   DefaultBatchSize,
		tokenBudget: DefaultBatchTokenBudget,
		fanOut:      4,
	}
}

// EmbedAll embeds every chunk and returns one result per input, in
// input order. It returns an error only when the whole operation is
// aborted, e.g. by context cancellation.
func (b *Batcher) EmbedAll(ctx context.Context, chunks []domain.Chunk) ([]EmbedResult, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	batches := b.split(chunks)
	results := make([]EmbedResult, len(chunks))

	sem := semaphore.NewWeighted(int64(b.fanOut))
	var wg sync.WaitGroup

	for _, batch := range batches {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		wg.Add(1)
		go func(bt chunkBatch) {
			defer wg.Done()
			defer sem.Release(1)
			b.embedBatch(ctx, bt, results)
		}(batch)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// chunkBatch is a contiguous slice of the input with its start offset.
type chunkBatch struct {
	offset int
	chunks []domain.Chunk
}

// split cuts chunks into batches bounded by both count and token budget.
// A single chunk over the token budget still ships alone.
func (b *Batcher) split(chunks []domain.Chunk) []chunkBatch {
	var batches []chunkBatch

	start := 0
	tokens := 0
	for i, c := range chunks {
		if i > start && (i-start >= b.batchSize || tokens+c.TokenCount > b.tokenBudget) {
			batches = append(batches, chunkBatch{offset: start, chunks: chunks[start:i]})
			start = i
			tokens = 0
		}
		tokens += c.TokenCount
	}
	batches = append(batches, chunkBatch{offset: start, chunks: chunks[start:]})

	return batches
}

// embedBatch embeds one sub-batch, retrying transient errors, and
// writes the outcomes into results at the batch's offset.
func (b *Batcher) embedBatch(ctx context.Context, bt chunkBatch, results []EmbedResult) {
	texts := make([]string, len(bt.chunks))
	for i, c := range bt.chunks {
		texts[i] = c.Text
	}

	vectors, err := b.callWithRetry(ctx, texts)
	for i, c := range bt.chunks {
		r := EmbedResult{Chunk: c}
		if err != nil {
			r.Err = err
		} else {
			r.Vector = vectors[i]
		}
		results[bt.offset+i] = r
	}
}

func (b *Batcher) callWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt < embedAttempts; attempt++ {
		if attempt > 0 {
			if err := b.backoff.Sleep(ctx, attempt); err != nil {
				return nil, err
			}
		}

		vectors, err := b.call(ctx, texts)
		if err == nil {
			if len(vectors) != len(texts) {
				return nil, fmt.Errorf("embed batch: got %d vectors for %d texts", len(vectors), len(texts))
			}
			return vectors, nil
		}
		if !domain.Retryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("embed batch: %w: %w", domain.ErrRetryExhausted, lastErr)
}

func (b *Batcher) call(ctx context.Context, texts []string) ([][]float32, error) {
	if b.gate == nil {
		return b.embedder.EmbedBatch(ctx, texts)
	}

	var vectors [][]float32
	err := b.gate.Do(ctx, func(ctx context.Context) error {
		var callErr error
		vectors, callErr = b.embedder.EmbedBatch(ctx, texts)
		return callErr
	})
	return vectors, err
}
