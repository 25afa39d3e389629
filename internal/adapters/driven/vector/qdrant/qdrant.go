// Package qdrant provides a VectorIndex adapter backed by the Qdrant
// REST API. It assumes cosine distance and creates the collection if
// missing.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/quarrylabs/quarry/internal/core/domain"
	"github.com/quarrylabs/quarry/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// Default configuration values.
const (
	DefaultBaseURL    = "http://localhost:6333"
	DefaultCollection = "quarry_chunks"
	DefaultTimeout    = 15 * time.Second
)

// Config holds configuration for the Qdrant index.
type Config struct {
	// BaseURL is the Qdrant REST endpoint (default: http://localhost:6333).
	BaseURL string

	// APIKey authenticates requests. Optional for local instances.
	APIKey string

	// Collection is the collection name (default: quarry_chunks).
	Collection string

	// Dimensions is the vector size (required, must match the embedder).
	Dimensions int

	// Timeout is the per-request timeout (default: 15s).
	Timeout time.Duration
}

// Index stores and searches chunk vectors in Qdrant.
type Index struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	collection string
}

// NewIndex creates the index and ensures the collection exists.
func NewIndex(ctx context.Context, cfg Config) (*Index, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("qdrant: dimensions are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	idx := &Index{
		client:     &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
	}

	// Qdrant returns 200 if the collection already exists with the same
	// schema, so creation is idempotent.
	body := map[string]any{
		"vectors": map[string]any{
			"size":     cfg.Dimensions,
			"distance": "Cosine",
		},
	}
	if err := idx.call(ctx, http.MethodPut, idx.collectionURL(""), body, nil); err != nil {
		return nil, fmt.Errorf("ensure collection: %w", err)
	}
	return idx, nil
}

// pointID converts a 32-hex-char chunk id into the UUID form Qdrant
// accepts as a point id.
func pointID(chunkID string) string {
	if len(chunkID) != 32 {
		return chunkID
	}
	return chunkID[:8] + "-" + chunkID[8:12] + "-" + chunkID[12:16] + "-" + chunkID[16:20] + "-" + chunkID[20:]
}

// Upsert inserts or replaces the vector for a chunk.
func (x *Index) Upsert(ctx context.Context, chunk domain.Chunk, embedding []float32) error {
	body := map[string]any{
		"points": []map[string]any{{
			"id":     pointID(chunk.ID),
			"vector": embedding,
			"payload": map[string]any{
				"chunk_id":  chunk.ID,
				"source_id": chunk.SourceID,
				"url":       chunk.URL,
				"ordinal":   chunk.Ordinal,
				"text":      chunk.Text,
			},
		}},
	}
	if err := x.call(ctx, http.MethodPut, x.collectionURL("/points?wait=true"), body, nil); err != nil {
		return fmt.Errorf("upsert chunk %s: %w", chunk.ID, err)
	}
	return nil
}

// Delete removes individual chunks from the index.
func (x *Index) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	ids := make([]string, len(chunkIDs))
	for i, id := range chunkIDs {
		ids[i] = pointID(id)
	}
	body := map[string]any{"points": ids}
	if err := x.call(ctx, http.MethodPost, x.collectionURL("/points/delete?wait=true"), body, nil); err != nil {
		return fmt.Errorf("delete %d chunks: %w", len(chunkIDs), err)
	}
	return nil
}

// DeleteBySource removes every chunk owned by a source.
func (x *Index) DeleteBySource(ctx context.Context, sourceID string) error {
	body := map[string]any{"filter": sourceFilter(sourceID)}
	if err := x.call(ctx, http.MethodPost, x.collectionURL("/points/delete?wait=true"), body, nil); err != nil {
		return fmt.Errorf("delete source %s: %w", sourceID, err)
	}
	return nil
}

// Query finds the k nearest chunks to the query vector.
func (x *Index) Query(ctx context.Context, embedding []float32, k int, sourceID string) ([]driven.VectorHit, error) {
	if k <= 0 {
		k = 10
	}
	body := map[string]any{
		"vector":       embedding,
		"limit":        k,
		"with_payload": true,
	}
	if sourceID != "" {
		body["filter"] = sourceFilter(sourceID)
	}

	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := x.call(ctx, http.MethodPost, x.collectionURL("/points/search"), body, &resp); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	hits := make([]driven.VectorHit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hit := driven.VectorHit{Score: r.Score}
		if v, ok := r.Payload["chunk_id"].(string); ok {
			hit.ChunkID = v
		}
		if v, ok := r.Payload["source_id"].(string); ok {
			hit.SourceID = v
		}
		if v, ok := r.Payload["url"].(string); ok {
			hit.URL = v
		}
		if v, ok := r.Payload["ordinal"].(float64); ok {
			hit.Ordinal = int(v)
		}
		if v, ok := r.Payload["text"].(string); ok {
			hit.Text = v
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Close releases resources.
func (x *Index) Close() error {
	// HTTP client doesn't need explicit cleanup
	return nil
}

func sourceFilter(sourceID string) map[string]any {
	return map[string]any{
		"must": []map[string]any{{
			"key":   "source_id",
			"match": map[string]any{"value": sourceID},
		}},
	}
}

func (x *Index) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", x.baseURL, x.collection, suffix)
}

// call issues one JSON request and decodes the response into out when
// it is non-nil.
func (x *Index) call(ctx context.Context, method, url string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if x.apiKey != "" {
		req.Header.Set("api-key", x.apiKey)
	}

	resp, err := x.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("qdrant %s %s: %w", method, url, domain.ErrTimeout)
		}
		return fmt.Errorf("qdrant %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		respBody, _ := io.ReadAll(resp.Body)
		if resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("qdrant %s failed: %s: %w", method, string(respBody), domain.ErrRateLimited)
		}
		return fmt.Errorf("qdrant %s failed (status %d): %s", method, resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
