package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// RawDocument is one fetched page. It is transient: consumed by the
// chunking engine and never persisted standalone.
type RawDocument struct {
	// SourceID links to the owning Source.
	SourceID string

	// URL is the page location.
	URL string

	// Content is the raw text or markup returned by the fetcher.
	Content string

	// Title is the page title if the fetcher reports one.
	Title string

	// FetchedAt is when the fetcher retrieved the page.
	FetchedAt time.Time
}

// Chunk is a bounded span of a document's text, the unit of embedding
// and retrieval.
type Chunk struct {
	// ID is a deterministic function of source id, URL, ordinal, and
	// content fingerprint. Re-chunking identical content yields
	// identical IDs, which makes vector-store upserts idempotent.
	ID string

	// SourceID links to the owning Source.
	SourceID string

	// URL is the page the chunk came from.
	URL string

	// Ordinal is the chunk's position within its document, starting at 0.
	Ordinal int

	// TokenCount is the approximate token count of Text. It stays within
	// the configured budget except when a single atomic unit (one code
	// block) exceeds the budget on its own.
	TokenCount int

	// Text is the chunk content.
	Text string

	// Fingerprint is the hash of the whitespace/case-normalized text,
	// used for content-addressed deduplication.
	Fingerprint string
}

// ChunkID derives the deterministic chunk identity.
func ChunkID(sourceID, url string, ordinal int, fingerprint string) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%d|%s", sourceID, url, ordinal, fingerprint))
	return hex.EncodeToString(sum[:16])
}

// ChunkStatus records the per-chunk outcome of an ingestion job.
// Partial success is a first-class outcome: a job can succeed for most
// chunks while individual chunks are marked failed.
type ChunkStatus string

const (
	// ChunkIndexed means the chunk is embedded and its upsert confirmed.
	ChunkIndexed ChunkStatus = "indexed"

	// ChunkSkipped means dedup found the chunk unchanged; no embedding
	// call or vector write happened.
	ChunkSkipped ChunkStatus = "skipped"

	// ChunkFailed means embedding or indexing exhausted its retries.
	ChunkFailed ChunkStatus = "failed"
)
