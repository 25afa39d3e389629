package driven

import (
	"context"

	"github.com/quarrylabs/quarry/internal/core/domain"
)

// FingerprintRecord maps a chunk's logical identity (source, page,
// ordinal) to the chunk id and content fingerprint last indexed for it.
type FingerprintRecord struct {
	SourceID    string
	URL         string
	Ordinal     int
	ChunkID     string
	Fingerprint string
}

// FingerprintStore owns fingerprint-to-chunk mappings and is the source
// of truth for "does this content already exist". Records are keyed per
// source id so deleting a source is a bounded operation.
type FingerprintStore interface {
	// Get retrieves the record for a logical chunk position, or
	// domain.ErrNotFound.
	Get(ctx context.Context, sourceID, url string, ordinal int) (*FingerprintRecord, error)

	// Save stores or replaces a record.
	Save(ctx context.Context, rec FingerprintRecord) error

	// ListBySource returns all records for a source.
	ListBySource(ctx context.Context, sourceID string) ([]FingerprintRecord, error)

	// Delete removes the record for one logical chunk position. Missing
	// records are not an error.
	Delete(ctx context.Context, sourceID, url string, ordinal int) error

	// DeleteBySource removes all records for a source.
	DeleteBySource(ctx context.Context, sourceID string) error
}

// ChunkResolution is the dedup decision for one chunk.
type ChunkResolution int

const (
	// ResolutionNew means no prior content exists at this position.
	ResolutionNew ChunkResolution = iota

	// ResolutionUnchanged means identical content is already indexed;
	// the chunk is skipped for embedding and indexing.
	ResolutionUnchanged

	// ResolutionChanged means the position holds different content; the
	// new chunk replaces the prior vector-store entry.
	ResolutionChanged
)

// String returns a human-readable name for the resolution.
func (r ChunkResolution) String() string {
	switch r {
	case ResolutionUnchanged:
		return "unchanged"
	case ResolutionChanged:
		return "changed"
	default:
		return "new"
	}
}

// Resolve compares a chunk against the record previously indexed at its
// logical position. A nil prev means the chunk is new. For changed
// chunks the returned previous chunk id identifies the stale
// vector-store entry to delete after the new upsert commits.
func Resolve(prev *FingerprintRecord, chunk domain.Chunk) (ChunkResolution, string) {
	switch {
	case prev == nil:
		return ResolutionNew, ""
	case prev.Fingerprint == chunk.Fingerprint:
		return ResolutionUnchanged, prev.ChunkID
	default:
		return ResolutionChanged, prev.ChunkID
	}
}
