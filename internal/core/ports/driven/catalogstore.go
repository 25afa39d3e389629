package driven

import (
	"context"

	"github.com/quarrylabs/quarry/internal/core/domain"
)

// CatalogStore persists per-source summaries and keyword sets.
// Pure storage with last-write-wins semantics per source id.
type CatalogStore interface {
	// Upsert stores or replaces a catalog entry.
	Upsert(ctx context.Context, entry domain.CatalogEntry) error

	// Get retrieves the entry for a source, or domain.ErrNotFound.
	Get(ctx context.Context, sourceID string) (*domain.CatalogEntry, error)

	// List returns all catalog entries.
	List(ctx context.Context) ([]domain.CatalogEntry, error)

	// Delete removes the entry for a source.
	Delete(ctx context.Context, sourceID string) error
}
