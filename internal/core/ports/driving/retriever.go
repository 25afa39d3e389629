package driving

import (
	"context"

	"github.com/quarrylabs/quarry/internal/core/domain"
)

// RetrieveOptions tunes one retrieval call. Zero values fall back to
// configured defaults.
type RetrieveOptions struct {
	// TopN is the number of passages to return.
	TopN int

	// Expansions is the number of sub-queries to request from the
	// expander.
	Expansions int

	// CandidatesPerQuery is the k passed to each similarity search.
	CandidatesPerQuery int

	// SourceID restricts the search to one source. Empty searches all.
	SourceID string
}

// Retriever answers questions from the indexed corpus. Consumed by the
// chat/tool layer.
type Retriever interface {
	// Retrieve expands the query, searches concurrently, and returns
	// fused, ranked passages. An empty result means no indexed content
	// cleared the relevance floor - callers must not treat it as an
	// error. An empty query is rejected with domain.ErrInvalidInput.
	Retrieve(ctx context.Context, query string, opts RetrieveOptions) (*domain.RetrievalResult, error)
}

// Catalog lists source summaries so the assistant layer can decide
// whether retrieval is worth invoking.
type Catalog interface {
	// List returns all catalog entries.
	List(ctx context.Context) ([]domain.CatalogEntry, error)
}
