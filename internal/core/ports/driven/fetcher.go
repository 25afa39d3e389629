package driven

import (
	"context"

	"github.com/quarrylabs/quarry/internal/core/domain"
)

// Fetcher wraps an external crawling capability. Given a source, it
// returns the set of pages discovered under the source's root URL.
//
// All failures surface as a *domain.FetchError carrying a reason code
// (unreachable, timeout, disallowed) so the pipeline can decide whether
// a retry is worthwhile.
type Fetcher interface {
	// Fetch crawls the source and returns its raw documents.
	// The crawl respects the source's CrawlConfig bounds.
	Fetch(ctx context.Context, source domain.Source) ([]domain.RawDocument, error)
}
