package domain

import (
	"net/url"
	"strings"
	"time"
)

// SourceStatus describes where a source is in its ingestion lifecycle.
type SourceStatus string

const (
	// SourceStatusPending means the source was created but no job has
	// completed for it yet.
	SourceStatusPending SourceStatus = "pending"

	// SourceStatusProcessing means an ingestion job is running.
	SourceStatusProcessing SourceStatus = "processing"

	// SourceStatusCompleted means the latest ingestion job succeeded.
	SourceStatusCompleted SourceStatus = "completed"

	// SourceStatusFailed means the latest ingestion job failed.
	SourceStatusFailed SourceStatus = "failed"
)

// Source represents a web origin that has been registered for ingestion.
// A source owns the documents crawled from it, the chunks produced from
// those documents, and its catalog summary.
type Source struct {
	// ID is the canonicalized root URL. It is the identity used by the
	// fingerprint index, the vector index metadata, and the job queue's
	// one-active-job-per-source invariant.
	ID string

	// URL is the root URL as the user supplied it.
	URL string

	// Status is the ingestion lifecycle state.
	Status SourceStatus

	// DiscoveredURLs lists the page URLs found by the last crawl.
	DiscoveredURLs []string

	// ContentVersion changes whenever any chunk of the source changes.
	// Unchanged re-ingestion leaves it untouched.
	ContentVersion string

	// Crawl configures how the fetcher walks this source.
	Crawl CrawlConfig

	// LastIngested is when the last ingestion job reached a terminal
	// success for this source.
	LastIngested time.Time

	// CreatedAt is when the source was first registered.
	CreatedAt time.Time

	// UpdatedAt is when the source record was last written.
	UpdatedAt time.Time
}

// CrawlConfig bounds a crawl of one source.
type CrawlConfig struct {
	// PageLimit caps the number of pages fetched. Zero means the
	// fetcher default.
	PageLimit int

	// MaxDepth caps link-follow depth from the root. Zero means the
	// fetcher default.
	MaxDepth int

	// IncludePatterns restricts crawling to matching paths, e.g. "/docs/*".
	IncludePatterns []string

	// ExcludePatterns skips matching paths, e.g. "/blog/*".
	ExcludePatterns []string
}

// CanonicalSourceID normalizes a root URL into a stable source identity.
// Scheme and host are lowercased, default ports and fragments dropped,
// and the path loses its trailing slash. Returns ErrInvalidInput for
// anything that is not an absolute http(s) URL.
func CanonicalSourceID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidInput
	}

	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ErrInvalidInput
	}

	u.Fragment = ""
	u.RawQuery = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	switch {
	case u.Scheme == "http" && strings.HasSuffix(u.Host, ":80"):
		u.Host = strings.TrimSuffix(u.Host, ":80")
	case u.Scheme == "https" && strings.HasSuffix(u.Host, ":443"):
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Path = strings.TrimSuffix(u.Path, "/")

	return u.String(), nil
}
