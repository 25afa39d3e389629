package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	// Not retryable: embedding a chunk that the provider rejects,
	// or retrieving with an empty query, surfaces this error.
	ErrInvalidInput = errors.New("invalid input")

	// ErrJobActive indicates an ingestion job for the source is already
	// running. Enqueue returns the existing job instead of a second one.
	ErrJobActive = errors.New("ingestion job already active for source")

	// ErrJobNotCancellable indicates the job has progressed past the
	// point where cancellation is honoured (embedding/indexing writes
	// have begun).
	ErrJobNotCancellable = errors.New("job no longer cancellable")

	// ErrRateLimited indicates an external capability rejected a call
	// due to rate limiting. Retryable with backoff.
	ErrRateLimited = errors.New("rate limited")

	// ErrTimeout indicates an external call exceeded its deadline.
	// Retryable with backoff.
	ErrTimeout = errors.New("timeout")

	// ErrRetryExhausted indicates the retry budget for a stage or
	// sub-batch was spent without success.
	ErrRetryExhausted = errors.New("retry budget exhausted")

	// ErrEmbedderUnavailable indicates the embedding capability is not
	// configured. Ingestion cannot run without it.
	ErrEmbedderUnavailable = errors.New("embedding service unavailable")

	// ErrVectorIndexUnavailable indicates the vector store capability is
	// not configured.
	ErrVectorIndexUnavailable = errors.New("vector index unavailable")
)

// Fetch failure reason codes. All crawler failures surface as a
// FetchError carrying one of these reasons.
const (
	FetchReasonUnreachable = "unreachable"
	FetchReasonTimeout     = "timeout"
	FetchReasonDisallowed  = "disallowed"
)

// FetchError is returned by the Fetcher capability when a crawl fails.
// The Reason distinguishes unreachable hosts, timeouts, and
// policy-disallowed sources without multiplying error types.
type FetchError struct {
	Source string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s failed (%s): %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("fetch %s failed (%s)", e.Source, e.Reason)
}

// Unwrap returns the underlying cause.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the fetch failure is worth retrying.
// Policy-disallowed sources never succeed on retry.
func (e *FetchError) Retryable() bool {
	return e.Reason != FetchReasonDisallowed
}
