package domain

import (
	"context"
	"errors"
)

// ErrorKind classifies a failure for the job pipeline's stage boundary.
// Only ResourceExhausted and Unclassified failures escalate a job to
// JobFailed; Transient failures are retried and PermanentInput failures
// are recorded and skipped.
type ErrorKind int

const (
	// KindUnclassified is any error the taxonomy does not recognise.
	KindUnclassified ErrorKind = iota

	// KindTransient covers rate limits and timeouts. Retried with backoff.
	KindTransient

	// KindPermanentInput covers malformed content and inputs the
	// external capability rejects outright. Skipped and recorded.
	KindPermanentInput

	// KindResourceExhausted covers spent retry budgets and concurrency
	// caps. Fails the stage.
	KindResourceExhausted

	// KindInconsistent covers invariant violations such as a duplicate
	// active job. Rejected at the call site, never mid-pipeline.
	KindInconsistent
)

// String returns a human-readable name for the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanentInput:
		return "permanent-input"
	case KindResourceExhausted:
		return "resource-exhausted"
	case KindInconsistent:
		return "inconsistent"
	default:
		return "unclassified"
	}
}

// KindOf classifies err against the domain sentinels.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnclassified
	case errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	case errors.Is(err, ErrInvalidInput):
		return KindPermanentInput
	case errors.Is(err, ErrRetryExhausted):
		return KindResourceExhausted
	case errors.Is(err, ErrJobActive), errors.Is(err, ErrAlreadyExists):
		return KindInconsistent
	}

	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		if fetchErr.Retryable() {
			return KindTransient
		}
		return KindPermanentInput
	}

	return KindUnclassified
}

// Retryable reports whether a failure should be retried with backoff.
func Retryable(err error) bool {
	return KindOf(err) == KindTransient
}
