package driven

import (
	"context"

	"github.com/quarrylabs/quarry/internal/core/domain"
)

// JobStore persists ingestion jobs. The job queue is the only writer;
// the store exists so job state survives process restarts and the
// one-active-job-per-source lease can be re-derived at startup.
type JobStore interface {
	// Save stores or updates a job.
	Save(ctx context.Context, job domain.IngestionJob) error

	// Get retrieves a job by ID.
	Get(ctx context.Context, id string) (*domain.IngestionJob, error)

	// ActiveForSource returns the non-terminal job for a source, or
	// domain.ErrNotFound if none exists.
	ActiveForSource(ctx context.Context, sourceID string) (*domain.IngestionJob, error)

	// List returns all jobs, newest first.
	List(ctx context.Context) ([]domain.IngestionJob, error)
}
