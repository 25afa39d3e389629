package driving

import (
	"context"

	"github.com/quarrylabs/quarry/internal/core/domain"
)

// Ingestor owns the ingestion job lifecycle: enqueueing sources,
// reporting job status, cancelling, and deleting sources.
type Ingestor interface {
	// Enqueue registers the source (creating it if new) and queues an
	// ingestion job for it. If an active job already exists for the
	// source, the existing job's id is returned instead of a second job
	// being queued.
	Enqueue(ctx context.Context, rawURL string, crawl domain.CrawlConfig) (jobID string, err error)

	// Job returns the state, attempt count and last error of a job.
	Job(ctx context.Context, jobID string) (*domain.IngestionJob, error)

	// Jobs lists all jobs, newest first.
	Jobs(ctx context.Context) ([]domain.IngestionJob, error)

	// Cancel requests cancellation. Honoured only while the job is
	// queued or fetching; afterwards the request is accepted but the
	// job runs to a terminal state.
	Cancel(ctx context.Context, jobID string) error

	// Sources lists all registered sources.
	Sources(ctx context.Context) ([]domain.Source, error)

	// DeleteSource removes a source and everything it owns: vectors,
	// fingerprints, catalog entry, and the source record itself.
	DeleteSource(ctx context.Context, sourceID string) error
}
