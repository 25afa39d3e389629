package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quarrylabs/quarry/internal/core/domain"
	"github.com/quarrylabs/quarry/internal/core/ports/driven"
	"github.com/quarrylabs/quarry/internal/core/ports/driving"
	"github.com/quarrylabs/quarry/internal/logger"
)

// QueueConfig tunes the job queue.
type QueueConfig struct {
	// Workers is the number of concurrent job runners.
	Workers int

	// Depth is the pending channel capacity. Enqueue past this depth
	// blocks until a worker drains.
	Depth int
}

// DefaultQueueConfig returns sensible local defaults.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{Workers: 2, Depth: 64}
}

// JobQueue owns the ingestion job lifecycle. It enforces the
// one-active-job-per-source invariant through an in-memory lease arena
// re-derived from the job store at startup, and hands queued jobs to a
// fixed pool of workers running the pipeline.
type JobQueue struct {
	cfg      QueueConfig
	pipeline *Pipeline
	sources  driven.SourceStore
	jobs     driven.JobStore
	vectors  driven.VectorIndex
	fprints  driven.FingerprintStore
	catalog  driven.CatalogStore

	leases  *leaseArena
	pending chan string

	mu      sync.Mutex
	cancels map[string]context.CancelFunc // jobID -> cancel for running jobs

	wg       sync.WaitGroup
	shutdown context.CancelFunc
	now      func() time.Time
}

var _ driving.Ingestor = (*JobQueue)(nil)

// NewJobQueue creates a stopped queue. Call Start before enqueueing.
func NewJobQueue(cfg QueueConfig, pipeline *Pipeline) *JobQueue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Depth <= 0 {
		cfg.Depth = 64
	}

	return &JobQueue{
		cfg:      cfg,
		pipeline: pipeline,
		sources:  pipeline.sources,
		jobs:     pipeline.jobs,
		vectors:  pipeline.vectors,
		fprints:  pipeline.fingerprints,
		catalog:  pipeline.catalog,
		leases:   newLeaseArena(),
		pending:  make(chan string, cfg.Depth),
		cancels:  make(map[string]context.CancelFunc),
		now:      time.Now,
	}
}

// Start recovers state from the job store and launches the workers.
// Jobs that were mid-flight when the previous process died are marked
// failed; jobs still queued are re-enqueued.
func (q *JobQueue) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	q.shutdown = cancel

	stored, err := q.jobs.List(ctx)
	if err != nil {
		return fmt.Errorf("recover jobs: %w", err)
	}

	// Workers go first so recovery can re-enqueue more queued jobs than
	// the pending channel holds without blocking startup.
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(runCtx)
	}
	logger.Debug("queue: started %d workers", q.cfg.Workers)

	for i := range stored {
		job := stored[i]
		if job.State.Terminal() {
			continue
		}
		if job.State == domain.JobQueued {
			if ok, _ := q.leases.Acquire(job.SourceID, job.ID); ok {
				q.pending <- job.ID
				logger.Debug("queue: recovered queued job %s", job.ID)
			}
			continue
		}
		// Mid-flight when the process died. Upserts are idempotent by
		// chunk id, so a fresh run is safe; mark this one failed.
		job.LastError = "interrupted by shutdown"
		job.Transition(domain.JobFailed, q.now())
		if err := q.jobs.Save(ctx, job); err != nil {
			return fmt.Errorf("recover job %s: %w", job.ID, err)
		}
		logger.Warn("queue: job %s was interrupted, marked failed", job.ID)
	}
	return nil
}

// Stop cancels running jobs and waits for the workers to drain.
func (q *JobQueue) Stop() {
	if q.shutdown != nil {
		q.shutdown()
	}
	close(q.pending)
	q.wg.Wait()
}

// Enqueue registers the source if needed and queues an ingestion job.
// A source with an active job gets the existing job's id back.
func (q *JobQueue) Enqueue(ctx context.Context, rawURL string, crawl domain.CrawlConfig) (string, error) {
	sourceID, err := domain.CanonicalSourceID(rawURL)
	if err != nil {
		return "", fmt.Errorf("canonicalize %q: %w", rawURL, err)
	}

	jobID := uuid.NewString()
	ok, holder := q.leases.Acquire(sourceID, jobID)
	if !ok {
		logger.Debug("enqueue %s: returning active job %s", sourceID, holder)
		return holder, nil
	}

	source, err := q.sources.Get(ctx, sourceID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		now := q.now()
		source = &domain.Source{
			ID:        sourceID,
			URL:       rawURL,
			Status:    domain.SourceStatusPending,
			Crawl:     crawl,
			CreatedAt: now,
			UpdatedAt: now,
		}
	case err != nil:
		q.leases.Release(sourceID, jobID)
		return "", fmt.Errorf("load source: %w", err)
	default:
		source.Crawl = crawl
		source.UpdatedAt = q.now()
	}

	if err := q.sources.Save(ctx, *source); err != nil {
		q.leases.Release(sourceID, jobID)
		return "", fmt.Errorf("save source: %w", err)
	}

	job := domain.IngestionJob{
		ID:         jobID,
		SourceID:   sourceID,
		State:      domain.JobQueued,
		EnqueuedAt: q.now(),
		Transitions: []domain.JobTransition{
			{State: domain.JobQueued, At: q.now()},
		},
	}
	if err := q.jobs.Save(ctx, job); err != nil {
		q.leases.Release(sourceID, jobID)
		return "", fmt.Errorf("save job: %w", err)
	}

	select {
	case q.pending <- jobID:
	case <-ctx.Done():
		q.leases.Release(sourceID, jobID)
		return "", ctx.Err()
	}

	logger.Info("queued ingestion of %s (job %s)", sourceID, jobID)
	return jobID, nil
}

// Job returns a job by id.
func (q *JobQueue) Job(ctx context.Context, jobID string) (*domain.IngestionJob, error) {
	return q.jobs.Get(ctx, jobID)
}

// Jobs lists all jobs, newest first.
func (q *JobQueue) Jobs(ctx context.Context) ([]domain.IngestionJob, error) {
	return q.jobs.List(ctx)
}

// Cancel requests cancellation of a job. While the job is queued or
// fetching its context is cancelled immediately; past that window the
// request is recorded and the job runs to a terminal state. A terminal
// job returns domain.ErrJobNotCancellable.
func (q *JobQueue) Cancel(ctx context.Context, jobID string) error {
	job, err := q.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.State.Terminal() {
		return fmt.Errorf("job %s is %s: %w", jobID, job.State, domain.ErrJobNotCancellable)
	}

	job.CancelRequested = true
	if err := q.jobs.Save(ctx, *job); err != nil {
		return fmt.Errorf("save job: %w", err)
	}

	if !job.State.Cancellable() {
		logger.Info("cancellation recorded for job %s (state %s, will run to completion)", jobID, job.State)
		return nil
	}

	// The job may advance past the window between the state read and
	// this call; the pipeline detaches from its context after the crawl,
	// so a late cancel is a no-op.
	q.mu.Lock()
	cancel, running := q.cancels[jobID]
	q.mu.Unlock()
	if running {
		cancel()
	}
	logger.Info("cancellation requested for job %s", jobID)
	return nil
}

// Sources lists all registered sources.
func (q *JobQueue) Sources(ctx context.Context) ([]domain.Source, error) {
	sources, err := q.sources.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return sources, nil
}

// DeleteSource removes a source and everything it owns. Refused while
// an ingestion job for the source is running.
func (q *JobQueue) DeleteSource(ctx context.Context, sourceID string) error {
	if holder, held := q.leases.Holder(sourceID); held {
		return fmt.Errorf("source %s has active job %s: %w", sourceID, holder, domain.ErrJobActive)
	}

	if _, err := q.sources.Get(ctx, sourceID); err != nil {
		return err
	}

	if err := q.vectors.DeleteBySource(ctx, sourceID); err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	if err := q.fprints.DeleteBySource(ctx, sourceID); err != nil {
		return fmt.Errorf("delete fingerprints: %w", err)
	}
	if err := q.catalog.Delete(ctx, sourceID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("delete catalog entry: %w", err)
	}
	if err := q.sources.Delete(ctx, sourceID); err != nil {
		return fmt.Errorf("delete source: %w", err)
	}

	logger.Info("deleted source %s", sourceID)
	return nil
}

func (q *JobQueue) worker(ctx context.Context) {
	defer q.wg.Done()

	for jobID := range q.pending {
		if ctx.Err() != nil {
			return
		}
		q.run(ctx, jobID)
	}
}

func (q *JobQueue) run(ctx context.Context, jobID string) {
	job, err := q.jobs.Get(ctx, jobID)
	if err != nil {
		logger.Warn("queue: load job %s: %v", jobID, err)
		return
	}
	defer q.leases.Release(job.SourceID, job.ID)

	if job.CancelRequested {
		job.Transition(domain.JobCancelled, q.now())
		if err := q.jobs.Save(ctx, *job); err != nil {
			logger.Warn("queue: save cancelled job %s: %v", jobID, err)
		}
		return
	}

	jobCtx, cancel := context.WithCancel(ctx)
	q.mu.Lock()
	q.cancels[jobID] = cancel
	q.mu.Unlock()
	defer func() {
		cancel()
		q.mu.Lock()
		delete(q.cancels, jobID)
		q.mu.Unlock()
	}()

	q.pipeline.Run(jobCtx, job)
}
