package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/quarrylabs/quarry/internal/chunker"
	"github.com/quarrylabs/quarry/internal/core/domain"
	"github.com/quarrylabs/quarry/internal/core/ports/driven"
	"github.com/quarrylabs/quarry/internal/logger"
)

const (
	// DefaultStageRetries is the retry budget per pipeline stage.
	DefaultStageRetries = 3

	// summarySampleSize is how many chunk texts are handed to the
	// summarizer after indexing.
	summarySampleSize = 8

	// indexFanOut bounds concurrent vector upserts per job.
	indexFanOut = 8
)

// Pipeline executes one ingestion job end to end: fetch, chunk, dedup,
// embed, index, summarize. It owns every state transition of the job it
// runs and persists the job after each one.
type Pipeline struct {
	fetcher      driven.Fetcher
	engine       *chunker.Engine
	batcher      *Batcher
	vectors      driven.VectorIndex
	summarizer   driven.Summarizer
	sources      driven.SourceStore
	jobs         driven.JobStore
	fingerprints driven.FingerprintStore
	catalog      driven.CatalogStore
	gates        *Gates
	backoff      Backoff
	stageRetries int
	now          func() time.Time
}

// PipelineDeps wires a pipeline. Summarizer may be nil; a local
// keyword-based fallback is used instead.
type PipelineDeps struct {
	Fetcher      driven.Fetcher
	Engine       *chunker.Engine
	Embedder     driven.Embedder
	Vectors      driven.VectorIndex
	Summarizer   driven.Summarizer
	Sources      driven.SourceStore
	Jobs         driven.JobStore
	Fingerprints driven.FingerprintStore
	Catalog      driven.CatalogStore
	Gates        *Gates
	StageRetries int
}

// NewPipeline creates a pipeline from its dependencies.
func NewPipeline(deps PipelineDeps) *Pipeline {
	if deps.Engine == nil {
		deps.Engine = chunker.New()
	}
	if deps.Gates == nil {
		deps.Gates = DefaultGates()
	}
	if deps.StageRetries <= 0 {
		deps.StageRetries = DefaultStageRetries
	}

	return &Pipeline{
		fetcher:      deps.Fetcher,
		engine:       deps.Engine,
		batcher:      NewBatcher(deps.Embedder, deps.Gates.Embed),
		vectors:      deps.Vectors,
		summarizer:   deps.Summarizer,
		sources:      deps.Sources,
		jobs:         deps.Jobs,
		fingerprints: deps.Fingerprints,
		catalog:      deps.Catalog,
		gates:        deps.Gates,
		backoff:      DefaultBackoff,
		stageRetries: deps.StageRetries,
		now:          time.Now,
	}
}

// Run drives the job to a terminal state. The context is cancelled by
// the queue while the job is still in its cancellable window; after
// that the job runs to completion regardless of pending cancellation
// requests.
func (p *Pipeline) Run(ctx context.Context, job *domain.IngestionJob) {
	source, err := p.sources.Get(ctx, job.SourceID)
	if err != nil {
		p.fail(job, fmt.Errorf("load source: %w", err))
		return
	}

	job.StartedAt = p.now()
	source.Status = domain.SourceStatusProcessing
	source.UpdatedAt = p.now()
	if err := p.sources.Save(ctx, *source); err != nil {
		p.fail(job, fmt.Errorf("save source: %w", err))
		return
	}

	// Fetch.
	p.transition(job, domain.JobFetching)
	docs, err := p.fetch(ctx, job, *source)
	if err != nil {
		p.terminate(job, source, err)
		return
	}
	logger.Debug("job %s: fetched %d pages from %s", job.ID, len(docs), source.ID)

	// The cancellable window closes with the crawl. Detach from the
	// queue's cancellation so a late Cancel cannot abort a job that has
	// started writing.
	ctx = context.WithoutCancel(ctx)

	// Chunk and dedup.
	p.transition(job, domain.JobChunking)
	plan, err := p.chunkAndResolve(ctx, docs)
	if err != nil {
		p.terminate(job, source, err)
		return
	}
	job.ChunksSkipped = len(plan.unchanged)
	logger.Debug("job %s: %d chunks to index, %d unchanged", job.ID, len(plan.pending), len(plan.unchanged))

	// Embed.
	p.transition(job, domain.JobEmbedding)
	results, err := p.batcher.EmbedAll(ctx, plan.chunks())
	if err != nil {
		p.terminate(job, source, err)
		return
	}

	// Index.
	p.transition(job, domain.JobIndexing)
	if err := p.index(ctx, job, plan, results); err != nil {
		p.terminate(job, source, err)
		return
	}

	if job.ChunksFailed > 0 {
		// Survivors stay indexed; the job still reports failure so a
		// re-run picks up the failed chunks.
		p.fail(job, fmt.Errorf("%d of %d chunks failed", job.ChunksFailed, len(plan.pending)))
		p.finishSource(source, job, docs, domain.SourceStatusFailed, job.ChunksIndexed > 0)
		return
	}

	// Positions the crawl no longer produced are dropped so their
	// vectors stop answering queries.
	pruned, err := p.pruneStale(ctx, job, plan)
	if err != nil {
		p.terminate(job, source, err)
		return
	}

	// Summarize and publish the catalog entry. The job only succeeds
	// once the catalog write commits.
	p.transition(job, domain.JobSummarizing)
	if err := p.summarize(ctx, job, *source, plan); err != nil {
		p.terminate(job, source, err)
		return
	}

	p.transition(job, domain.JobSucceeded)
	p.finishSource(source, job, docs, domain.SourceStatusCompleted, job.ChunksIndexed > 0 || pruned > 0)
	logger.Info("job %s: indexed %d chunks, skipped %d", job.ID, job.ChunksIndexed, job.ChunksSkipped)
}

// fetch crawls the source through the fetch gate with stage retries.
func (p *Pipeline) fetch(ctx context.Context, job *domain.IngestionJob, source domain.Source) ([]domain.RawDocument, error) {
	var docs []domain.RawDocument
	err := p.retryStage(ctx, job, "fetch", func(ctx context.Context) error {
		return p.gates.Fetch.Do(ctx, func(ctx context.Context) error {
			var fetchErr error
			docs, fetchErr = p.fetcher.Fetch(ctx, source)
			return fetchErr
		})
	})
	return docs, err
}

// indexPlan is the dedup outcome for one job: chunks that need
// embedding and indexing, positions whose content is unchanged, and the
// stale chunk ids to delete once their replacements are confirmed.
type indexPlan struct {
	pending   []domain.Chunk
	unchanged []domain.Chunk
	staleFor  map[string]string // new chunk id -> prior chunk id to delete
}

func (p *indexPlan) chunks() []domain.Chunk {
	return p.pending
}

// chunkAndResolve chunks every fetched document and resolves each chunk
// against the fingerprint index.
func (p *Pipeline) chunkAndResolve(ctx context.Context, docs []domain.RawDocument) (*indexPlan, error) {
	plan := &indexPlan{staleFor: make(map[string]string)}

	for _, doc := range docs {
		for _, chunk := range p.engine.Chunk(doc) {
			prev, err := p.fingerprints.Get(ctx, chunk.SourceID, chunk.URL, chunk.Ordinal)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("resolve chunk %s: %w", chunk.ID, err)
			}

			resolution, prevID := driven.Resolve(prev, chunk)
			switch resolution {
			case driven.ResolutionUnchanged:
				plan.unchanged = append(plan.unchanged, chunk)
			case driven.ResolutionChanged:
				plan.pending = append(plan.pending, chunk)
				plan.staleFor[chunk.ID] = prevID
			default:
				plan.pending = append(plan.pending, chunk)
			}
		}
	}

	return plan, nil
}

// index upserts successfully embedded chunks into the vector store,
// records their fingerprints, and deletes the stale entries replaced by
// changed chunks. Embedding failures show up here as per-chunk failed
// counts, not as a stage error.
func (p *Pipeline) index(ctx context.Context, job *domain.IngestionJob, plan *indexPlan, results []EmbedResult) error {
	var stale []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(indexFanOut)

	outcomes := make([]error, len(results))
	for i, res := range results {
		if res.Err != nil {
			outcomes[i] = res.Err
			continue
		}
		g.Go(func() error {
			outcomes[i] = p.upsertOne(gctx, res)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for i, res := range results {
		if outcomes[i] != nil {
			job.ChunksFailed++
			job.LastError = outcomes[i].Error()
			logger.Warn("job %s: chunk %s failed: %v", job.ID, res.Chunk.ID, outcomes[i])
			continue
		}
		job.ChunksIndexed++
		if prevID, ok := plan.staleFor[res.Chunk.ID]; ok {
			stale = append(stale, prevID)
		}
	}

	if len(stale) > 0 {
		if err := p.gates.Vector.Do(ctx, func(ctx context.Context) error {
			return p.vectors.Delete(ctx, stale)
		}); err != nil {
			return fmt.Errorf("delete stale chunks: %w", err)
		}
	}

	return nil
}

// upsertOne writes one chunk's vector and, once confirmed, its
// fingerprint record. Transient failures are retried in place.
func (p *Pipeline) upsertOne(ctx context.Context, res EmbedResult) error {
	upsert := func(ctx context.Context) error {
		return p.gates.Vector.Do(ctx, func(ctx context.Context) error {
			return p.vectors.Upsert(ctx, res.Chunk, res.Vector)
		})
	}

	var lastErr error
	for attempt := 0; attempt < p.stageRetries; attempt++ {
		if attempt > 0 {
			if err := p.backoff.Sleep(ctx, attempt); err != nil {
				return err
			}
		}
		err := upsert(ctx)
		if err == nil {
			return p.fingerprints.Save(ctx, driven.FingerprintRecord{
				SourceID:    res.Chunk.SourceID,
				URL:         res.Chunk.URL,
				Ordinal:     res.Chunk.Ordinal,
				ChunkID:     res.Chunk.ID,
				Fingerprint: res.Chunk.Fingerprint,
			})
		}
		if !domain.Retryable(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%w: %w", domain.ErrRetryExhausted, lastErr)
}

func positionKey(sourceID, url string, ordinal int) string {
	return fmt.Sprintf("%s|%s|%d", sourceID, url, ordinal)
}

// pruneStale removes fingerprint records, and their vectors, for
// positions the crawl no longer produced. A page that shrank or
// vanished leaves its tail ordinals here.
func (p *Pipeline) pruneStale(ctx context.Context, job *domain.IngestionJob, plan *indexPlan) (int, error) {
	live := make(map[string]struct{}, len(plan.pending)+len(plan.unchanged))
	bySource := map[string]struct{}{job.SourceID: {}}
	for _, c := range plan.pending {
		live[positionKey(c.SourceID, c.URL, c.Ordinal)] = struct{}{}
		bySource[c.SourceID] = struct{}{}
	}
	for _, c := range plan.unchanged {
		live[positionKey(c.SourceID, c.URL, c.Ordinal)] = struct{}{}
		bySource[c.SourceID] = struct{}{}
	}

	var stale []driven.FingerprintRecord
	for sourceID := range bySource {
		recs, err := p.fingerprints.ListBySource(ctx, sourceID)
		if err != nil {
			return 0, fmt.Errorf("list fingerprints: %w", err)
		}
		for _, rec := range recs {
			if _, ok := live[positionKey(rec.SourceID, rec.URL, rec.Ordinal)]; !ok {
				stale = append(stale, rec)
			}
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	ids := make([]string, len(stale))
	for i, rec := range stale {
		ids[i] = rec.ChunkID
	}
	if err := p.gates.Vector.Do(ctx, func(ctx context.Context) error {
		return p.vectors.Delete(ctx, ids)
	}); err != nil {
		return 0, fmt.Errorf("delete stale vectors: %w", err)
	}
	for _, rec := range stale {
		if err := p.fingerprints.Delete(ctx, rec.SourceID, rec.URL, rec.Ordinal); err != nil {
			return 0, fmt.Errorf("delete fingerprint: %w", err)
		}
	}
	logger.Debug("job %s: pruned %d stale chunks", job.ID, len(stale))
	return len(stale), nil
}

// summarize produces the catalog entry for the source. With no
// summarizer configured a local keyword extraction stands in.
func (p *Pipeline) summarize(ctx context.Context, job *domain.IngestionJob, source domain.Source, plan *indexPlan) error {
	sample := sampleTexts(plan, summarySampleSize)

	var (
		summary  string
		keywords []string
	)
	if p.summarizer != nil {
		err := p.retryStage(ctx, job, "summarize", func(ctx context.Context) error {
			var sumErr error
			summary, keywords, sumErr = p.summarizer.Summarize(ctx, source.ID, sample)
			return sumErr
		})
		if err != nil {
			return err
		}
	} else {
		summary, keywords = LocalSummary(source, sample)
	}

	entry := domain.CatalogEntry{
		SourceID:  source.ID,
		Summary:   summary,
		Keywords:  keywords,
		UpdatedAt: p.now(),
	}
	if err := p.catalog.Upsert(ctx, entry); err != nil {
		return fmt.Errorf("write catalog entry: %w", err)
	}
	return nil
}

// sampleTexts picks chunk texts for summarization, earliest ordinals
// first so the sample leans toward landing pages and overviews.
func sampleTexts(plan *indexPlan, n int) []string {
	all := make([]domain.Chunk, 0, len(plan.pending)+len(plan.unchanged))
	all = append(all, plan.pending...)
	all = append(all, plan.unchanged...)
	sort.Slice(all, func(i, j int) bool {
		if all[i].URL != all[j].URL {
			return all[i].URL < all[j].URL
		}
		return all[i].Ordinal < all[j].Ordinal
	})

	if len(all) > n {
		all = all[:n]
	}
	texts := make([]string, len(all))
	for i, c := range all {
		texts[i] = c.Text
	}
	return texts
}

// retryStage runs fn with the stage retry budget, backing off between
// attempts on retryable errors.
func (p *Pipeline) retryStage(ctx context.Context, job *domain.IngestionJob, stage string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < p.stageRetries; attempt++ {
		if attempt > 0 {
			job.Attempts++
			logger.Debug("job %s: retrying %s (attempt %d)", job.ID, stage, attempt+1)
			if err := p.backoff.Sleep(ctx, attempt); err != nil {
				return err
			}
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !domain.Retryable(err) {
			return fmt.Errorf("%s: %w", stage, err)
		}
		lastErr = err
	}
	return fmt.Errorf("%s: %w: %w", stage, domain.ErrRetryExhausted, lastErr)
}

// transition moves the job forward and persists it. Illegal moves are
// programming errors and logged rather than silently dropped.
func (p *Pipeline) transition(job *domain.IngestionJob, next domain.JobState) {
	if !job.Transition(next, p.now()) {
		logger.Warn("job %s: illegal transition %s -> %s", job.ID, job.State, next)
		return
	}
	p.persistJob(job)
}

// terminate records the error and moves the job to Cancelled or Failed
// depending on whether the failure was a cancellation inside the
// cancellable window.
func (p *Pipeline) terminate(job *domain.IngestionJob, source *domain.Source, err error) {
	if errors.Is(err, context.Canceled) && job.State.Cancellable() {
		job.LastError = "cancelled"
		job.Transition(domain.JobCancelled, p.now())
		p.persistJob(job)
		logger.Info("job %s: cancelled", job.ID)
		return
	}

	p.fail(job, err)
	source.Status = domain.SourceStatusFailed
	source.UpdatedAt = p.now()
	if saveErr := p.sources.Save(context.Background(), *source); saveErr != nil {
		logger.Warn("job %s: save source after failure: %v", job.ID, saveErr)
	}
}

func (p *Pipeline) fail(job *domain.IngestionJob, err error) {
	job.LastError = err.Error()
	job.Transition(domain.JobFailed, p.now())
	p.persistJob(job)
	logger.Warn("job %s: failed: %v", job.ID, err)
}

// finishSource writes the source's terminal status, discovered pages
// and, when the indexed content changed, a fresh content version.
func (p *Pipeline) finishSource(source *domain.Source, job *domain.IngestionJob, docs []domain.RawDocument, status domain.SourceStatus, changed bool) {
	urls := make([]string, 0, len(docs))
	for _, d := range docs {
		urls = append(urls, d.URL)
	}

	source.Status = status
	source.DiscoveredURLs = urls
	source.UpdatedAt = p.now()
	if status == domain.SourceStatusCompleted {
		source.LastIngested = p.now()
	}
	if changed {
		source.ContentVersion = uuid.NewString()
	}

	if err := p.sources.Save(context.Background(), *source); err != nil {
		logger.Warn("job %s: save source: %v", job.ID, err)
	}
}

func (p *Pipeline) persistJob(job *domain.IngestionJob) {
	if err := p.jobs.Save(context.Background(), *job); err != nil {
		logger.Warn("job %s: persist state %s: %v", job.ID, job.State, err)
	}
}
