package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrylabs/quarry/internal/core/domain"
	"github.com/quarrylabs/quarry/internal/core/ports/driven"
)

const testSourceID = "https://docs.example.com"

func testDocuments() []domain.RawDocument {
	return []domain.RawDocument{
		{
			SourceID: testSourceID,
			URL:      testSourceID + "/install",
			Content:  "Install the binary from the releases page and put it on your path.",
		},
		{
			SourceID: testSourceID,
			URL:      testSourceID + "/config",
			Content:  "Configuration lives in a single file read at startup.",
		},
	}
}

type pipelineFixture struct {
	fetcher      *fakeFetcher
	embedder     *fakeEmbedder
	vectors      *fakeVectorIndex
	sources      *memSourceStore
	jobs         *memJobStore
	fingerprints *memFingerprintStore
	catalog      *memCatalogStore
	pipeline     *Pipeline
}

// openGates returns gates with no rate smoothing so retry tests run fast.
func openGates() *Gates {
	cfg := GateConfig{MaxInFlight: 8}
	return NewGates(cfg, cfg, cfg)
}

func newPipelineFixture(fetcher *fakeFetcher, summarizer driven.Summarizer) *pipelineFixture {
	fx := &pipelineFixture{
		fetcher:      fetcher,
		embedder:     &fakeEmbedder{},
		vectors:      newFakeVectorIndex(),
		sources:      newMemSourceStore(),
		jobs:         newMemJobStore(),
		fingerprints: newMemFingerprintStore(),
		catalog:      newMemCatalogStore(),
	}

	fx.pipeline = NewPipeline(PipelineDeps{
		Fetcher:      fx.fetcher,
		Embedder:     fx.embedder,
		Vectors:      fx.vectors,
		Summarizer:   summarizer,
		Sources:      fx.sources,
		Jobs:         fx.jobs,
		Fingerprints: fx.fingerprints,
		Catalog:      fx.catalog,
		Gates:        openGates(),
	})
	fast := Backoff{Base: time.Millisecond, Max: 5 * time.Millisecond}
	fx.pipeline.backoff = fast
	fx.pipeline.batcher.backoff = fast

	return fx
}

// startJob seeds the source and a queued job, mirroring what Enqueue does.
func (fx *pipelineFixture) startJob(t *testing.T, jobID string) *domain.IngestionJob {
	t.Helper()
	now := time.Now()

	require.NoError(t, fx.sources.Save(context.Background(), domain.Source{
		ID:        testSourceID,
		URL:       testSourceID,
		Status:    domain.SourceStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}))

	job := &domain.IngestionJob{
		ID:          jobID,
		SourceID:    testSourceID,
		State:       domain.JobQueued,
		EnqueuedAt:  now,
		Transitions: []domain.JobTransition{{State: domain.JobQueued, At: now}},
	}
	require.NoError(t, fx.jobs.Save(context.Background(), *job))
	return job
}

// TestPipeline_HappyPath tests a full ingestion run
func TestPipeline_HappyPath(t *testing.T) {
	fx := newPipelineFixture(&fakeFetcher{docs: testDocuments()}, nil)
	job := fx.startJob(t, "job-1")

	fx.pipeline.Run(context.Background(), job)

	assert.Equal(t, domain.JobSucceeded, job.State)
	assert.Equal(t, 2, job.ChunksIndexed)
	assert.Zero(t, job.ChunksSkipped)
	assert.Zero(t, job.ChunksFailed)
	assert.False(t, job.FinishedAt.IsZero())

	assert.Equal(t, 2, fx.vectors.storedCount())
	assert.Equal(t, 2, fx.fingerprints.count())

	entry, err := fx.catalog.Get(context.Background(), testSourceID)
	require.NoError(t, err)
	assert.Contains(t, entry.Summary, testSourceID)
	assert.NotEmpty(t, entry.Keywords)

	source, err := fx.sources.Get(context.Background(), testSourceID)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceStatusCompleted, source.Status)
	assert.False(t, source.LastIngested.IsZero())
	assert.NotEmpty(t, source.ContentVersion)
	assert.Len(t, source.DiscoveredURLs, 2)

	// The persisted job matches the in-memory one.
	stored, err := fx.jobs.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobSucceeded, stored.State)
}

// TestPipeline_StateOrder tests the job walks the stages in order
func TestPipeline_StateOrder(t *testing.T) {
	fx := newPipelineFixture(&fakeFetcher{docs: testDocuments()}, nil)
	job := fx.startJob(t, "job-1")

	fx.pipeline.Run(context.Background(), job)

	var states []domain.JobState
	for _, tr := range job.Transitions {
		states = append(states, tr.State)
	}
	assert.Equal(t, []domain.JobState{
		domain.JobQueued,
		domain.JobFetching,
		domain.JobChunking,
		domain.JobEmbedding,
		domain.JobIndexing,
		domain.JobSummarizing,
		domain.JobSucceeded,
	}, states)
}

// TestPipeline_ReingestUnchanged tests dedup skips identical content
func TestPipeline_ReingestUnchanged(t *testing.T) {
	fx := newPipelineFixture(&fakeFetcher{docs: testDocuments()}, nil)

	first := fx.startJob(t, "job-1")
	fx.pipeline.Run(context.Background(), first)
	require.Equal(t, domain.JobSucceeded, first.State)

	embedCalls := fx.embedder.callCount()
	source, err := fx.sources.Get(context.Background(), testSourceID)
	require.NoError(t, err)
	version := source.ContentVersion

	second := fx.startJob(t, "job-2")
	fx.pipeline.Run(context.Background(), second)

	assert.Equal(t, domain.JobSucceeded, second.State)
	assert.Zero(t, second.ChunksIndexed)
	assert.Equal(t, 2, second.ChunksSkipped)
	assert.Equal(t, embedCalls, fx.embedder.callCount(), "unchanged chunks must not be re-embedded")

	source, err = fx.sources.Get(context.Background(), testSourceID)
	require.NoError(t, err)
	assert.Equal(t, version, source.ContentVersion, "unchanged content keeps its version")
}

// TestPipeline_ReingestChanged tests changed content replaces the stale vector
func TestPipeline_ReingestChanged(t *testing.T) {
	fetcher := &fakeFetcher{docs: testDocuments()}
	fx := newPipelineFixture(fetcher, nil)

	first := fx.startJob(t, "job-1")
	fx.pipeline.Run(context.Background(), first)
	require.Equal(t, domain.JobSucceeded, first.State)

	prev, err := fx.fingerprints.Get(context.Background(), testSourceID, testSourceID+"/config", 0)
	require.NoError(t, err)
	staleID := prev.ChunkID

	docs := testDocuments()
	docs[1].Content = "Configuration moved to environment variables in the latest release."
	fetcher.docs = docs

	second := fx.startJob(t, "job-2")
	fx.pipeline.Run(context.Background(), second)

	assert.Equal(t, domain.JobSucceeded, second.State)
	assert.Equal(t, 1, second.ChunksIndexed)
	assert.Equal(t, 1, second.ChunksSkipped)
	assert.Contains(t, fx.vectors.deletedIDs(), staleID)

	rec, err := fx.fingerprints.Get(context.Background(), testSourceID, testSourceID+"/config", 0)
	require.NoError(t, err)
	assert.NotEqual(t, staleID, rec.ChunkID)

	source, err := fx.sources.Get(context.Background(), testSourceID)
	require.NoError(t, err)
	assert.NotEmpty(t, source.ContentVersion)
}

// TestPipeline_ReingestShrunk tests vanished positions are pruned
func TestPipeline_ReingestShrunk(t *testing.T) {
	fetcher := &fakeFetcher{docs: testDocuments()}
	fx := newPipelineFixture(fetcher, nil)

	first := fx.startJob(t, "job-1")
	fx.pipeline.Run(context.Background(), first)
	require.Equal(t, domain.JobSucceeded, first.State)
	require.Equal(t, 2, fx.vectors.storedCount())
	require.Equal(t, 2, fx.fingerprints.count())

	source, err := fx.sources.Get(context.Background(), testSourceID)
	require.NoError(t, err)
	version := source.ContentVersion

	// The second crawl only finds the first page.
	fetcher.docs = testDocuments()[:1]
	second := fx.startJob(t, "job-2")
	fx.pipeline.Run(context.Background(), second)

	assert.Equal(t, domain.JobSucceeded, second.State)
	assert.Zero(t, second.ChunksIndexed)
	assert.Equal(t, 1, fx.vectors.storedCount())
	assert.Equal(t, 1, fx.fingerprints.count())

	_, err = fx.fingerprints.Get(context.Background(), testSourceID, testSourceID+"/config", 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Losing a page is a content change.
	source, err = fx.sources.Get(context.Background(), testSourceID)
	require.NoError(t, err)
	assert.NotEqual(t, version, source.ContentVersion)
}

// TestPipeline_PartialChunkFailure tests survivors stay indexed when a chunk fails
func TestPipeline_PartialChunkFailure(t *testing.T) {
	docs := testDocuments()
	docs[1].Content = "poison " + docs[1].Content
	fx := newPipelineFixture(&fakeFetcher{docs: docs}, nil)

	fx.vectors.upsertFn = func(chunk domain.Chunk) error {
		if strings.Contains(chunk.Text, "poison") {
			return domain.ErrInvalidInput
		}
		return nil
	}

	job := fx.startJob(t, "job-1")
	fx.pipeline.Run(context.Background(), job)

	assert.Equal(t, domain.JobFailed, job.State)
	assert.Equal(t, 1, job.ChunksIndexed)
	assert.Equal(t, 1, job.ChunksFailed)
	assert.NotEmpty(t, job.LastError)

	// The surviving chunk is indexed and fingerprinted; the failed one
	// is neither.
	assert.Equal(t, 1, fx.vectors.storedCount())
	assert.Equal(t, 1, fx.fingerprints.count())

	// No catalog entry: the job never reached summarizing.
	_, err := fx.catalog.Get(context.Background(), testSourceID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	source, err := fx.sources.Get(context.Background(), testSourceID)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceStatusFailed, source.Status)
}

// TestPipeline_FetchDisallowed tests a policy rejection fails without retry
func TestPipeline_FetchDisallowed(t *testing.T) {
	fetcher := &fakeFetcher{
		err: &domain.FetchError{Source: testSourceID, Reason: domain.FetchReasonDisallowed},
	}
	fx := newPipelineFixture(fetcher, nil)

	job := fx.startJob(t, "job-1")
	fx.pipeline.Run(context.Background(), job)

	assert.Equal(t, domain.JobFailed, job.State)
	assert.Equal(t, 1, fetcher.callCount(), "disallowed fetches must not be retried")
	assert.Contains(t, job.LastError, "disallowed")

	source, err := fx.sources.Get(context.Background(), testSourceID)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceStatusFailed, source.Status)
}

// TestPipeline_FetchTransientRecovers tests timeouts are retried with backoff
func TestPipeline_FetchTransientRecovers(t *testing.T) {
	fetcher := &fakeFetcher{
		docs:      testDocuments(),
		err:       &domain.FetchError{Source: testSourceID, Reason: domain.FetchReasonTimeout},
		failFirst: 2,
	}
	fx := newPipelineFixture(fetcher, nil)

	job := fx.startJob(t, "job-1")
	fx.pipeline.Run(context.Background(), job)

	assert.Equal(t, domain.JobSucceeded, job.State)
	assert.Equal(t, 3, fetcher.callCount())
	assert.Equal(t, 2, job.Attempts)
}

// TestPipeline_FetchRetryExhausted tests a persistent timeout fails the job
func TestPipeline_FetchRetryExhausted(t *testing.T) {
	fetcher := &fakeFetcher{
		err: &domain.FetchError{Source: testSourceID, Reason: domain.FetchReasonTimeout},
	}
	fx := newPipelineFixture(fetcher, nil)

	job := fx.startJob(t, "job-1")
	fx.pipeline.Run(context.Background(), job)

	assert.Equal(t, domain.JobFailed, job.State)
	assert.Equal(t, DefaultStageRetries, fetcher.callCount())
	assert.Contains(t, job.LastError, "retry budget exhausted")
}

// TestPipeline_CancelDuringFetch tests cancellation inside the window
func TestPipeline_CancelDuringFetch(t *testing.T) {
	fetcher := &fakeFetcher{block: true}
	fx := newPipelineFixture(fetcher, nil)

	job := fx.startJob(t, "job-1")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		fx.pipeline.Run(ctx, job)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return fetcher.callCount() > 0
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop after cancellation")
	}

	assert.Equal(t, domain.JobCancelled, job.State)
	stored, err := fx.jobs.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobCancelled, stored.State)
}

// TestPipeline_CancelAfterFetchIgnored tests cancellation past the window
func TestPipeline_CancelAfterFetchIgnored(t *testing.T) {
	fx := newPipelineFixture(&fakeFetcher{docs: testDocuments()}, nil)
	release := make(chan struct{})
	fx.embedder.block = release

	job := fx.startJob(t, "job-1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		fx.pipeline.Run(ctx, job)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return fx.embedder.callCount() > 0
	}, 2*time.Second, 5*time.Millisecond)

	// The job is mid-embedding. Cancelling the context now must not
	// abort it; the writes run to completion.
	cancel()
	close(release)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not finish")
	}

	assert.Equal(t, domain.JobSucceeded, job.State)
	assert.Equal(t, 2, job.ChunksIndexed)
	assert.Equal(t, 2, fx.vectors.storedCount())
}

// TestPipeline_ExternalSummarizer tests the catalog uses the model summary
func TestPipeline_ExternalSummarizer(t *testing.T) {
	summarizer := &fakeSummarizer{summary: "Developer documentation for the example tool."}
	fx := newPipelineFixture(&fakeFetcher{docs: testDocuments()}, summarizer)

	job := fx.startJob(t, "job-1")
	fx.pipeline.Run(context.Background(), job)

	require.Equal(t, domain.JobSucceeded, job.State)

	entry, err := fx.catalog.Get(context.Background(), testSourceID)
	require.NoError(t, err)
	assert.Equal(t, summarizer.summary, entry.Summary)
	assert.Equal(t, []string{"docs"}, entry.Keywords)
}
