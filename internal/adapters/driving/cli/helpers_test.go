package cli

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quarrylabs/quarry/internal/adapters/driven/storage/memory"
	vecmemory "github.com/quarrylabs/quarry/internal/adapters/driven/vector/memory"
	"github.com/quarrylabs/quarry/internal/core/domain"
	"github.com/quarrylabs/quarry/internal/core/ports/driven"
	"github.com/quarrylabs/quarry/internal/core/services"
)

// stubEmbedder returns a fixed unit vector for every text.
type stubEmbedder struct{}

func (stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (stubEmbedder) Dimensions() int   { return 2 }
func (stubEmbedder) ModelName() string { return "stub" }
func (stubEmbedder) Close() error      { return nil }

// stubFetcher returns one markdown page per crawl.
type stubFetcher struct{}

func (stubFetcher) Fetch(_ context.Context, source domain.Source) ([]domain.RawDocument, error) {
	return []domain.RawDocument{{
		SourceID: source.ID,
		URL:      source.ID,
		Content:  "# Stub\n\nStub page content for tests.",
	}}, nil
}

var (
	_ driven.Embedder = stubEmbedder{}
	_ driven.Fetcher  = stubFetcher{}
)

// testEnv holds the memory-backed services the commands run against.
// The queue is not started; tests that need jobs to actually run call
// start.
type testEnv struct {
	vectors *vecmemory.Index
	catalog *memory.CatalogStore
	queue   *services.JobQueue
}

// setupTestServices wires memory-backed services behind the command
// tree and returns a cleanup that restores the previous wiring.
func setupTestServices() func() {
	_, cleanup := setupTestEnv()
	return cleanup
}

func setupTestEnv() (*testEnv, func()) {
	sources := memory.NewSourceStore()
	jobs := memory.NewJobStore()
	fprints := memory.NewFingerprintStore()
	catalog := memory.NewCatalogStore()
	vectors := vecmemory.NewIndex()

	pipeline := services.NewPipeline(services.PipelineDeps{
		Fetcher:      stubFetcher{},
		Embedder:     stubEmbedder{},
		Vectors:      vectors,
		Sources:      sources,
		Jobs:         jobs,
		Fingerprints: fprints,
		Catalog:      catalog,
	})

	queue := services.NewJobQueue(services.QueueConfig{Workers: 1, Depth: 8}, pipeline)
	retriever := services.NewRetrievalService(stubEmbedder{}, vectors, nil, nil, services.RetrieverConfig{})
	catalogSvc := services.NewCatalogService(catalog)

	oldIngest, oldRetrieve, oldCatalog := ingestService, retrieveService, catalogService
	SetServices(queue, retriever, catalogSvc)

	env := &testEnv{vectors: vectors, catalog: catalog, queue: queue}
	cleanup := func() {
		ingestService = oldIngest
		retrieveService = oldRetrieve
		catalogService = oldCatalog
	}
	return env, cleanup
}

// start launches the queue workers and stops them when the test ends.
func (e *testEnv) start(t *testing.T) {
	t.Helper()
	require.NoError(t, e.queue.Start(context.Background()))
	t.Cleanup(e.queue.Stop)
}

// seedPassage indexes one chunk aligned with the stub embedding.
func (e *testEnv) seedPassage(chunkID, sourceID, text string) error {
	return e.vectors.Upsert(context.Background(), domain.Chunk{
		ID:       chunkID,
		SourceID: sourceID,
		URL:      sourceID + "/page",
		Ordinal:  0,
		Text:     text,
	}, []float32{1, 0})
}

// seedCatalogEntry stores one catalog entry.
func (e *testEnv) seedCatalogEntry(sourceID, summary string, keywords []string) error {
	return e.catalog.Upsert(context.Background(), domain.CatalogEntry{
		SourceID:  sourceID,
		Summary:   summary,
		Keywords:  keywords,
		UpdatedAt: time.Now(),
	})
}
