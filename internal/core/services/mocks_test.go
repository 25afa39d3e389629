package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/quarrylabs/quarry/internal/core/domain"
	"github.com/quarrylabs/quarry/internal/core/ports/driven"
)

// fakeFetcher returns scripted documents, optionally failing a number
// of leading calls first.
type fakeFetcher struct {
	mu        sync.Mutex
	docs      []domain.RawDocument
	err       error
	failFirst int
	calls     int
	block     bool // when set, Fetch waits for ctx cancellation
}

func (f *fakeFetcher) Fetch(ctx context.Context, source domain.Source) ([]domain.RawDocument, error) {
	f.mu.Lock()
	f.calls++
	calls := f.calls
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil && (f.failFirst == 0 || calls <= f.failFirst) {
		return nil, f.err
	}
	return f.docs, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeEmbedder produces one-dimensional vectors. Texts in failTexts
// fail their whole batch; queryVec overrides the vector for exact
// query strings so searches can be scripted in the vector fake.
type fakeEmbedder struct {
	mu        sync.Mutex
	calls     int
	batchErr  error
	failFirst int
	queryVec  map[string]float32
	block     chan struct{}
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	calls := f.calls
	f.mu.Unlock()

	if f.block != nil {
		<-f.block
	}

	if f.batchErr != nil && (f.failFirst == 0 || calls <= f.failFirst) {
		return nil, f.batchErr
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if v, ok := f.queryVec[text]; ok {
			out[i] = []float32{v}
			continue
		}
		out[i] = []float32{float32(len(text))}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int   { return 1 }
func (f *fakeEmbedder) ModelName() string { return "fake-embedder" }
func (f *fakeEmbedder) Close() error      { return nil }

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeVectorIndex stores upserts in memory and answers queries from a
// scripted hit table keyed by the query vector's first element.
type fakeVectorIndex struct {
	mu       sync.Mutex
	stored   map[string]domain.Chunk
	deleted  []string
	hits     map[float32][]driven.VectorHit
	upsertFn func(chunk domain.Chunk) error
}

func newFakeVectorIndex() *fakeVectorIndex {
	return &fakeVectorIndex{stored: make(map[string]domain.Chunk)}
}

func (f *fakeVectorIndex) Upsert(ctx context.Context, chunk domain.Chunk, embedding []float32) error {
	if f.upsertFn != nil {
		if err := f.upsertFn(chunk); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored[chunk.ID] = chunk
	return nil
}

func (f *fakeVectorIndex) Delete(ctx context.Context, chunkIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range chunkIDs {
		delete(f.stored, id)
		f.deleted = append(f.deleted, id)
	}
	return nil
}

func (f *fakeVectorIndex) DeleteBySource(ctx context.Context, sourceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, chunk := range f.stored {
		if chunk.SourceID == sourceID {
			delete(f.stored, id)
			f.deleted = append(f.deleted, id)
		}
	}
	return nil
}

func (f *fakeVectorIndex) Query(ctx context.Context, embedding []float32, k int, sourceID string) ([]driven.VectorHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(embedding) == 0 {
		return nil, nil
	}
	hits := f.hits[embedding[0]]
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (f *fakeVectorIndex) Close() error { return nil }

func (f *fakeVectorIndex) storedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stored)
}

func (f *fakeVectorIndex) deletedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

// fakeExpander returns scripted sub-queries or an error.
type fakeExpander struct {
	queries []string
	err     error
}

func (f *fakeExpander) Expand(ctx context.Context, question string, n int) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.queries) > n {
		return f.queries[:n], nil
	}
	return f.queries, nil
}

// fakeSummarizer returns a fixed summary.
type fakeSummarizer struct {
	mu      sync.Mutex
	calls   int
	summary string
	err     error
}

func (f *fakeSummarizer) Summarize(ctx context.Context, sourceID string, sample []string) (string, []string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return "", nil, f.err
	}
	return f.summary, []string{"docs"}, nil
}

// In-memory store fakes.

type memSourceStore struct {
	mu      sync.Mutex
	sources map[string]domain.Source
}

func newMemSourceStore() *memSourceStore {
	return &memSourceStore{sources: make(map[string]domain.Source)}
}

func (s *memSourceStore) Save(ctx context.Context, source domain.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[source.ID] = source
	return nil
}

func (s *memSourceStore) Get(ctx context.Context, id string) (*domain.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	source, ok := s.sources[id]
	if !ok {
		return nil, fmt.Errorf("source %s: %w", id, domain.ErrNotFound)
	}
	return &source, nil
}

func (s *memSourceStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sources[id]; !ok {
		return fmt.Errorf("source %s: %w", id, domain.ErrNotFound)
	}
	delete(s.sources, id)
	return nil
}

func (s *memSourceStore) List(ctx context.Context) ([]domain.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Source, 0, len(s.sources))
	for _, source := range s.sources {
		out = append(out, source)
	}
	return out, nil
}

type memJobStore struct {
	mu   sync.Mutex
	jobs map[string]domain.IngestionJob
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: make(map[string]domain.IngestionJob)}
}

func (s *memJobStore) Save(ctx context.Context, job domain.IngestionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *memJobStore) Get(ctx context.Context, id string) (*domain.IngestionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	return &job, nil
}

func (s *memJobStore) ActiveForSource(ctx context.Context, sourceID string) (*domain.IngestionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.SourceID == sourceID && !job.State.Terminal() {
			j := job
			return &j, nil
		}
	}
	return nil, fmt.Errorf("no active job for %s: %w", sourceID, domain.ErrNotFound)
}

func (s *memJobStore) List(ctx context.Context) ([]domain.IngestionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.IngestionJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EnqueuedAt.After(out[j].EnqueuedAt)
	})
	return out, nil
}

type memFingerprintStore struct {
	mu   sync.Mutex
	recs map[string]driven.FingerprintRecord
}

func newMemFingerprintStore() *memFingerprintStore {
	return &memFingerprintStore{recs: make(map[string]driven.FingerprintRecord)}
}

func fingerprintKey(sourceID, url string, ordinal int) string {
	return fmt.Sprintf("%s|%s|%d", sourceID, url, ordinal)
}

func (s *memFingerprintStore) Get(ctx context.Context, sourceID, url string, ordinal int) (*driven.FingerprintRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[fingerprintKey(sourceID, url, ordinal)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

func (s *memFingerprintStore) Save(ctx context.Context, rec driven.FingerprintRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[fingerprintKey(rec.SourceID, rec.URL, rec.Ordinal)] = rec
	return nil
}

func (s *memFingerprintStore) ListBySource(ctx context.Context, sourceID string) ([]driven.FingerprintRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []driven.FingerprintRecord
	for _, rec := range s.recs {
		if rec.SourceID == sourceID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *memFingerprintStore) Delete(ctx context.Context, sourceID, url string, ordinal int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recs, fingerprintKey(sourceID, url, ordinal))
	return nil
}

func (s *memFingerprintStore) DeleteBySource(ctx context.Context, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, rec := range s.recs {
		if rec.SourceID == sourceID {
			delete(s.recs, key)
		}
	}
	return nil
}

func (s *memFingerprintStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

type memCatalogStore struct {
	mu      sync.Mutex
	entries map[string]domain.CatalogEntry
}

func newMemCatalogStore() *memCatalogStore {
	return &memCatalogStore{entries: make(map[string]domain.CatalogEntry)}
}

func (s *memCatalogStore) Upsert(ctx context.Context, entry domain.CatalogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.SourceID] = entry
	return nil
}

func (s *memCatalogStore) Get(ctx context.Context, sourceID string) (*domain.CatalogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[sourceID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &entry, nil
}

func (s *memCatalogStore) List(ctx context.Context) ([]domain.CatalogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.CatalogEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, entry)
	}
	return out, nil
}

func (s *memCatalogStore) Delete(ctx context.Context, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[sourceID]; !ok {
		return domain.ErrNotFound
	}
	delete(s.entries, sourceID)
	return nil
}

// Interface assertions keep the fakes honest.
var (
	_ driven.Fetcher          = (*fakeFetcher)(nil)
	_ driven.Embedder         = (*fakeEmbedder)(nil)
	_ driven.VectorIndex      = (*fakeVectorIndex)(nil)
	_ driven.QueryExpander    = (*fakeExpander)(nil)
	_ driven.Summarizer       = (*fakeSummarizer)(nil)
	_ driven.SourceStore      = (*memSourceStore)(nil)
	_ driven.JobStore         = (*memJobStore)(nil)
	_ driven.FingerprintStore = (*memFingerprintStore)(nil)
	_ driven.CatalogStore     = (*memCatalogStore)(nil)
)
