package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/quarrylabs/quarry/internal/core/domain"
	"github.com/quarrylabs/quarry/internal/core/ports/driven"
)

// Ensure JobStore implements the interface.
var _ driven.JobStore = (*JobStore)(nil)

// JobStore is an in-memory implementation of driven.JobStore.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]domain.IngestionJob
}

// NewJobStore creates a new in-memory job store.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]domain.IngestionJob),
	}
}

// Save stores or updates a job.
func (s *JobStore) Save(_ context.Context, job domain.IngestionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

// Get retrieves a job by ID.
func (s *JobStore) Get(_ context.Context, id string) (*domain.IngestionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &job, nil
}

// ActiveForSource returns the non-terminal job for a source.
func (s *JobStore) ActiveForSource(_ context.Context, sourceID string) (*domain.IngestionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, job := range s.jobs {
		if job.SourceID == sourceID && !job.State.Terminal() {
			j := job
			return &j, nil
		}
	}
	return nil, domain.ErrNotFound
}

// List returns all jobs, newest first.
func (s *JobStore) List(_ context.Context) ([]domain.IngestionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.IngestionJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		result = append(result, job)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].EnqueuedAt.After(result[j].EnqueuedAt)
	})
	return result, nil
}
