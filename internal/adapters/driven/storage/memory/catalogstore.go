package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/quarrylabs/quarry/internal/core/domain"
	"github.com/quarrylabs/quarry/internal/core/ports/driven"
)

// Ensure CatalogStore implements the interface.
var _ driven.CatalogStore = (*CatalogStore)(nil)

// CatalogStore is an in-memory implementation of driven.CatalogStore.
type CatalogStore struct {
	mu      sync.RWMutex
	entries map[string]domain.CatalogEntry
}

// NewCatalogStore creates a new in-memory catalog store.
func NewCatalogStore() *CatalogStore {
	return &CatalogStore{
		entries: make(map[string]domain.CatalogEntry),
	}
}

// Upsert stores or replaces a catalog entry.
func (s *CatalogStore) Upsert(_ context.Context, entry domain.CatalogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.SourceID] = entry
	return nil
}

// Get retrieves the entry for a source.
func (s *CatalogStore) Get(_ context.Context, sourceID string) (*domain.CatalogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[sourceID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &entry, nil
}

// List returns all catalog entries ordered by source ID.
func (s *CatalogStore) List(_ context.Context) ([]domain.CatalogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.CatalogEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		result = append(result, entry)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].SourceID < result[j].SourceID
	})
	return result, nil
}

// Delete removes the entry for a source.
func (s *CatalogStore) Delete(_ context.Context, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[sourceID]; !ok {
		return domain.ErrNotFound
	}
	delete(s.entries, sourceID)
	return nil
}
