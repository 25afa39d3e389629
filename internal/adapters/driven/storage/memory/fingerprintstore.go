package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/quarrylabs/quarry/internal/core/domain"
	"github.com/quarrylabs/quarry/internal/core/ports/driven"
)

// Ensure FingerprintStore implements the interface.
var _ driven.FingerprintStore = (*FingerprintStore)(nil)

// FingerprintStore is an in-memory implementation of driven.FingerprintStore.
type FingerprintStore struct {
	mu      sync.RWMutex
	records map[string]driven.FingerprintRecord
}

// NewFingerprintStore creates a new in-memory fingerprint store.
func NewFingerprintStore() *FingerprintStore {
	return &FingerprintStore{
		records: make(map[string]driven.FingerprintRecord),
	}
}

func recordKey(sourceID, url string, ordinal int) string {
	return fmt.Sprintf("%s|%s|%d", sourceID, url, ordinal)
}

// Get retrieves the record for a logical chunk position.
func (s *FingerprintStore) Get(_ context.Context, sourceID, url string, ordinal int) (*driven.FingerprintRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[recordKey(sourceID, url, ordinal)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

// Save stores or replaces a record.
func (s *FingerprintStore) Save(_ context.Context, rec driven.FingerprintRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[recordKey(rec.SourceID, rec.URL, rec.Ordinal)] = rec
	return nil
}

// ListBySource returns all records for a source, ordered by URL and ordinal.
func (s *FingerprintStore) ListBySource(_ context.Context, sourceID string) ([]driven.FingerprintRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []driven.FingerprintRecord
	for _, rec := range s.records {
		if rec.SourceID == sourceID {
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].URL != result[j].URL {
			return result[i].URL < result[j].URL
		}
		return result[i].Ordinal < result[j].Ordinal
	})
	return result, nil
}

// Delete removes the record for one logical chunk position.
func (s *FingerprintStore) Delete(_ context.Context, sourceID, url string, ordinal int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, recordKey(sourceID, url, ordinal))
	return nil
}

// DeleteBySource removes all records for a source.
func (s *FingerprintStore) DeleteBySource(_ context.Context, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, rec := range s.records {
		if rec.SourceID == sourceID {
			delete(s.records, key)
		}
	}
	return nil
}
