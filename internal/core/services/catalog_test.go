package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrylabs/quarry/internal/core/domain"
)

// TestExtractKeywords tests frequency ordering with stopword removal
func TestExtractKeywords(t *testing.T) {
	texts := []string{
		"The scheduler assigns workers to queues. Workers poll queues for jobs.",
		"A worker runs one job at a time and the scheduler rebalances queues.",
	}

	keywords := ExtractKeywords(texts, 3)

	require.NotEmpty(t, keywords)
	assert.Equal(t, "queues", keywords[0])
	assert.NotContains(t, keywords, "the")
	assert.NotContains(t, keywords, "and")
}

// TestExtractKeywords_Empty tests no input yields no keywords
func TestExtractKeywords_Empty(t *testing.T) {
	assert.Empty(t, ExtractKeywords(nil, 5))
	assert.Empty(t, ExtractKeywords([]string{""}, 5))
}

// TestLocalSummary tests the fallback summary mentions the source
func TestLocalSummary(t *testing.T) {
	source := domain.Source{ID: testSourceID, URL: testSourceID}

	summary, keywords := LocalSummary(source, []string{
		"Deployment requires a container runtime. Deployment targets are configured per environment.",
	})

	assert.Contains(t, summary, testSourceID)
	assert.Contains(t, keywords, "deployment")
}

// TestCatalogService_List tests the driving port passthrough
func TestCatalogService_List(t *testing.T) {
	store := newMemCatalogStore()
	require.NoError(t, store.Upsert(context.Background(), domain.CatalogEntry{
		SourceID:  testSourceID,
		Summary:   "Example docs.",
		Keywords:  []string{"example"},
		UpdatedAt: time.Now(),
	}))

	svc := NewCatalogService(store)
	entries, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, testSourceID, entries[0].SourceID)
}
