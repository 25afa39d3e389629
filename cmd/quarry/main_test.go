package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrylabs/quarry/internal/adapters/driven/config/file"
)

// TestRetrieverConfig tests the config file values reach the service
func TestRetrieverConfig(t *testing.T) {
	cfg := file.Default()
	cfg.Retriever.TopN = 12
	cfg.Retriever.Expansions = 5
	cfg.Retriever.CandidatesPerQuery = 20
	cfg.Retriever.RelevanceFloor = 0.45

	sc := retrieverConfig(cfg)

	assert.Equal(t, 12, sc.TopN)
	assert.Equal(t, 5, sc.Expansions)
	assert.Equal(t, 20, sc.CandidatesPerQuery)
	assert.InDelta(t, 0.45, sc.RelevanceFloor, 1e-9)
}

// TestBuildStores_Memory tests the in-memory backend wires all four stores
func TestBuildStores_Memory(t *testing.T) {
	cfg := file.Default()
	cfg.Storage.InMemory = true

	stores, closeStores, err := buildStores(cfg)
	require.NoError(t, err)
	defer closeStores()

	assert.NotNil(t, stores.sources)
	assert.NotNil(t, stores.jobs)
	assert.NotNil(t, stores.fingerprints)
	assert.NotNil(t, stores.catalog)
}

// TestBuildEmbedder_NoKey tests ingestion capabilities stay nil without keys
func TestBuildEmbedder_NoKey(t *testing.T) {
	embedder, err := buildEmbedder(file.Default())
	require.NoError(t, err)
	assert.Nil(t, embedder)

	fetcher, err := buildFetcher(file.Default())
	require.NoError(t, err)
	assert.Nil(t, fetcher)
}
