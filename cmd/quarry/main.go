// Command quarry is the entrypoint for the quarry CLI. It loads
// configuration, wires adapters to core services, and hands control to
// the cobra command tree.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/quarrylabs/quarry/internal/adapters/driven/config/file"
	"github.com/quarrylabs/quarry/internal/adapters/driven/embedding/openai"
	"github.com/quarrylabs/quarry/internal/adapters/driven/fetch/firecrawl"
	"github.com/quarrylabs/quarry/internal/adapters/driven/llm/anthropic"
	memstorage "github.com/quarrylabs/quarry/internal/adapters/driven/storage/memory"
	"github.com/quarrylabs/quarry/internal/adapters/driven/storage/sqlite"
	vecmemory "github.com/quarrylabs/quarry/internal/adapters/driven/vector/memory"
	"github.com/quarrylabs/quarry/internal/adapters/driven/vector/qdrant"
	"github.com/quarrylabs/quarry/internal/adapters/driving/cli"
	"github.com/quarrylabs/quarry/internal/chunker"
	"github.com/quarrylabs/quarry/internal/core/ports/driven"
	"github.com/quarrylabs/quarry/internal/core/services"
	"github.com/quarrylabs/quarry/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Best effort; API keys may come from the shell instead.
	_ = godotenv.Load()

	cfg, err := file.Load(os.Getenv("QUARRY_CONFIG"))
	if err != nil {
		return err
	}

	ctx := context.Background()

	stores, closeStores, err := buildStores(cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return err
	}

	vectors, err := buildVectors(ctx, cfg, embedder)
	if err != nil {
		return err
	}

	expander, summarizer, err := buildLLM(cfg)
	if err != nil {
		return err
	}

	fetcher, err := buildFetcher(cfg)
	if err != nil {
		return err
	}

	engine := chunker.New(
		chunker.WithTokenBudget(cfg.Chunker.TokenBudget),
		chunker.WithOverlapFraction(cfg.Chunker.OverlapRatio),
	)

	retriever := services.NewRetrievalService(embedder, vectors, expander, nil, retrieverConfig(cfg))
	catalog := services.NewCatalogService(stores.catalog)

	// Ingestion needs the full capability set. Without it the read-side
	// commands still work.
	var ingestor *services.JobQueue
	if fetcher != nil && embedder != nil && vectors != nil {
		pipeline := services.NewPipeline(services.PipelineDeps{
			Fetcher:      fetcher,
			Engine:       engine,
			Embedder:     embedder,
			Vectors:      vectors,
			Summarizer:   summarizer,
			Sources:      stores.sources,
			Jobs:         stores.jobs,
			Fingerprints: stores.fingerprints,
			Catalog:      stores.catalog,
		})

		queue := services.NewJobQueue(services.QueueConfig{
			Workers: cfg.Queue.Workers,
			Depth:   cfg.Queue.Depth,
		}, pipeline)
		if err := queue.Start(ctx); err != nil {
			return fmt.Errorf("start job queue: %w", err)
		}
		defer queue.Stop()
		ingestor = queue
	} else {
		logger.Warn("ingestion disabled: FIRECRAWL_API_KEY and OPENAI_API_KEY are required")
	}

	if ingestor != nil {
		cli.SetServices(ingestor, retriever, catalog)
	} else {
		cli.SetServices(nil, retriever, catalog)
	}

	return cli.Execute()
}

func retrieverConfig(cfg file.Config) services.RetrieverConfig {
	return services.RetrieverConfig{
		TopN:               cfg.Retriever.TopN,
		Expansions:         cfg.Retriever.Expansions,
		CandidatesPerQuery: cfg.Retriever.CandidatesPerQuery,
		RelevanceFloor:     cfg.Retriever.RelevanceFloor,
	}
}

type storeSet struct {
	sources      driven.SourceStore
	jobs         driven.JobStore
	fingerprints driven.FingerprintStore
	catalog      driven.CatalogStore
}

func buildStores(cfg file.Config) (*storeSet, func(), error) {
	if cfg.Storage.InMemory {
		return &storeSet{
			sources:      memstorage.NewSourceStore(),
			jobs:         memstorage.NewJobStore(),
			fingerprints: memstorage.NewFingerprintStore(),
			catalog:      memstorage.NewCatalogStore(),
		}, func() {}, nil
	}

	store, err := sqlite.NewStore(cfg.Storage.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open metadata store: %w", err)
	}

	return &storeSet{
		sources:      store.SourceStore(),
		jobs:         store.JobStore(),
		fingerprints: store.FingerprintStore(),
		catalog:      store.CatalogStore(),
	}, func() { _ = store.Close() }, nil
}

func buildEmbedder(cfg file.Config) (driven.Embedder, error) {
	if cfg.OpenAI.APIKey == "" {
		return nil, nil
	}

	embedder, err := openai.NewEmbedder(openai.Config{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("configure embedder: %w", err)
	}
	return embedder, nil
}

func buildVectors(ctx context.Context, cfg file.Config, embedder driven.Embedder) (driven.VectorIndex, error) {
	if cfg.Qdrant.InMemory {
		return vecmemory.NewIndex(), nil
	}
	if embedder == nil {
		// No embedder means no vectors to store or query.
		return nil, nil
	}

	index, err := qdrant.NewIndex(ctx, qdrant.Config{
		BaseURL:    cfg.Qdrant.BaseURL,
		APIKey:     cfg.Qdrant.APIKey,
		Collection: cfg.Qdrant.Collection,
		Dimensions: embedder.Dimensions(),
	})
	if err != nil {
		return nil, fmt.Errorf("connect vector index: %w", err)
	}
	return index, nil
}

func buildLLM(cfg file.Config) (driven.QueryExpander, driven.Summarizer, error) {
	if cfg.Anthropic.Disabled || cfg.Anthropic.APIKey == "" {
		return nil, nil, nil
	}

	client, err := anthropic.NewClient(anthropic.Config{
		APIKey:  cfg.Anthropic.APIKey,
		BaseURL: cfg.Anthropic.BaseURL,
		Model:   cfg.Anthropic.Model,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("configure llm client: %w", err)
	}
	return client, client, nil
}

func buildFetcher(cfg file.Config) (driven.Fetcher, error) {
	if cfg.Firecrawl.APIKey == "" {
		return nil, nil
	}

	fetcher, err := firecrawl.NewFetcher(firecrawl.Config{
		APIKey:  cfg.Firecrawl.APIKey,
		BaseURL: cfg.Firecrawl.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("configure fetcher: %w", err)
	}
	return fetcher, nil
}
