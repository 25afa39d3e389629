// Package file loads quarry configuration from a TOML file.
//
// Configuration lives at ~/.quarry/config.toml by default. API keys are
// never written to the file; they are read from the environment so the
// config file can be checked into dotfiles safely.
package file

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Config is the full quarry configuration tree.
type Config struct {
	Storage   StorageConfig   `toml:"storage"`
	Firecrawl FirecrawlConfig `toml:"firecrawl"`
	OpenAI    OpenAIConfig    `toml:"openai"`
	Anthropic AnthropicConfig `toml:"anthropic"`
	Qdrant    QdrantConfig    `toml:"qdrant"`
	Queue     QueueConfig     `toml:"queue"`
	Retriever RetrieverConfig `toml:"retriever"`
	Chunker   ChunkerConfig   `toml:"chunker"`
}

// StorageConfig selects the metadata backend.
type StorageConfig struct {
	// DataDir is where the SQLite database lives. Empty defaults to
	// ~/.quarry/data.
	DataDir string `toml:"data_dir"`

	// InMemory keeps all metadata in process memory. Useful for tests
	// and throwaway runs; nothing survives exit.
	InMemory bool `toml:"in_memory"`
}

// FirecrawlConfig configures the crawl adapter.
type FirecrawlConfig struct {
	BaseURL string `toml:"base_url"`

	// APIKey is read from FIRECRAWL_API_KEY, never from the file.
	APIKey string `toml:"-"`
}

// OpenAIConfig configures the embedding adapter.
type OpenAIConfig struct {
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`

	// APIKey is read from OPENAI_API_KEY, never from the file.
	APIKey string `toml:"-"`
}

// AnthropicConfig configures query expansion and summarization.
type AnthropicConfig struct {
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`

	// Disabled turns off LLM-backed expansion and summarization.
	// Retrieval falls back to the raw query and summaries fall back to
	// the local keyword extractor.
	Disabled bool `toml:"disabled"`

	// APIKey is read from ANTHROPIC_API_KEY, never from the file.
	APIKey string `toml:"-"`
}

// QdrantConfig configures the vector index adapter.
type QdrantConfig struct {
	BaseURL    string `toml:"base_url"`
	Collection string `toml:"collection"`

	// InMemory uses the process-local cosine index instead of Qdrant.
	InMemory bool `toml:"in_memory"`

	// APIKey is read from QDRANT_API_KEY, never from the file.
	APIKey string `toml:"-"`
}

// QueueConfig sizes the ingestion worker pool.
type QueueConfig struct {
	Workers int `toml:"workers"`
	Depth   int `toml:"depth"`
}

// RetrieverConfig sets retrieval defaults. CLI flags override per call.
type RetrieverConfig struct {
	TopN               int     `toml:"top_n"`
	Expansions         int     `toml:"expansions"`
	CandidatesPerQuery int     `toml:"candidates_per_query"`
	RelevanceFloor     float64 `toml:"relevance_floor"`
}

// ChunkerConfig sets chunking parameters.
type ChunkerConfig struct {
	TokenBudget  int     `toml:"token_budget"`
	OverlapRatio float64 `toml:"overlap_ratio"`
}

// Default returns a Config with every field at its default.
func Default() Config {
	return Config{
		Queue: QueueConfig{
			Workers: 2,
			Depth:   64,
		},
		Retriever: RetrieverConfig{
			TopN:               8,
			Expansions:         3,
			CandidatesPerQuery: 15,
			RelevanceFloor:     0.3,
		},
		Chunker: ChunkerConfig{
			TokenBudget:  500,
			OverlapRatio: 0.1,
		},
	}
}

// Load reads configuration from path, layering file values over
// defaults and environment keys over both. A missing file is not an
// error; defaults apply. If path is empty, ~/.quarry/config.toml is
// used.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return cfg, fmt.Errorf("resolve home dir: %w", err)
		}
		path = filepath.Join(home, ".quarry", "config.toml")
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// No file yet, defaults apply.
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	default:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overlays environment variables. Keys always come from the
// environment; endpoint overrides are for tests and local stacks.
func (c *Config) applyEnv() {
	c.Firecrawl.APIKey = os.Getenv("FIRECRAWL_API_KEY")
	c.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	c.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	c.Qdrant.APIKey = os.Getenv("QDRANT_API_KEY")

	if v := os.Getenv("QUARRY_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("QDRANT_URL"); v != "" {
		c.Qdrant.BaseURL = v
	}
}

// Save writes the configuration to path with restricted permissions.
// API keys are excluded by the struct tags.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
