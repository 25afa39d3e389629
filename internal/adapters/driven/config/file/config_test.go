package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoad_MissingFile tests that defaults apply when no file exists
func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Queue.Workers)
	assert.Equal(t, 8, cfg.Retriever.TopN)
	assert.InDelta(t, 0.3, cfg.Retriever.RelevanceFloor, 1e-6)
	assert.Equal(t, 500, cfg.Chunker.TokenBudget)
}

// TestLoad_FileOverridesDefaults tests TOML values layering over defaults
func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[storage]
in_memory = true

[queue]
workers = 4

[retriever]
top_n = 12

[anthropic]
model = "claude-3-5-sonnet-latest"
disabled = true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Storage.InMemory)
	assert.Equal(t, 4, cfg.Queue.Workers)
	assert.Equal(t, 12, cfg.Retriever.TopN)
	assert.Equal(t, 64, cfg.Queue.Depth)
	assert.Equal(t, "claude-3-5-sonnet-latest", cfg.Anthropic.Model)
	assert.True(t, cfg.Anthropic.Disabled)
}

// TestLoad_EnvKeys tests that API keys come from the environment
func TestLoad_EnvKeys(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("FIRECRAWL_API_KEY", "fc-test")
	t.Setenv("QDRANT_URL", "http://qdrant.internal:6333")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
	assert.Equal(t, "fc-test", cfg.Firecrawl.APIKey)
	assert.Equal(t, "http://qdrant.internal:6333", cfg.Qdrant.BaseURL)
}

// TestLoad_BadTOML tests that a malformed file is reported
func TestLoad_BadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[storage\nbroken"), 0600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

// TestSave_RoundTrip tests writing and re-reading a config
func TestSave_RoundTrip(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.Queue.Workers = 8
	cfg.OpenAI.APIKey = "sk-should-not-persist"
	require.NoError(t, Save(path, cfg))

	reread, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, reread.Queue.Workers)
	assert.Empty(t, reread.OpenAI.APIKey)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-should-not-persist")
}
