package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrylabs/quarry/internal/core/domain"
)

func messagesStub(t *testing.T, status int, text string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("x-api-key"))

		w.WriteHeader(status)
		resp := map[string]any{
			"content": []map[string]string{{"type": "text", "text": text}},
		}
		if status != http.StatusOK {
			resp = map[string]any{"error": map[string]string{"type": "api_error", "message": text}}
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

// TestExpand tests line parsing of expansion answers
func TestExpand(t *testing.T) {
	srv := messagesStub(t, http.StatusOK, "1. how to install quarry\n- quarry setup guide\n\nquarry getting started\n")
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	queries, err := client.Expand(context.Background(), "how do I install it?", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"how to install quarry",
		"quarry setup guide",
		"quarry getting started",
	}, queries)
}

// TestExpand_RateLimited tests 429 maps to the retryable sentinel
func TestExpand_RateLimited(t *testing.T) {
	srv := messagesStub(t, http.StatusTooManyRequests, "overloaded")
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Expand(context.Background(), "question", 2)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

// TestSummarize tests summary and keyword line parsing
func TestSummarize(t *testing.T) {
	srv := messagesStub(t, http.StatusOK,
		"Covers installation and configuration of the tool.\n\nKeywords: install, Configuration, setup")
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	summary, keywords, err := client.Summarize(context.Background(), "https://docs.example.com", []string{"excerpt"})
	require.NoError(t, err)
	assert.Equal(t, "Covers installation and configuration of the tool.", summary)
	assert.Equal(t, []string{"install", "configuration", "setup"}, keywords)
}

// TestParseSummary_NoKeywordLine tests the whole answer falls back to the summary
func TestParseSummary_NoKeywordLine(t *testing.T) {
	summary, keywords := parseSummary("Just a description with no keyword line.")
	assert.Equal(t, "Just a description with no keyword line.", summary)
	assert.Empty(t, keywords)
}
