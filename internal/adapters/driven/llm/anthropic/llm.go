// Package anthropic provides query expansion and source summarization
// adapters using the Anthropic API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/quarrylabs/quarry/internal/core/domain"
	"github.com/quarrylabs/quarry/internal/core/ports/driven"
)

// Ensure Client implements the interfaces.
var (
	_ driven.QueryExpander = (*Client)(nil)
	_ driven.Summarizer    = (*Client)(nil)
)

// Default configuration values.
const (
	DefaultBaseURL = "https://api.anthropic.com"
	DefaultModel   = "claude-3-5-haiku-latest"
	DefaultTimeout = 120 * time.Second

	// anthropicVersion is the required API version header.
	anthropicVersion = "2023-06-01"

	// keywordsPrefix marks the keyword line in a summary response.
	keywordsPrefix = "keywords:"
)

// Config holds configuration for the Anthropic client.
type Config struct {
	// APIKey is the Anthropic API key (required).
	APIKey string

	// BaseURL is the API base URL (default: https://api.anthropic.com).
	BaseURL string

	// Model is the model to use (default: claude-3-5-haiku-latest).
	Model string

	// Timeout is the request timeout (default: 120s).
	Timeout time.Duration
}

// Client provides query expansion and summarization using the
// Anthropic API.
type Client struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

// messagesRequest is the Anthropic /v1/messages request format.
type messagesRequest struct {
	Model       string            `json:"model"`
	Messages    []messagesMessage `json:"messages"`
	MaxTokens   int               `json:"max_tokens"`
	System      string            `json:"system,omitempty"`
	Temperature float64           `json:"temperature,omitempty"`
}

// messagesMessage is the Anthropic message format.
type messagesMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// messagesResponse is the Anthropic /v1/messages response format.
type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewClient creates a new Anthropic client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Client{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}, nil
}

// Expand rewrites the question into up to n diverse search queries.
func (c *Client) Expand(ctx context.Context, question string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}

	system := "You rewrite a user question into alternative search queries for a documentation " +
		"search engine. Answer with one query per line, no numbering, no commentary."
	prompt := fmt.Sprintf("Rewrite this question into %d diverse search queries:\n\n%s", n, question)

	text, err := c.sendMessage(ctx, system, prompt, 512)
	if err != nil {
		return nil, err
	}

	var queries []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*0123456789. "))
		if line == "" {
			continue
		}
		queries = append(queries, line)
		if len(queries) == n {
			break
		}
	}
	return queries, nil
}

// Summarize describes a source given a sample of its chunk texts. The
// model answers with a short paragraph followed by a keyword line.
func (c *Client) Summarize(ctx context.Context, sourceID string, sample []string) (string, []string, error) {
	system := "You summarize documentation for a search catalog. Answer with a short paragraph " +
		"describing what the content covers, then a final line starting with 'Keywords:' " +
		"listing up to ten comma-separated keywords."
	prompt := fmt.Sprintf("Source: %s\n\nExcerpts:\n\n%s", sourceID, strings.Join(sample, "\n\n---\n\n"))

	text, err := c.sendMessage(ctx, system, prompt, 1024)
	if err != nil {
		return "", nil, err
	}

	summary, keywords := parseSummary(text)
	return summary, keywords, nil
}

// parseSummary splits the model answer into summary text and keywords.
// A missing keyword line leaves the whole answer as the summary.
func parseSummary(text string) (string, []string) {
	var summaryLines, keywords []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToLower(trimmed), keywordsPrefix) {
			raw := trimmed[len(keywordsPrefix):]
			for _, kw := range strings.Split(raw, ",") {
				kw = strings.ToLower(strings.TrimSpace(kw))
				if kw != "" {
					keywords = append(keywords, kw)
				}
			}
			continue
		}
		summaryLines = append(summaryLines, line)
	}
	return strings.TrimSpace(strings.Join(summaryLines, "\n")), keywords
}

// sendMessage posts one user message and returns the text answer.
func (c *Client) sendMessage(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
	reqBody := messagesRequest{
		Model:     c.model,
		Messages:  []messagesMessage{{Role: "user", Content: prompt}},
		MaxTokens: maxTokens,
		System:    system,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/v1/messages",
		bytes.NewReader(jsonBody),
	)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var msgResp messagesResponse
	if err := json.Unmarshal(body, &msgResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		message := string(body)
		if msgResp.Error != nil {
			message = msgResp.Error.Message
		}
		return "", statusError(resp.StatusCode, message)
	}
	if msgResp.Error != nil {
		return "", fmt.Errorf("anthropic error: %s", msgResp.Error.Message)
	}

	if len(msgResp.Content) == 0 {
		return "", fmt.Errorf("anthropic: empty response")
	}

	var sb strings.Builder
	for _, block := range msgResp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

// statusError maps an API status code onto the domain error taxonomy.
func statusError(status int, message string) error {
	switch status {
	case http.StatusTooManyRequests:
		return fmt.Errorf("anthropic error (status %d): %s: %w", status, message, domain.ErrRateLimited)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fmt.Errorf("anthropic error (status %d): %s: %w", status, message, domain.ErrInvalidInput)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return fmt.Errorf("anthropic error (status %d): %s: %w", status, message, domain.ErrTimeout)
	default:
		return fmt.Errorf("anthropic error (status %d): %s", status, message)
	}
}
