// Package firecrawl provides a Fetcher adapter backed by the Firecrawl
// crawling API. A crawl is asynchronous on the Firecrawl side: a job is
// started, polled until it settles, and its pages collected.
package firecrawl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/quarrylabs/quarry/internal/core/domain"
	"github.com/quarrylabs/quarry/internal/core/ports/driven"
	"github.com/quarrylabs/quarry/internal/logger"
)

// Ensure Fetcher implements the interface.
var _ driven.Fetcher = (*Fetcher)(nil)

// Default configuration values.
const (
	DefaultBaseURL      = "https://api.firecrawl.dev"
	DefaultTimeout      = 60 * time.Second
	DefaultPollInterval = 3 * time.Second
	DefaultPageLimit    = 100
	DefaultMaxDepth     = 3
)

// Config holds configuration for the Firecrawl fetcher.
type Config struct {
	// APIKey is the Firecrawl API key (required).
	APIKey string

	// BaseURL is the API base URL (default: https://api.firecrawl.dev).
	BaseURL string

	// Timeout is the per-request timeout (default: 60s). The crawl as a
	// whole is bounded by the caller's context, not this timeout.
	Timeout time.Duration

	// PollInterval is how often a running crawl is polled (default: 3s).
	PollInterval time.Duration
}

// Fetcher crawls web sources through the Firecrawl API.
type Fetcher struct {
	client       *http.Client
	baseURL      string
	apiKey       string
	pollInterval time.Duration
}

// crawlRequest is the Firecrawl crawl start request format.
type crawlRequest struct {
	URL           string        `json:"url"`
	Limit         int           `json:"limit,omitempty"`
	MaxDepth      int           `json:"maxDepth,omitempty"`
	IncludePaths  []string      `json:"includePaths,omitempty"`
	ExcludePaths  []string      `json:"excludePaths,omitempty"`
	ScrapeOptions scrapeOptions `json:"scrapeOptions"`
}

type scrapeOptions struct {
	Formats []string `json:"formats"`
}

// crawlStartResponse is the crawl start response format.
type crawlStartResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Error   string `json:"error,omitempty"`
}

// crawlStatusResponse is the crawl status response format.
type crawlStatusResponse struct {
	Status string      `json:"status"`
	Total  int         `json:"total"`
	Next   string      `json:"next,omitempty"`
	Data   []crawlPage `json:"data"`
	Error  string      `json:"error,omitempty"`
}

// crawlPage is one crawled page.
type crawlPage struct {
	Markdown string `json:"markdown"`
	Metadata struct {
		Title     string `json:"title"`
		SourceURL string `json:"sourceURL"`
	} `json:"metadata"`
}

// NewFetcher creates a new Firecrawl fetcher.
func NewFetcher(cfg Config) (*Fetcher, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("firecrawl: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	return &Fetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		pollInterval: cfg.PollInterval,
	}, nil
}

// Fetch crawls the source and returns its pages. The crawl respects
// the source's CrawlConfig bounds; zeroes fall back to the Firecrawl
// defaults.
func (f *Fetcher) Fetch(ctx context.Context, source domain.Source) ([]domain.RawDocument, error) {
	crawlID, err := f.startCrawl(ctx, source)
	if err != nil {
		return nil, err
	}
	logger.Debug("firecrawl: started crawl %s for %s", crawlID, source.ID)

	pages, err := f.waitForCrawl(ctx, source, crawlID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	docs := make([]domain.RawDocument, 0, len(pages))
	for _, page := range pages {
		if page.Markdown == "" {
			continue
		}
		url := page.Metadata.SourceURL
		if url == "" {
			url = source.URL
		}
		docs = append(docs, domain.RawDocument{
			SourceID:  source.ID,
			URL:       url,
			Content:   page.Markdown,
			Title:     page.Metadata.Title,
			FetchedAt: now,
		})
	}
	return docs, nil
}

// startCrawl submits the crawl job and returns its id.
func (f *Fetcher) startCrawl(ctx context.Context, source domain.Source) (string, error) {
	limit := source.Crawl.PageLimit
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	depth := source.Crawl.MaxDepth
	if depth <= 0 {
		depth = DefaultMaxDepth
	}

	reqBody := crawlRequest{
		URL:           source.URL,
		Limit:         limit,
		MaxDepth:      depth,
		IncludePaths:  source.Crawl.IncludePatterns,
		ExcludePaths:  source.Crawl.ExcludePatterns,
		ScrapeOptions: scrapeOptions{Formats: []string{"markdown"}},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	body, status, err := f.do(ctx, source, http.MethodPost, f.baseURL+"/v1/crawl", jsonBody)
	if err != nil {
		return "", err
	}

	var startResp crawlStartResponse
	if err := json.Unmarshal(body, &startResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if status != http.StatusOK || !startResp.Success || startResp.ID == "" {
		return "", f.apiError(source, status, startResp.Error, body)
	}
	return startResp.ID, nil
}

// waitForCrawl polls the crawl until it settles, then drains any
// paginated result pages.
func (f *Fetcher) waitForCrawl(ctx context.Context, source domain.Source, crawlID string) ([]crawlPage, error) {
	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()

	statusURL := f.baseURL + "/v1/crawl/" + crawlID
	for {
		body, status, err := f.do(ctx, source, http.MethodGet, statusURL, nil)
		if err != nil {
			return nil, err
		}

		var statusResp crawlStatusResponse
		if err := json.Unmarshal(body, &statusResp); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		if status != http.StatusOK {
			return nil, f.apiError(source, status, statusResp.Error, body)
		}

		switch statusResp.Status {
		case "completed":
			return f.drainPages(ctx, source, statusResp)
		case "failed", "cancelled":
			return nil, &domain.FetchError{
				Source: source.ID,
				Reason: domain.FetchReasonUnreachable,
				Err:    fmt.Errorf("crawl %s: %s", statusResp.Status, statusResp.Error),
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// drainPages follows the pagination cursor of a completed crawl.
func (f *Fetcher) drainPages(ctx context.Context, source domain.Source, first crawlStatusResponse) ([]crawlPage, error) {
	pages := first.Data
	next := first.Next

	for next != "" {
		body, status, err := f.do(ctx, source, http.MethodGet, next, nil)
		if err != nil {
			return nil, err
		}

		var page crawlStatusResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		if status != http.StatusOK {
			return nil, f.apiError(source, status, page.Error, body)
		}

		pages = append(pages, page.Data...)
		next = page.Next
	}
	return pages, nil
}

// do issues one API request and reads its body. Transport failures are
// mapped to FetchError reasons.
func (f *Fetcher) do(ctx context.Context, source domain.Source, method, url string, jsonBody []byte) ([]byte, int, error) {
	var reader io.Reader = http.NoBody
	if jsonBody != nil {
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.apiKey)

	resp, err := f.client.Do(req)
	if err != nil {
		reason := domain.FetchReasonUnreachable
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			reason = domain.FetchReasonTimeout
		}
		if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
			return nil, 0, ctx.Err()
		}
		return nil, 0, &domain.FetchError{Source: source.ID, Reason: reason, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// apiError maps a Firecrawl API rejection onto the failure taxonomy.
func (f *Fetcher) apiError(source domain.Source, status int, message string, body []byte) error {
	if message == "" {
		message = string(body)
	}
	err := fmt.Errorf("firecrawl error (status %d): %s", status, message)

	switch status {
	case http.StatusPaymentRequired, http.StatusForbidden, http.StatusUnauthorized:
		return &domain.FetchError{Source: source.ID, Reason: domain.FetchReasonDisallowed, Err: err}
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", domain.ErrRateLimited, err)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return &domain.FetchError{Source: source.ID, Reason: domain.FetchReasonTimeout, Err: err}
	default:
		return &domain.FetchError{Source: source.ID, Reason: domain.FetchReasonUnreachable, Err: err}
	}
}
