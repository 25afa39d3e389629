package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/quarrylabs/quarry/internal/core/domain"
	"github.com/quarrylabs/quarry/internal/core/ports/driven"
	"github.com/quarrylabs/quarry/internal/core/ports/driving"
	"github.com/quarrylabs/quarry/internal/logger"
)

// RetrieverConfig holds the retrieval defaults applied when a request
// leaves an option zero.
type RetrieverConfig struct {
	// TopN is the default number of passages returned.
	TopN int

	// Expansions is the default number of sub-queries requested from
	// the expander.
	Expansions int

	// CandidatesPerQuery is the default k per similarity search.
	CandidatesPerQuery int

	// RelevanceFloor drops passages scoring below it. A query where
	// nothing clears the floor yields an empty result.
	RelevanceFloor float64
}

// DefaultRetrieverConfig returns the standard retrieval tuning.
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		TopN:               8,
		Expansions:         3,
		CandidatesPerQuery: 15,
		RelevanceFloor:     0.3,
	}
}

// RetrievalService answers questions from the indexed corpus: it
// expands the query, embeds and searches every sub-query concurrently,
// fuses the hits by maximum score, and returns the top passages.
type RetrievalService struct {
	embedder driven.Embedder
	vectors  driven.VectorIndex
	expander driven.QueryExpander
	gates    *Gates
	cfg      RetrieverConfig
}

var _ driving.Retriever = (*RetrievalService)(nil)

// NewRetrievalService creates a retrieval service. The expander may be
// nil, in which case every query runs unexpanded.
func NewRetrievalService(embedder driven.Embedder, vectors driven.VectorIndex, expander driven.QueryExpander, gates *Gates, cfg RetrieverConfig) *RetrievalService {
	if gates == nil {
		gates = DefaultGates()
	}
	defaults := DefaultRetrieverConfig()
	if cfg.TopN <= 0 {
		cfg.TopN = defaults.TopN
	}
	if cfg.Expansions < 0 {
		cfg.Expansions = defaults.Expansions
	}
	if cfg.CandidatesPerQuery <= 0 {
		cfg.CandidatesPerQuery = defaults.CandidatesPerQuery
	}

	return &RetrievalService{
		embedder: embedder,
		vectors:  vectors,
		expander: expander,
		gates:    gates,
		cfg:      cfg,
	}
}

// Retrieve runs the full retrieval flow for one question. An empty
// result is a valid answer; an empty query is domain.ErrInvalidInput.
func (s *RetrievalService) Retrieve(ctx context.Context, query string, opts driving.RetrieveOptions) (*domain.RetrievalResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("retrieve: empty query: %w", domain.ErrInvalidInput)
	}
	if s.embedder == nil {
		return nil, domain.ErrEmbedderUnavailable
	}
	if s.vectors == nil {
		return nil, domain.ErrVectorIndexUnavailable
	}

	req := s.buildRequest(ctx, query, opts)
	logger.Debug("retrieve: searching %d sub-queries for %q", len(req.SubQueries), query)

	hits, err := s.searchAll(ctx, req, opts.SourceID)
	if err != nil {
		return nil, err
	}

	passages := fuse(hits, s.cfg.RelevanceFloor)
	if len(passages) > req.TopN {
		passages = passages[:req.TopN]
	}

	return &domain.RetrievalResult{
		Passages:   passages,
		SubQueries: req.SubQueries,
	}, nil
}

// buildRequest expands the query best-effort. Expansion failure never
// fails retrieval; the original query alone is searched instead.
func (s *RetrievalService) buildRequest(ctx context.Context, query string, opts driving.RetrieveOptions) domain.RetrievalRequest {
	req := domain.RetrievalRequest{
		Query:              query,
		SubQueries:         []string{query},
		TopN:               opts.TopN,
		CandidatesPerQuery: opts.CandidatesPerQuery,
	}
	if req.TopN <= 0 {
		req.TopN = s.cfg.TopN
	}
	if req.CandidatesPerQuery <= 0 {
		req.CandidatesPerQuery = s.cfg.CandidatesPerQuery
	}

	n := opts.Expansions
	if n <= 0 {
		n = s.cfg.Expansions
	}
	if s.expander == nil || n == 0 {
		return req
	}

	expanded, err := s.expander.Expand(ctx, query, n)
	if err != nil {
		logger.Warn("retrieve: query expansion failed, using original query: %v", err)
		return req
	}

	seen := map[string]bool{query: true}
	for _, sub := range expanded {
		sub = strings.TrimSpace(sub)
		if sub == "" || seen[sub] {
			continue
		}
		seen[sub] = true
		req.SubQueries = append(req.SubQueries, sub)
	}
	return req
}

// searchAll embeds and searches every sub-query concurrently. A
// sub-query failure fails the whole retrieval; partial answers would be
// silently worse than an error.
func (s *RetrievalService) searchAll(ctx context.Context, req domain.RetrievalRequest, sourceID string) ([][]driven.VectorHit, error) {
	hits := make([][]driven.VectorHit, len(req.SubQueries))
	errs := make([]error, len(req.SubQueries))

	var wg sync.WaitGroup
	for i, sub := range req.SubQueries {
		wg.Add(1)
		go func(i int, sub string) {
			defer wg.Done()
			hits[i], errs[i] = s.searchOne(ctx, sub, req.CandidatesPerQuery, sourceID)
		}(i, sub)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("search %q: %w", req.SubQueries[i], err)
		}
	}
	return hits, nil
}

func (s *RetrievalService) searchOne(ctx context.Context, query string, k int, sourceID string) ([]driven.VectorHit, error) {
	var embedding []float32
	err := s.gates.Embed.Do(ctx, func(ctx context.Context) error {
		vectors, embedErr := s.embedder.EmbedBatch(ctx, []string{query})
		if embedErr != nil {
			return embedErr
		}
		if len(vectors) != 1 {
			return fmt.Errorf("got %d vectors for one query", len(vectors))
		}
		embedding = vectors[0]
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var hits []driven.VectorHit
	err = s.gates.Vector.Do(ctx, func(ctx context.Context) error {
		var queryErr error
		hits, queryErr = s.vectors.Query(ctx, embedding, k, sourceID)
		return queryErr
	})
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	return hits, nil
}

// fuse merges hits across sub-queries. A chunk matched by several
// sub-queries keeps its maximum score, never a sum, so a passage cannot
// outrank a better match just by matching more rephrasings. Results are
// ordered by descending score with (source id, ordinal) breaking ties.
func fuse(hitSets [][]driven.VectorHit, floor float64) []domain.Passage {
	best := make(map[string]domain.Passage)
	for _, hits := range hitSets {
		for _, hit := range hits {
			if hit.Score < floor {
				continue
			}
			cur, ok := best[hit.ChunkID]
			if !ok || hit.Score > cur.Score {
				best[hit.ChunkID] = domain.Passage{
					ChunkID:  hit.ChunkID,
					Text:     hit.Text,
					Score:    hit.Score,
					SourceID: hit.SourceID,
					URL:      hit.URL,
					Ordinal:  hit.Ordinal,
				}
			}
		}
	}

	passages := make([]domain.Passage, 0, len(best))
	for _, p := range best {
		passages = append(passages, p)
	}
	sort.Slice(passages, func(i, j int) bool {
		if passages[i].Score != passages[j].Score {
			return passages[i].Score > passages[j].Score
		}
		if passages[i].SourceID != passages[j].SourceID {
			return passages[i].SourceID < passages[j].SourceID
		}
		return passages[i].Ordinal < passages[j].Ordinal
	})
	return passages
}
