package domain

import "time"

// RetrievalRequest holds one user query and its expansions. Ephemeral.
type RetrievalRequest struct {
	// Query is the original user question.
	Query string

	// SubQueries are the expanded queries actually searched. Always
	// contains at least the original query.
	SubQueries []string

	// TopN is the number of passages requested.
	TopN int

	// CandidatesPerQuery is how many candidates each sub-query search
	// requests from the vector index.
	CandidatesPerQuery int
}

// Passage is one retrieval hit: a chunk with its fused score.
type Passage struct {
	// ChunkID identifies the matched chunk.
	ChunkID string

	// Text is the chunk content.
	Text string

	// Score is the fused similarity score. When a chunk matches several
	// sub-queries it carries the maximum, never the sum.
	Score float64

	// SourceID and URL locate the passage's origin.
	SourceID string
	URL      string

	// Ordinal is the chunk position, used to break score ties
	// deterministically.
	Ordinal int
}

// RetrievalResult is an ordered, deduplicated sequence of passages.
// Empty is a valid answer, not an error: it means no indexed content
// cleared the relevance floor.
type RetrievalResult struct {
	// Passages are ordered by descending fused score.
	Passages []Passage

	// SubQueries are the queries that were actually searched.
	SubQueries []string
}

// Empty reports whether the retrieval found nothing relevant.
func (r *RetrievalResult) Empty() bool {
	return len(r.Passages) == 0
}

// CatalogEntry is a per-source summary plus keyword set. The assistant
// layer reads the catalog to decide whether retrieval is worth invoking
// for a question.
type CatalogEntry struct {
	// SourceID identifies the summarized source.
	SourceID string

	// Summary is the generated description of the source's content.
	Summary string

	// Keywords is the keyword set extracted alongside the summary.
	Keywords []string

	// UpdatedAt is the last write time. Last write wins per source id.
	UpdatedAt time.Time
}
