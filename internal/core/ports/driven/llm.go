package driven

import "context"

// QueryExpander expands one user question into multiple search queries.
//
// Expansion is best-effort: it may return fewer than n queries, zero
// queries, or an error. Retrieval never blocks on expansion failure and
// falls back to the original question alone.
type QueryExpander interface {
	// Expand returns up to n sub-queries for the question.
	Expand(ctx context.Context, question string, n int) ([]string, error)
}

// Summarizer generates the catalog summary and keyword set for a
// freshly ingested source. The summary text itself is produced by an
// external model; the pipeline only stores the result.
type Summarizer interface {
	// Summarize describes the source given a sample of its chunk texts.
	Summarize(ctx context.Context, sourceID string, sample []string) (summary string, keywords []string, err error)
}
