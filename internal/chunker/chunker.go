// Package chunker splits fetched documents into token-bounded,
// boundary-aware chunks.
//
// Text is cut at semantic boundaries (headings, paragraph breaks,
// fenced code blocks) and greedily packed up to a token budget. A
// fenced code block is an atomic unit: if one alone exceeds the budget
// it is kept whole and the chunk exceeds the limit rather than the
// block being corrupted. Adjacent chunks share a configurable overlap
// so context is not lost at cut points.
//
// Chunking is a pure function of the document text and the
// configuration: identical input always yields identical chunk
// boundaries, ordinals, fingerprints, and IDs.
package chunker

import (
	"strings"

	"github.com/quarrylabs/quarry/internal/core/domain"
	"github.com/quarrylabs/quarry/internal/fingerprint"
)

// DefaultTokenBudget is the default maximum tokens per chunk.
const DefaultTokenBudget = 500

// DefaultOverlapFraction is the default overlap between adjacent
// chunks, as a fraction of the token budget.
const DefaultOverlapFraction = 0.1

// Engine splits document content into chunks.
type Engine struct {
	budget  int
	overlap float64
}

// Option configures the chunking engine.
type Option func(*Engine)

// WithTokenBudget sets the maximum tokens per chunk.
func WithTokenBudget(budget int) Option {
	return func(e *Engine) {
		if budget > 0 {
			e.budget = budget
		}
	}
}

// WithOverlapFraction sets the adjacent-chunk overlap as a fraction of
// the token budget. Values outside [0, 0.5) are ignored.
func WithOverlapFraction(f float64) Option {
	return func(e *Engine) {
		if f >= 0 && f < 0.5 {
			e.overlap = f
		}
	}
}

// New creates a chunking engine with the given options.
func New(opts ...Option) *Engine {
	e := &Engine{
		budget:  DefaultTokenBudget,
		overlap: DefaultOverlapFraction,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TokenBudget returns the configured per-chunk token budget.
func (e *Engine) TokenBudget() int {
	return e.budget
}

// OverlapTokens returns the token length of the overlap carried between
// adjacent chunks.
func (e *Engine) OverlapTokens() int {
	return int(float64(e.budget) * e.overlap)
}

// Chunk splits the document into an ordered sequence of chunks.
// Empty or whitespace-only content produces zero chunks, not an error.
func (e *Engine) Chunk(doc domain.RawDocument) []domain.Chunk {
	blocks := parseBlocks(doc.Content)
	if len(blocks) == 0 {
		return nil
	}

	// tokens counts net new content only; the overlap carried from the
	// previous chunk rides on top, so a chunk's total token count can
	// reach budget + overlap.
	var (
		chunks  []domain.Chunk
		current []string
		tokens  int
		carry   string // overlap tail from the previous chunk
	)

	flush := func() {
		if len(current) == 0 {
			return
		}
		text := strings.Join(current, "\n\n")
		chunks = append(chunks, e.newChunk(doc, len(chunks), text))
		carry = tailTokens(text, e.OverlapTokens())
		current = current[:0]
		tokens = 0
	}

	push := func(text string, n int) {
		if len(current) == 0 && carry != "" {
			current = append(current, carry)
		}
		current = append(current, text)
		tokens += n
	}

	for _, b := range blocks {
		switch {
		case tokens+b.tokens <= e.budget:
			push(b.text, b.tokens)

		case b.tokens <= e.budget:
			flush()
			push(b.text, b.tokens)

		case b.atomic:
			// Oversized code block: kept whole, soft limit exceeded.
			flush()
			chunks = append(chunks, e.newChunk(doc, len(chunks), b.text))
			carry = ""

		default:
			// Oversized paragraph: fall back to word-boundary splits.
			for _, piece := range splitWords(b.text, e.budget) {
				n := EstimateTokens(piece)
				if tokens+n > e.budget {
					flush()
				}
				push(piece, n)
			}
		}

		if tokens >= e.budget {
			flush()
		}
	}
	flush()

	return chunks
}

// newChunk builds a fully-formed chunk with its deterministic identity.
func (e *Engine) newChunk(doc domain.RawDocument, ordinal int, text string) domain.Chunk {
	fp := fingerprint.Hash(text)
	return domain.Chunk{
		ID:          domain.ChunkID(doc.SourceID, doc.URL, ordinal, fp),
		SourceID:    doc.SourceID,
		URL:         doc.URL,
		Ordinal:     ordinal,
		TokenCount:  EstimateTokens(text),
		Text:        text,
		Fingerprint: fp,
	}
}

// tailTokens returns the trailing words of text amounting to roughly n
// tokens, cut at a word boundary. Returns "" for n <= 0.
func tailTokens(text string, n int) string {
	if n <= 0 {
		return ""
	}

	words := strings.Fields(text)
	total := 0
	i := len(words)
	for i > 0 {
		total += EstimateTokens(words[i-1])
		if total > n {
			break
		}
		i--
	}
	if i == len(words) {
		return ""
	}
	return strings.Join(words[i:], " ")
}

// splitWords cuts text into pieces of at most budget tokens at word
// boundaries. Used only for pathological paragraphs with no internal
// structure to cut at.
func splitWords(text string, budget int) []string {
	words := strings.Fields(text)

	var (
		pieces  []string
		current []string
		tokens  int
	)
	for _, w := range words {
		n := EstimateTokens(w)
		if tokens+n > budget && len(current) > 0 {
			pieces = append(pieces, strings.Join(current, " "))
			current = current[:0]
			tokens = 0
		}
		current = append(current, w)
		tokens += n
	}
	if len(current) > 0 {
		pieces = append(pieces, strings.Join(current, " "))
	}
	return pieces
}
