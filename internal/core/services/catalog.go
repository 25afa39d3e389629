package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/quarrylabs/quarry/internal/core/domain"
	"github.com/quarrylabs/quarry/internal/core/ports/driven"
	"github.com/quarrylabs/quarry/internal/core/ports/driving"
)

// CatalogService exposes catalog entries to callers deciding whether a
// source is worth searching.
type CatalogService struct {
	store driven.CatalogStore
}

var _ driving.Catalog = (*CatalogService)(nil)

// NewCatalogService creates a catalog service.
func NewCatalogService(store driven.CatalogStore) *CatalogService {
	return &CatalogService{store: store}
}

// List returns all catalog entries.
func (s *CatalogService) List(ctx context.Context) ([]domain.CatalogEntry, error) {
	entries, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	return entries, nil
}

// localKeywordCount is how many keywords the fallback summary extracts.
const localKeywordCount = 10

// LocalSummary builds a catalog summary without an external model:
// a one-line description of the source plus its most frequent
// non-stopword terms.
func LocalSummary(source domain.Source, sample []string) (string, []string) {
	keywords := ExtractKeywords(sample, localKeywordCount)

	summary := fmt.Sprintf("Indexed content from %s.", source.URL)
	if len(keywords) > 0 {
		summary = fmt.Sprintf("Indexed content from %s covering %s.",
			source.URL, strings.Join(keywords, ", "))
	}
	return summary, keywords
}

// ExtractKeywords returns the n most frequent terms across the texts,
// most frequent first, ties broken alphabetically.
func ExtractKeywords(texts []string, n int) []string {
	freq := make(map[string]int)
	for _, text := range texts {
		for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}) {
			if len(word) < 3 || stopwords[word] {
				continue
			}
			freq[word]++
		}
	}

	terms := make([]string, 0, len(freq))
	for word := range freq {
		terms = append(terms, word)
	}
	sort.Slice(terms, func(i, j int) bool {
		if freq[terms[i]] != freq[terms[j]] {
			return freq[terms[i]] > freq[terms[j]]
		}
		return terms[i] < terms[j]
	})

	if len(terms) > n {
		terms = terms[:n]
	}
	return terms
}

var stopwords = map[string]bool{
	"and": true, "are": true, "but": true, "for": true, "from": true,
	"has": true, "have": true, "its": true, "not": true, "one": true,
	"our": true, "out": true, "the": true, "their": true, "them": true,
	"then": true, "there": true, "these": true, "they": true, "this": true,
	"may": true, "was": true, "were": true, "what": true, "when": true,
	"where": true, "which": true, "will": true, "with": true, "you": true,
	"your": true, "about": true, "after": true, "all": true, "also": true,
	"can": true, "into": true, "more": true, "other": true, "some": true,
	"such": true, "than": true, "that": true, "use": true, "using": true,
}
