package chunker

import (
	"strings"
	"unicode/utf8"
)

// EstimateTokens approximates the token count of text without a model
// tokenizer. Prose averages about four characters per token; for
// whitespace-heavy text the word count is the better lower bound, so
// the larger of the two estimates wins.
func EstimateTokens(s string) int {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0
	}

	est := utf8.RuneCountInString(trimmed) / 4
	if words := len(strings.Fields(trimmed)); words > est {
		est = words
	}
	if est == 0 {
		est = 1
	}
	return est
}
