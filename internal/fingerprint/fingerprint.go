// Package fingerprint computes stable content fingerprints for chunks.
//
// The fingerprint is a hash of the whitespace/case-normalized text, so
// trivial formatting diffs (re-wrapped lines, changed indentation,
// capitalization) do not trigger spurious re-embedding.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// Normalize lowercases the text and collapses all whitespace runs to a
// single space. The result is what gets hashed, never what gets stored
// or embedded.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	inSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			inSpace = true
			continue
		}
		if inSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		inSpace = false
		b.WriteRune(unicode.ToLower(r))
	}

	return b.String()
}

// Hash returns the hex-encoded SHA-256 of the normalized text.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}
