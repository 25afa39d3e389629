package chunker

import "strings"

// block is one semantic unit of a document: a heading, a paragraph, or
// a fenced code block.
type block struct {
	text   string
	tokens int
	atomic bool
}

// parseBlocks splits document content at semantic boundaries: markdown
// headings, blank-line paragraph breaks, and fenced code blocks. Fenced
// blocks (including their fences) come back atomic. Whitespace-only
// input yields no blocks.
func parseBlocks(content string) []block {
	lines := strings.Split(content, "\n")

	var (
		blocks  []block
		current []string
		inFence bool
	)

	flush := func(atomic bool) {
		text := strings.TrimRight(strings.Join(current, "\n"), " \t\n")
		current = current[:0]
		if strings.TrimSpace(text) == "" {
			return
		}
		blocks = append(blocks, block{
			text:   text,
			tokens: EstimateTokens(text),
			atomic: atomic,
		})
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(trimmed, "```"):
			if inFence {
				current = append(current, line)
				flush(true)
				inFence = false
				continue
			}
			flush(false)
			inFence = true
			current = append(current, line)

		case inFence:
			current = append(current, line)

		case trimmed == "":
			// A heading waits for its section: a bare heading is not
			// flushed on the blank line that follows it, so a cut never
			// strands a heading at the end of a chunk.
			if !bareHeading(current) {
				flush(false)
			}

		case strings.HasPrefix(trimmed, "#"):
			flush(false)
			current = append(current, line)

		default:
			current = append(current, line)
		}
	}

	// An unterminated fence still counts as atomic content.
	flush(inFence)

	return blocks
}

// bareHeading reports whether the accumulated lines are only a heading.
func bareHeading(current []string) bool {
	return len(current) == 1 && strings.HasPrefix(strings.TrimSpace(current[0]), "#")
}
