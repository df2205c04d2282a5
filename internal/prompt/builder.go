// Package prompt assembles the grounded LLM input from the document text and
// the user's question.
package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"groundbot/internal/boterr"
)

const (
	DefaultMaxLen = 30000

	defaultPreamble = "You are a helpful assistant. Answer the question using only the " +
		"reference document below. If the document does not contain the answer, say that " +
		"you don't know."

	groundingHeader = "\n\n## Reference document\n"
	questionHeader  = "\n\n## Question\n"
)

// Builder composes prompts deterministically: identical inputs always yield
// byte-identical output, and no timestamp or randomness is embedded.
type Builder struct {
	maxLen   int
	preamble string
}

func NewBuilder(maxLen int, preamble string) *Builder {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	if preamble == "" {
		preamble = defaultPreamble
	}
	return &Builder{maxLen: maxLen, preamble: preamble}
}

// Build assembles the prompt. When the combined size would exceed the
// ceiling, the grounding text is truncated head-first (its prefix is kept)
// until everything fits; that truncation is the resolution, not an error.
// boterr.ErrInputTooLarge is returned only when the fixed frame plus the
// user text alone cannot fit the ceiling.
func (b *Builder) Build(grounding, user string) (string, error) {
	frame := len(b.preamble) + len(groundingHeader) + len(questionHeader) + len(user)
	budget := b.maxLen - frame
	if budget < 0 {
		return "", fmt.Errorf("%w: user text of %d bytes cannot fit ceiling %d",
			boterr.ErrInputTooLarge, len(user), b.maxLen)
	}

	if len(grounding) > budget {
		grounding = truncateToRune(grounding, budget)
	}

	var sb strings.Builder
	sb.Grow(frame + len(grounding))
	sb.WriteString(b.preamble)
	sb.WriteString(groundingHeader)
	sb.WriteString(grounding)
	sb.WriteString(questionHeader)
	sb.WriteString(user)
	return sb.String(), nil
}

// truncateToRune cuts s to at most max bytes without splitting a rune.
func truncateToRune(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
