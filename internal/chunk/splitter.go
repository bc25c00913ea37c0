package chunk

import (
	"regexp"
	"strings"
	"unicode"
)

var paragraphSplit = regexp.MustCompile(`\n\s*\n`)

// SplitParagraphs splits text on blank lines, trimming and dropping empties.
func SplitParagraphs(text string) []string {
	parts := paragraphSplit.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// SplitSentences splits text after terminal punctuation (. ! ?) followed by
// whitespace. Crude but deterministic; abbreviations split early rather than
// merging sentences, which is the safer failure mode for overlap seeding.
func SplitSentences(text string) []string {
	var sentences []string
	var b strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		b.WriteRune(runes[i])
		if isTerminal(runes[i]) && i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			if s := strings.TrimSpace(b.String()); s != "" {
				sentences = append(sentences, s)
			}
			b.Reset()
			for i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
				i++
			}
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// sentenceOverlap returns the last n sentences of text joined by spaces, for
// seeding the next chunk. Returns the whole text when it has fewer sentences.
func sentenceOverlap(text string, n int) string {
	if n <= 0 {
		return ""
	}
	sentences := SplitSentences(text)
	if len(sentences) > n {
		sentences = sentences[len(sentences)-n:]
	}
	return strings.Join(sentences, " ")
}

// trailingFraction returns the last fraction of text by character count.
func trailingFraction(text string, fraction float64) string {
	if fraction <= 0 || text == "" {
		return ""
	}
	runes := []rune(text)
	n := int(float64(len(runes)) * fraction)
	if n <= 0 {
		return ""
	}
	if n >= len(runes) {
		return text
	}
	return string(runes[len(runes)-n:])
}
