package store

import (
	"strings"
	"unicode"
)

// Tokenize splits text for BM25 indexing: lowercase, punctuation stripped,
// whitespace-delimited, empty tokens discarded. Underscores count as word
// characters so identifiers like doc_id survive as one token. Simple English
// plurals are folded ("cats" and "cat" become the same term) so a singular
// query still hits pluralized corpus text.
//
// The query and the corpus must go through this same function; scoring is
// only meaningful when both sides share a vocabulary.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	tokens := strings.Fields(b.String())
	for i, tok := range tokens {
		tokens[i] = foldPlural(tok)
	}
	return tokens
}

// foldPlural strips a trailing plural "s". Short tokens and "-ss" endings
// ("was", "class") are left alone; this is deliberately not a stemmer.
func foldPlural(token string) string {
	if len(token) > 3 && strings.HasSuffix(token, "s") && !strings.HasSuffix(token, "ss") {
		return token[:len(token)-1]
	}
	return token
}

// TokenizeCorpus tokenizes every chunk's text, preserving order. The result
// is the immutable tokenized corpus snapshot owned by a keyword index entry.
func TokenizeCorpus(chunks []*Chunk) [][]string {
	corpus := make([][]string, len(chunks))
	for i, c := range chunks {
		corpus[i] = Tokenize(c.Text)
	}
	return corpus
}
