package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize_LowercasesAndSplits(t *testing.T) {
	tokens := Tokenize("The Cat SAT")

	require.Len(t, tokens, 3)
	assert.Equal(t, []string{"the", "cat", "sat"}, tokens)
}

func TestTokenize_StripsPunctuation(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect []string
	}{
		{
			name:   "sentence punctuation",
			input:  "Hello, world! How are you?",
			expect: []string{"hello", "world", "how", "are", "you"},
		},
		{
			name:   "hyphenated",
			input:  "state-of-the-art",
			expect: []string{"state", "of", "the", "art"},
		},
		{
			name:   "underscores kept",
			input:  "doc_id and session_id",
			expect: []string{"doc_id", "and", "session_id"},
		},
		{
			name:   "digits kept",
			input:  "page 42 of 100",
			expect: []string{"page", "42", "of", "100"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, Tokenize(tt.input))
		})
	}
}

func TestTokenize_FoldsSimplePlurals(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect []string
	}{
		{
			name:   "plural noun",
			input:  "cats and dogs",
			expect: []string{"cat", "and", "dog"},
		},
		{
			name:   "short tokens untouched",
			input:  "he was gas",
			expect: []string{"he", "was", "gas"},
		},
		{
			name:   "double-s untouched",
			input:  "class business",
			expect: []string{"class", "business"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, Tokenize(tt.input))
		})
	}
}

func TestTokenize_EmptyInputs(t *testing.T) {
	assert.Empty(t, Tokenize(""))
	assert.Empty(t, Tokenize("   \t\n  "))
	assert.Empty(t, Tokenize("!!! ... ---"))
}

func TestTokenize_QueryAndCorpusShareVocabulary(t *testing.T) {
	// A pluralized corpus term and a singular query term must land on the
	// same token or keyword search can never match them.
	corpus := Tokenize("The network's routers")
	query := Tokenize("router")

	assert.Contains(t, corpus, query[0])
}

func TestTokenizeCorpus_PreservesOrder(t *testing.T) {
	chunks := []*Chunk{
		{Text: "first chunk"},
		{Text: ""},
		{Text: "third chunk"},
	}

	corpus := TokenizeCorpus(chunks)

	require.Len(t, corpus, 3)
	assert.Equal(t, []string{"first", "chunk"}, corpus[0])
	assert.Empty(t, corpus[1])
	assert.Equal(t, []string{"third", "chunk"}, corpus[2])
}
