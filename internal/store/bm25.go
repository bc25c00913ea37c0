package store

import (
	"math"
)

// bm25Scorer scores documents with Okapi BM25 over a fixed tokenized corpus.
// It is built once per index entry and never mutated afterward, so concurrent
// Scores calls are safe without locking.
//
// IDF is ln((N - n + 0.5) / (n + 0.5)). Terms appearing in more than half the
// corpus get a negative raw IDF; those are floored to epsilon times the mean
// IDF (Okapi convention) so common query terms still rank matching documents
// above non-matching ones. The floor itself can be negative in tiny corpora
// where most terms are common, so callers must not filter negative scores.
type bm25Scorer struct {
	params BM25Params

	docLens   []int
	avgDocLen float64

	// termFreqs[i] maps term -> occurrences in document i.
	termFreqs []map[string]int

	// idf maps term -> inverse document frequency across the corpus.
	idf map[string]float64
}

// newBM25Scorer builds the scoring structures for a tokenized corpus.
// The corpus must be non-empty; the keyword registry enforces that.
func newBM25Scorer(corpus [][]string, params BM25Params) *bm25Scorer {
	n := len(corpus)
	s := &bm25Scorer{
		params:    params,
		docLens:   make([]int, n),
		termFreqs: make([]map[string]int, n),
		idf:       make(map[string]float64),
	}

	// docFreq counts documents containing each term.
	docFreq := make(map[string]int)
	totalLen := 0

	for i, tokens := range corpus {
		s.docLens[i] = len(tokens)
		totalLen += len(tokens)

		freqs := make(map[string]int, len(tokens))
		for _, t := range tokens {
			freqs[t]++
		}
		s.termFreqs[i] = freqs

		for t := range freqs {
			docFreq[t]++
		}
	}

	if n > 0 {
		s.avgDocLen = float64(totalLen) / float64(n)
	}

	var idfSum float64
	var negativeTerms []string
	for term, df := range docFreq {
		idf := math.Log((float64(n) - float64(df) + 0.5) / (float64(df) + 0.5))
		s.idf[term] = idf
		idfSum += idf
		if idf < 0 {
			negativeTerms = append(negativeTerms, term)
		}
	}
	if len(s.idf) > 0 {
		floor := params.Epsilon * (idfSum / float64(len(s.idf)))
		for _, term := range negativeTerms {
			s.idf[term] = floor
		}
	}

	return s
}

// Scores returns one BM25 score per corpus document for the query tokens.
// Query terms absent from the corpus contribute zero.
func (s *bm25Scorer) Scores(queryTokens []string) []float64 {
	scores := make([]float64, len(s.docLens))
	if len(queryTokens) == 0 || s.avgDocLen == 0 {
		return scores
	}

	k1, b := s.params.K1, s.params.B

	for _, term := range queryTokens {
		idf, ok := s.idf[term]
		if !ok {
			continue
		}
		for i, freqs := range s.termFreqs {
			tf := float64(freqs[term])
			if tf == 0 {
				continue
			}
			norm := 1 - b + b*float64(s.docLens[i])/s.avgDocLen
			scores[i] += idf * (tf * (k1 + 1)) / (tf + k1*norm)
		}
	}

	return scores
}

// VocabSize returns the number of distinct terms in the corpus.
func (s *bm25Scorer) VocabSize() int {
	return len(s.idf)
}

// AvgDocLen returns the mean tokenized document length.
func (s *bm25Scorer) AvgDocLen() float64 {
	return s.avgDocLen
}
