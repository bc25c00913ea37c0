// Package search merges keyword and vector retrieval into a single hybrid
// ranking using weighted reciprocal rank fusion.
package search

import (
	"sort"

	"github.com/docuchat/docuchat/internal/store"
)

// Weights scales each source's rank contributions. The sum does not need to
// be 1; only the ratio matters to the ordering.
type Weights struct {
	Keyword float64
	Vector  float64
}

// DefaultWeights favors the semantic signal slightly.
func DefaultWeights() Weights {
	return Weights{Keyword: 0.4, Vector: 0.6}
}

// FusionConfig configures reciprocal rank fusion.
type FusionConfig struct {
	// K is the rank smoothing constant. 60 is the standard choice: top
	// ranks dominate but adjacent ranks differ only slightly.
	K       int
	Weights Weights
}

// DefaultFusionConfig returns k=60 with the default weights.
func DefaultFusionConfig() FusionConfig {
	return FusionConfig{K: 60, Weights: DefaultWeights()}
}

// Result is one fused retrieval hit. Per-source ranks and contributions are
// kept for debugging and for response payloads.
type Result struct {
	Chunk *store.Chunk `json:"chunk"`

	// FusedScore is the weighted sum of reciprocal rank contributions.
	FusedScore float64 `json:"fused_score"`

	// SearchMethod is "hybrid" when both sources found the chunk,
	// otherwise the single source that did.
	SearchMethod store.SearchMethod `json:"search_method"`

	// KeywordRank is the 1-indexed position in the keyword list, 0 when
	// absent. Same for VectorRank.
	KeywordRank         int     `json:"keyword_rank,omitempty"`
	KeywordScore        float64 `json:"keyword_score,omitempty"`
	KeywordContribution float64 `json:"keyword_contribution,omitempty"`
	VectorRank          int     `json:"vector_rank,omitempty"`
	VectorScore         float64 `json:"vector_score,omitempty"`
	VectorContribution  float64 `json:"vector_contribution,omitempty"`
}

// inBoth reports whether both sources ranked the chunk.
func (r *Result) inBoth() bool {
	return r.KeywordRank > 0 && r.VectorRank > 0
}

// Fuse merges the two ranked lists with weighted RRF and returns the top
// topK. Each list contributes weight/(k+rank) per chunk it ranks; a chunk
// absent from a list gets zero from that list. Either list may be nil, which
// degrades to a single-source ranking scaled by that source's weight.
//
// Chunks are merged by identity (explicit id, then doc_id+chunk_id, then a
// text hash). Ties in fused score are broken by: found-by-both first, then
// keyword rank ascending, then chunk_id ascending.
func Fuse(keyword []*store.KeywordResult, vector []*store.VectorResult, cfg FusionConfig, topK int) []*Result {
	if cfg.K <= 0 {
		cfg.K = 60
	}

	merged := make(map[string]*Result)
	var order []string

	get := func(c *store.Chunk) *Result {
		id := c.Identity()
		if r, ok := merged[id]; ok {
			return r
		}
		r := &Result{Chunk: c}
		merged[id] = r
		order = append(order, id)
		return r
	}

	for i, kr := range keyword {
		rank := i + 1
		r := get(kr.Chunk)
		r.KeywordRank = rank
		r.KeywordScore = kr.Score
		r.KeywordContribution = cfg.Weights.Keyword / float64(cfg.K+rank)
		r.FusedScore += r.KeywordContribution
	}

	for i, vr := range vector {
		rank := i + 1
		r := get(vr.Chunk)
		r.VectorRank = rank
		r.VectorScore = vr.Score
		r.VectorContribution = cfg.Weights.Vector / float64(cfg.K+rank)
		r.FusedScore += r.VectorContribution
	}

	results := make([]*Result, 0, len(order))
	for _, id := range order {
		r := merged[id]
		switch {
		case r.inBoth():
			r.SearchMethod = store.SearchMethodHybrid
		case r.KeywordRank > 0:
			r.SearchMethod = store.SearchMethodKeyword
		default:
			r.SearchMethod = store.SearchMethodVector
		}
		results = append(results, r)
	}

	sort.SliceStable(results, func(a, b int) bool {
		ra, rb := results[a], results[b]
		if ra.FusedScore != rb.FusedScore {
			return ra.FusedScore > rb.FusedScore
		}
		if ra.inBoth() != rb.inBoth() {
			return ra.inBoth()
		}
		if ra.KeywordRank != rb.KeywordRank {
			// Absent keyword rank (0) sorts after any present rank.
			if ra.KeywordRank == 0 {
				return false
			}
			if rb.KeywordRank == 0 {
				return true
			}
			return ra.KeywordRank < rb.KeywordRank
		}
		return ra.Chunk.ChunkID < rb.Chunk.ChunkID
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}
