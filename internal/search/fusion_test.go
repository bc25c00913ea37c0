package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuchat/docuchat/internal/store"
)

func kw(chunk *store.Chunk, score float64) *store.KeywordResult {
	return &store.KeywordResult{Chunk: chunk, Score: score, SearchMethod: store.SearchMethodKeyword}
}

func vec(chunk *store.Chunk, score float64) *store.VectorResult {
	return &store.VectorResult{Chunk: chunk, Score: score, SearchMethod: store.SearchMethodVector}
}

func namedChunk(docID string, chunkID int) *store.Chunk {
	return &store.Chunk{DocID: docID, ChunkID: chunkID, SessionID: "s1", Text: docID}
}

func TestFuse_WeightedReciprocalRanks(t *testing.T) {
	chunkA := namedChunk("A", 0)
	chunkB := namedChunk("B", 0)
	chunkC := namedChunk("C", 0)

	cfg := FusionConfig{K: 60, Weights: Weights{Keyword: 0.5, Vector: 0.5}}
	results := Fuse(
		[]*store.KeywordResult{kw(chunkA, 2.0), kw(chunkB, 1.5)},
		[]*store.VectorResult{vec(chunkB, 0.9), vec(chunkC, 0.8)},
		cfg, 10,
	)

	require.Len(t, results, 3)

	// Asserted against the formula weight/(k+rank), not eyeballed.
	wantB := 0.5/float64(60+2) + 0.5/float64(60+1)
	wantA := 0.5 / float64(60+1)
	wantC := 0.5 / float64(60+2)

	assert.Equal(t, "B", results[0].Chunk.DocID)
	assert.InDelta(t, wantB, results[0].FusedScore, 1e-12)
	assert.Equal(t, store.SearchMethodHybrid, results[0].SearchMethod)

	assert.Equal(t, "A", results[1].Chunk.DocID)
	assert.InDelta(t, wantA, results[1].FusedScore, 1e-12)
	assert.Equal(t, store.SearchMethodKeyword, results[1].SearchMethod)

	assert.Equal(t, "C", results[2].Chunk.DocID)
	assert.InDelta(t, wantC, results[2].FusedScore, 1e-12)
	assert.Equal(t, store.SearchMethodVector, results[2].SearchMethod)
}

func TestFuse_PerSourceAnnotations(t *testing.T) {
	chunkB := namedChunk("B", 3)

	cfg := DefaultFusionConfig()
	results := Fuse(
		[]*store.KeywordResult{kw(namedChunk("A", 0), 2.0), kw(chunkB, -0.3)},
		[]*store.VectorResult{vec(chunkB, 0.91)},
		cfg, 10,
	)

	var b *Result
	for _, r := range results {
		if r.Chunk.DocID == "B" {
			b = r
		}
	}
	require.NotNil(t, b)

	assert.Equal(t, 2, b.KeywordRank)
	assert.Equal(t, -0.3, b.KeywordScore)
	assert.InDelta(t, 0.4/62.0, b.KeywordContribution, 1e-12)
	assert.Equal(t, 1, b.VectorRank)
	assert.Equal(t, 0.91, b.VectorScore)
	assert.InDelta(t, 0.6/61.0, b.VectorContribution, 1e-12)
	assert.InDelta(t, b.KeywordContribution+b.VectorContribution, b.FusedScore, 1e-12)
}

func TestFuse_NegativeKeywordScoresStillRank(t *testing.T) {
	// BM25 scores can be negative; fusion is rank-based so the chunk still
	// participates with a positive contribution.
	results := Fuse(
		[]*store.KeywordResult{kw(namedChunk("A", 0), -1.2)},
		nil,
		DefaultFusionConfig(), 10,
	)

	require.Len(t, results, 1)
	assert.Greater(t, results[0].FusedScore, 0.0)
	assert.Equal(t, -1.2, results[0].KeywordScore)
}

func TestFuse_SingleSourceDegradation(t *testing.T) {
	chunkA := namedChunk("A", 0)
	chunkB := namedChunk("B", 0)

	keywordOnly := Fuse(
		[]*store.KeywordResult{kw(chunkA, 2.0), kw(chunkB, 1.0)},
		nil, DefaultFusionConfig(), 10,
	)
	require.Len(t, keywordOnly, 2)
	assert.Equal(t, "A", keywordOnly[0].Chunk.DocID)
	assert.Equal(t, store.SearchMethodKeyword, keywordOnly[0].SearchMethod)
	assert.Zero(t, keywordOnly[0].VectorRank)

	vectorOnly := Fuse(
		nil, []*store.VectorResult{vec(chunkA, 0.9)},
		DefaultFusionConfig(), 10,
	)
	require.Len(t, vectorOnly, 1)
	assert.Equal(t, store.SearchMethodVector, vectorOnly[0].SearchMethod)
}

func TestFuse_BothEmpty(t *testing.T) {
	results := Fuse(nil, nil, DefaultFusionConfig(), 10)
	assert.Empty(t, results)
}

func TestFuse_MergesByIdentityAcrossSources(t *testing.T) {
	// The two sources return distinct Chunk structs for the same logical
	// chunk; identity (doc_id + chunk_id) must merge them into one result.
	fromKeyword := namedChunk("doc", 7)
	fromVector := namedChunk("doc", 7)

	results := Fuse(
		[]*store.KeywordResult{kw(fromKeyword, 1.0)},
		[]*store.VectorResult{vec(fromVector, 0.8)},
		DefaultFusionConfig(), 10,
	)

	require.Len(t, results, 1)
	assert.Equal(t, store.SearchMethodHybrid, results[0].SearchMethod)
}

func TestFuse_TieBreaks(t *testing.T) {
	cfg := FusionConfig{K: 60, Weights: Weights{Keyword: 0.5, Vector: 0.5}}

	// Same fused score: keyword rank 1 only vs vector rank 1 only. The
	// in-both rule does not apply; keyword presence wins via rank ordering.
	keywordHit := namedChunk("kw", 5)
	vectorHit := namedChunk("vc", 1)
	results := Fuse(
		[]*store.KeywordResult{kw(keywordHit, 1.0)},
		[]*store.VectorResult{vec(vectorHit, 0.9)},
		cfg, 10,
	)
	require.Len(t, results, 2)
	assert.Equal(t, "kw", results[0].Chunk.DocID)

	// Same shape with the chunk ids reversed, proving the keyword-rank rule
	// and not chunk_id decided the order above.
	first := namedChunk("doc", 2)
	second := namedChunk("doc", 9)
	tied := Fuse(
		[]*store.KeywordResult{kw(second, 1.0)},
		[]*store.VectorResult{vec(first, 0.9)},
		FusionConfig{K: 60, Weights: Weights{Keyword: 0.5, Vector: 0.5}}, 10,
	)
	require.Len(t, tied, 2)
	// Equal fused score, neither in both; keyword-ranked chunk sorts first.
	assert.Equal(t, 9, tied[0].Chunk.ChunkID)
}

func TestFuse_InBothOutranksEqualScore(t *testing.T) {
	// chunkX appears in both lists at low ranks; chunkY appears only in
	// keyword at rank 1. Pick weights so the fused scores are exactly equal,
	// then the in-both rule decides.
	chunkX := namedChunk("X", 0)
	chunkY := namedChunk("Y", 0)

	// keyword: Y rank1, X rank2; vector: X rank1.
	// Y = wk/61, X = wk/62 + wv/61. Choose wk=1: Y=1/61.
	// Solve wv: 1/61 - 1/62 = wv/61 -> wv = 61*(1/61 - 1/62) = 1 - 61/62.
	wv := 1.0 - 61.0/62.0
	results := Fuse(
		[]*store.KeywordResult{kw(chunkY, 2.0), kw(chunkX, 1.0)},
		[]*store.VectorResult{vec(chunkX, 0.9)},
		FusionConfig{K: 60, Weights: Weights{Keyword: 1.0, Vector: wv}}, 10,
	)

	require.Len(t, results, 2)
	assert.InDelta(t, results[0].FusedScore, results[1].FusedScore, 1e-12)
	assert.Equal(t, "X", results[0].Chunk.DocID)
}

func TestFuse_TopKTruncation(t *testing.T) {
	var keyword []*store.KeywordResult
	for i := 0; i < 10; i++ {
		keyword = append(keyword, kw(namedChunk("doc", i), float64(10-i)))
	}

	results := Fuse(keyword, nil, DefaultFusionConfig(), 3)
	require.Len(t, results, 3)
	assert.Equal(t, 0, results[0].Chunk.ChunkID)
}

func TestFuse_ZeroKFallsBackToDefault(t *testing.T) {
	results := Fuse(
		[]*store.KeywordResult{kw(namedChunk("A", 0), 1.0)},
		nil,
		FusionConfig{Weights: DefaultWeights()}, 10,
	)
	require.Len(t, results, 1)
	assert.InDelta(t, 0.4/61.0, results[0].FusedScore, 1e-12)
}

func TestFuse_RankMattersNotScoreScale(t *testing.T) {
	// Wildly different score scales must not change the fused order; only
	// rank positions do.
	chunkA := namedChunk("A", 0)
	chunkB := namedChunk("B", 0)

	small := Fuse(
		[]*store.KeywordResult{kw(chunkA, 0.001), kw(chunkB, 0.0005)},
		nil, DefaultFusionConfig(), 10,
	)
	large := Fuse(
		[]*store.KeywordResult{kw(chunkA, 9000), kw(chunkB, 8000)},
		nil, DefaultFusionConfig(), 10,
	)

	require.Len(t, small, 2)
	require.Len(t, large, 2)
	assert.Equal(t, small[0].Chunk.DocID, large[0].Chunk.DocID)
	assert.InDelta(t, small[0].FusedScore, large[0].FusedScore, 1e-12)
}
