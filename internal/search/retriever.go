package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/docuchat/docuchat/internal/store"
)

// ErrRetrievalUnavailable is returned when neither search signal can serve
// the query. Distinct from an empty result: both signals ran and found
// nothing is a valid zero-match outcome, not this error.
var ErrRetrievalUnavailable = errors.New("retrieval unavailable: both keyword and vector search failed")

// poolFactor oversizes each source's candidate list relative to the final
// top_k so fusion has enough material to reorder.
const poolFactor = 2

// Retriever orchestrates hybrid retrieval: both sources queried in parallel,
// results fused, degradation to a single source when the other is down.
type Retriever struct {
	registry *store.KeywordRegistry
	vector   store.VectorSearcher
	fusion   FusionConfig
}

// NewRetriever wires a retriever. vector may be nil, in which case every
// query runs keyword-only.
func NewRetriever(registry *store.KeywordRegistry, vector store.VectorSearcher, fusion FusionConfig) *Retriever {
	return &Retriever{
		registry: registry,
		vector:   vector,
		fusion:   fusion,
	}
}

// Retrieve runs the full hybrid query for one session.
//
// Degradation: vector failure falls back to keyword-only ranking; a missing
// keyword index falls back to vector-only. Only when both signals fail does
// the call return ErrRetrievalUnavailable. Both signals succeeding with zero
// matches returns an empty slice and nil error.
func (r *Retriever) Retrieve(ctx context.Context, sessionID, query string, topK int) ([]*Result, error) {
	if topK <= 0 {
		return []*Result{}, nil
	}

	pool := topK * poolFactor

	var (
		keywordResults []*store.KeywordResult
		vectorResults  []*store.VectorResult
		keywordErr     error
		vectorErr      error
	)

	// Errors are captured per source, not returned from the group: one
	// source failing must not cancel the other.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		keywordResults, keywordErr = r.registry.Search(sessionID, query, pool)
		return nil
	})
	g.Go(func() error {
		if r.vector == nil {
			vectorErr = fmt.Errorf("no vector searcher configured")
			return nil
		}
		vectorResults, vectorErr = r.vector.Query(gctx, query, pool, sessionID)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	keywordOK := keywordErr == nil
	vectorOK := vectorErr == nil

	switch {
	case !keywordOK && !vectorOK:
		slog.Error("retrieval_unavailable",
			slog.String("session_id", sessionID),
			slog.String("keyword_error", keywordErr.Error()),
			slog.String("vector_error", vectorErr.Error()))
		return nil, ErrRetrievalUnavailable

	case !vectorOK:
		slog.Warn("vector_search_degraded",
			slog.String("session_id", sessionID),
			slog.String("error", vectorErr.Error()))
		vectorResults = nil

	case !keywordOK:
		// Typically ErrIndexMissing: the session has vectors but no
		// keyword index was ever built.
		slog.Warn("keyword_search_degraded",
			slog.String("session_id", sessionID),
			slog.String("error", keywordErr.Error()))
		keywordResults = nil
	}

	results := Fuse(keywordResults, vectorResults, r.fusion, topK)

	slog.Debug("hybrid_retrieval",
		slog.String("session_id", sessionID),
		slog.Int("keyword_candidates", len(keywordResults)),
		slog.Int("vector_candidates", len(vectorResults)),
		slog.Int("results", len(results)))
	return results, nil
}

// RetrieveKeyword runs a keyword-only query, bypassing fusion weighting.
func (r *Retriever) RetrieveKeyword(ctx context.Context, sessionID, query string, topK int) ([]*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	keywordResults, err := r.registry.Search(sessionID, query, topK)
	if err != nil {
		return nil, err
	}
	return Fuse(keywordResults, nil, r.fusion, topK), nil
}

// RetrieveVector runs a vector-only query.
func (r *Retriever) RetrieveVector(ctx context.Context, sessionID, query string, topK int) ([]*Result, error) {
	if r.vector == nil {
		return nil, fmt.Errorf("no vector searcher configured")
	}
	vectorResults, err := r.vector.Query(ctx, query, topK, sessionID)
	if err != nil {
		return nil, err
	}
	return Fuse(nil, vectorResults, r.fusion, topK), nil
}
