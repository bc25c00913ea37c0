package store

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ErrEmptyChunks is returned by Build when there is nothing to index.
// Any prior index for the session is left untouched.
var ErrEmptyChunks = errors.New("no chunks to index")

// ErrIndexMissing is returned by Search when no index was ever built for the
// session. Callers distinguish this from an empty result so they can message
// "upload a document first" instead of "no matches".
var ErrIndexMissing = errors.New("no keyword index for session")

// keywordEntry is one session's immutable index snapshot. It is fully
// constructed before being published into the registry and never mutated
// afterward, so searches read it without locking.
type keywordEntry struct {
	scorer    *bm25Scorer
	chunks    []*Chunk
	corpus    [][]string
	createdAt time.Time
}

// KeywordRegistry maintains one in-memory BM25 index per session.
//
// Builds replace the session's entry wholesale (build-then-swap): an in-flight
// search sees either the old complete index or the new complete index, never
// a partially built one. Concurrent builds for the same session are
// last-write-wins. There are no partial updates; adding a document to a
// session means rebuilding with the union of chunks.
type KeywordRegistry struct {
	mu      sync.RWMutex
	entries map[string]*keywordEntry
	params  BM25Params

	now func() time.Time // replaced in TTL tests
}

// NewKeywordRegistry creates an empty registry.
func NewKeywordRegistry(params BM25Params) *KeywordRegistry {
	if err := params.Validate(); err != nil {
		params = DefaultBM25Params()
	}
	return &KeywordRegistry{
		entries: make(map[string]*keywordEntry),
		params:  params,
		now:     time.Now,
	}
}

// Build tokenizes the chunks and constructs a fresh index for the session,
// atomically replacing any prior index for the same key. Returns
// ErrEmptyChunks when chunks is empty; the prior index, if any, survives.
func (r *KeywordRegistry) Build(sessionID string, chunks []*Chunk) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if len(chunks) == 0 {
		return fmt.Errorf("session %s: %w", sessionID, ErrEmptyChunks)
	}

	// Snapshot the chunk slice so later caller mutations can't reach the
	// published entry.
	owned := make([]*Chunk, len(chunks))
	copy(owned, chunks)

	// Construct off to the side; no lock held during tokenization/scoring
	// structure build, which is the expensive part.
	corpus := TokenizeCorpus(owned)
	entry := &keywordEntry{
		scorer:    newBM25Scorer(corpus, r.params),
		chunks:    owned,
		corpus:    corpus,
		createdAt: r.now(),
	}

	r.mu.Lock()
	r.entries[sessionID] = entry
	r.mu.Unlock()

	slog.Info("keyword_index_built",
		slog.String("session_id", sessionID),
		slog.Int("chunks", len(owned)),
		slog.Int("vocab_terms", entry.scorer.VocabSize()))
	return nil
}

// Search scores every chunk in the session's index against the query and
// returns the top k by BM25 score, ties broken by ascending chunk_id so
// equally relevant results keep document order.
//
// A query that tokenizes to nothing returns an empty list, not an error.
// Internal scoring failures degrade to an empty result; only a missing index
// is reported, as ErrIndexMissing.
func (r *KeywordRegistry) Search(sessionID, query string, topK int) (results []*KeywordResult, err error) {
	r.mu.RLock()
	entry, ok := r.entries[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrIndexMissing)
	}

	// Search never raises past this point: scoring is pure in-memory math,
	// and a bug there should cost one empty result, not the whole query.
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("keyword_search_panic",
				slog.String("session_id", sessionID),
				slog.Any("panic", rec))
			results, err = []*KeywordResult{}, nil
		}
	}()

	queryTokens := Tokenize(query)
	if len(queryTokens) == 0 {
		return []*KeywordResult{}, nil
	}
	if topK <= 0 {
		return []*KeywordResult{}, nil
	}

	scores := entry.scorer.Scores(queryTokens)

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		if scores[ia] != scores[ib] {
			return scores[ia] > scores[ib]
		}
		return entry.chunks[ia].ChunkID < entry.chunks[ib].ChunkID
	})

	if topK > len(order) {
		topK = len(order)
	}

	// Negative scores are included deliberately: BM25 scores common terms
	// negative, and the ranking is still valid.
	results = make([]*KeywordResult, 0, topK)
	for _, idx := range order[:topK] {
		results = append(results, &KeywordResult{
			Chunk:        entry.chunks[idx],
			Score:        scores[idx],
			SearchMethod: SearchMethodKeyword,
		})
	}
	return results, nil
}

// Stats returns index statistics for the session, or ok=false if no index
// exists.
func (r *KeywordRegistry) Stats(sessionID string) (*IndexStats, bool) {
	r.mu.RLock()
	entry, ok := r.entries[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return &IndexStats{
		SessionID:  sessionID,
		NumChunks:  len(entry.chunks),
		CreatedAt:  entry.createdAt,
		Age:        r.now().Sub(entry.createdAt),
		TotalDocs:  len(entry.chunks),
		AvgDocLen:  entry.scorer.AvgDocLen(),
		VocabTerms: entry.scorer.VocabSize(),
	}, true
}

// Chunks returns a copy of the session's indexed chunk snapshot. The ingest
// pipeline uses it to rebuild with the union of old and new chunks when a
// session receives another document.
func (r *KeywordRegistry) Chunks(sessionID string) ([]*Chunk, bool) {
	r.mu.RLock()
	entry, ok := r.entries[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	out := make([]*Chunk, len(entry.chunks))
	copy(out, entry.chunks)
	return out, true
}

// Delete removes the session's index. Returns true if one existed.
func (r *KeywordRegistry) Delete(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[sessionID]; !ok {
		return false
	}
	delete(r.entries, sessionID)
	slog.Info("keyword_index_deleted", slog.String("session_id", sessionID))
	return true
}

// Cleanup evicts indexes older than maxAge, measured from build time (TTL
// semantics, not LRU: last access never extends a session's life). Returns
// the number of sessions evicted.
func (r *KeywordRegistry) Cleanup(maxAge time.Duration) int {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted int
	for sessionID, entry := range r.entries {
		if now.Sub(entry.createdAt) > maxAge {
			delete(r.entries, sessionID)
			evicted++
		}
	}
	if evicted > 0 {
		slog.Info("keyword_index_cleanup", slog.Int("evicted", evicted))
	}
	return evicted
}

// Sessions lists every session with a live index.
func (r *KeywordRegistry) Sessions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
