package store

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"
)

// VectorStoreConfig configures the in-process HNSW store.
type VectorStoreConfig struct {
	// Dimensions is the embedding width. Fixed at first Add when zero.
	Dimensions int
	// M is the maximum neighbor count per graph layer.
	M int
	// EfSearch is the search beam width.
	EfSearch int
}

// ErrDimensionMismatch reports an embedding whose width differs from the
// store's configured dimensionality.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// HNSWStore is an in-process vector store over coder/hnsw. Chunks from every
// session share one graph; Search filters to the requested session with
// oversampling, so hot sessions do not require per-session graphs.
//
// The graph API keys nodes by uint64, so the store maintains a chunk-identity
// <-> key mapping. Deletion is lazy (mapping removal only): coder/hnsw
// misbehaves when the last graph node is removed, and orphaned nodes are
// simply skipped at query time.
type HNSWStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorStoreConfig

	idMap   map[string]uint64
	keyMap  map[uint64]string
	chunks  map[uint64]*Chunk
	nextKey uint64

	// sessionKeys indexes graph keys by session for scoped delete.
	sessionKeys map[string]map[uint64]struct{}
}

// NewHNSWStore creates an empty vector store. Cosine distance; embeddings are
// normalized on insert and at query time.
func NewHNSWStore(cfg VectorStoreConfig) *HNSWStore {
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &HNSWStore{
		graph:       graph,
		config:      cfg,
		idMap:       make(map[string]uint64),
		keyMap:      make(map[uint64]string),
		chunks:      make(map[uint64]*Chunk),
		sessionKeys: make(map[string]map[uint64]struct{}),
	}
}

// Add inserts chunks keyed by Identity(). Every chunk must carry an embedding
// of the store's dimensionality. Re-adding an identity replaces the old
// vector via lazy deletion.
func (s *HNSWStore) Add(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("chunk %s has no embedding", c.Identity())
		}
		if s.config.Dimensions == 0 {
			s.config.Dimensions = len(c.Embedding)
		}
		if len(c.Embedding) != s.config.Dimensions {
			return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(c.Embedding)}
		}
	}

	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}

		identity := c.Identity()
		if oldKey, exists := s.idMap[identity]; exists {
			s.dropKey(oldKey)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(c.Embedding))
		copy(vec, c.Embedding)
		normalizeVectorInPlace(vec)

		s.graph.Add(hnsw.MakeNode(key, vec))

		s.idMap[identity] = key
		s.keyMap[key] = identity
		s.chunks[key] = c

		keys, ok := s.sessionKeys[c.SessionID]
		if !ok {
			keys = make(map[uint64]struct{})
			s.sessionKeys[c.SessionID] = keys
		}
		keys[key] = struct{}{}
	}

	return nil
}

// Search returns the topK nearest chunks within the session. The graph is
// shared across sessions, so the query oversamples and filters server-side;
// the filter is part of the contract, not an optimization.
func (s *HNSWStore) Search(ctx context.Context, vector []float32, topK int, sessionID string) ([]*VectorResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if topK <= 0 || s.graph.Len() == 0 {
		return []*VectorResult{}, nil
	}
	if s.config.Dimensions != 0 && len(vector) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(vector)}
	}

	sessionSize := len(s.sessionKeys[sessionID])
	if sessionSize == 0 {
		return []*VectorResult{}, nil
	}

	query := make([]float32, len(vector))
	copy(query, vector)
	normalizeVectorInPlace(query)

	// Oversample to survive cross-session neighbors and lazy-deleted
	// orphans, capped at the session's own size worth of work.
	fetch := topK * 4
	if fetch > s.graph.Len() {
		fetch = s.graph.Len()
	}

	var results []*VectorResult
	for {
		nodes := s.graph.Search(query, fetch)
		results = results[:0]
		for _, node := range nodes {
			chunk, ok := s.chunks[node.Key]
			if !ok || chunk.SessionID != sessionID {
				continue
			}
			distance := s.graph.Distance(query, node.Value)
			results = append(results, &VectorResult{
				Chunk:        chunk,
				Score:        float64(1.0 - distance/2.0),
				SearchMethod: SearchMethodVector,
			})
			if len(results) == topK {
				break
			}
		}
		if len(results) >= topK || len(results) >= sessionSize || fetch >= s.graph.Len() {
			break
		}
		fetch *= 2
		if fetch > s.graph.Len() {
			fetch = s.graph.Len()
		}
	}

	return results, nil
}

// DeleteSession removes every vector belonging to the session. Lazy: graph
// nodes stay but become unreachable through the mappings.
func (s *HNSWStore) DeleteSession(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, ok := s.sessionKeys[sessionID]
	if !ok {
		return 0
	}
	removed := len(keys)
	for key := range keys {
		s.dropKey(key)
	}
	return removed
}

// DeleteDoc removes the session's vectors for one document, so a re-uploaded
// document does not leave its previous version's chunks retrievable. Lazy,
// like DeleteSession. Returns the number removed.
func (s *HNSWStore) DeleteDoc(sessionID, docID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int
	for key := range s.sessionKeys[sessionID] {
		if c, ok := s.chunks[key]; ok && c.DocID == docID {
			s.dropKey(key)
			removed++
		}
	}
	return removed
}

// dropKey removes one graph key from all mappings. Caller holds the lock.
func (s *HNSWStore) dropKey(key uint64) {
	identity, ok := s.keyMap[key]
	if !ok {
		return
	}
	if chunk, ok := s.chunks[key]; ok {
		if keys, ok := s.sessionKeys[chunk.SessionID]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(s.sessionKeys, chunk.SessionID)
			}
		}
	}
	delete(s.idMap, identity)
	delete(s.keyMap, key)
	delete(s.chunks, key)
}

// Count returns the number of live vectors.
func (s *HNSWStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.idMap)
}

// SessionCount returns the number of live vectors in one session.
func (s *HNSWStore) SessionCount(sessionID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessionKeys[sessionID])
}

// normalizeVectorInPlace scales a vector to unit length.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
