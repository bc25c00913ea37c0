// Package store holds the chunk data model, the per-session BM25 keyword
// index, the HNSW vector store, and the SQLite chat-history store.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// SearchMethod tags a result with the signal that produced it.
type SearchMethod string

const (
	SearchMethodKeyword SearchMethod = "keyword"
	SearchMethodVector  SearchMethod = "vector"
	SearchMethodHybrid  SearchMethod = "hybrid"
)

// Chunk is the atomic retrieval unit: a bounded span of extracted document
// text plus the metadata needed to scope, rank, and cite it.
type Chunk struct {
	// ID is an optional explicit identifier (e.g. the vector store's key).
	// When empty, identity falls back to DocID+ChunkID, then a text hash.
	ID string `json:"id,omitempty"`

	// Text is the chunk content, including any overlap prefix.
	Text string `json:"text"`

	// DocID identifies the owning document. Immutable once created.
	DocID string `json:"doc_id"`

	// SessionID is the isolation key. All retrieval is scoped by it.
	SessionID string `json:"session_id"`

	// ChunkID is the chunk's position in the document's ordered chunk
	// sequence (0-indexed). Used for tie-breaking and overlap reconstruction.
	ChunkID int `json:"chunk_id"`

	// PageNum is the 1-indexed primary source page.
	PageNum int `json:"page_num"`

	// Pages lists every page the chunk spans when overlap crosses a page
	// boundary, e.g. "1,2". Equal to strconv.Itoa(PageNum) otherwise.
	Pages string `json:"pages,omitempty"`

	// Length and StartPos are derived, informational.
	Length   int `json:"length"`
	StartPos int `json:"start_pos"`

	// PDFURL is provenance metadata from blob storage, used for citation.
	PDFURL string `json:"pdf_url,omitempty"`

	// HasImages / NumImages record whether image descriptions were folded
	// into Text during chunking.
	HasImages bool `json:"has_images,omitempty"`
	NumImages int  `json:"num_images,omitempty"`

	// Embedding is owned by the embedding collaborator once attached.
	Embedding []float32 `json:"-"`
}

// Identity resolves the chunk's unique identity for fusion merging.
// Priority: explicit ID, then DocID+ChunkID composite, then a content hash.
// The hash fallback guards against identity misses when upstream sources use
// different identifier schemes.
func (c *Chunk) Identity() string {
	if c.ID != "" {
		return c.ID
	}
	if c.DocID != "" {
		return c.DocID + "_" + strconv.Itoa(c.ChunkID)
	}
	sum := sha256.Sum256([]byte(c.Text))
	return hex.EncodeToString(sum[:])
}

// KeywordResult is a single BM25 search hit.
type KeywordResult struct {
	Chunk *Chunk
	// Score is the raw BM25 score. Negative scores are legitimate for very
	// common terms and must not be filtered; ranking validity is unaffected.
	Score        float64
	SearchMethod SearchMethod
}

// VectorResult is a single semantic search hit from the vector collaborator.
type VectorResult struct {
	Chunk *Chunk
	// Score is the collaborator's similarity score. Not comparable with
	// BM25 scores; fusion is rank-based for exactly that reason.
	Score        float64
	SearchMethod SearchMethod
}

// VectorSearcher is the vector-search collaborator boundary. The core only
// consumes this query contract; Pinecone, a local HNSW store, or a test fake
// all satisfy it. Results must be filtered to the session server-side.
type VectorSearcher interface {
	Query(ctx context.Context, query string, topK int, sessionID string) ([]*VectorResult, error)
}

// IndexStats describes one session's keyword index.
type IndexStats struct {
	SessionID  string        `json:"session_id"`
	NumChunks  int           `json:"num_chunks"`
	CreatedAt  time.Time     `json:"created_at"`
	Age        time.Duration `json:"age"`
	TotalDocs  int           `json:"total_docs"`
	AvgDocLen  float64       `json:"avg_doc_len"`
	VocabTerms int           `json:"vocab_terms"`
}

// BM25Params configures the Okapi BM25 scoring function.
type BM25Params struct {
	// K1 is the term-frequency saturation parameter.
	K1 float64
	// B is the document-length normalization parameter.
	B float64
	// Epsilon scales the floor applied to negative IDF values, as a fraction
	// of the corpus mean IDF.
	Epsilon float64
}

// DefaultBM25Params returns the rank-BM25 Okapi defaults.
func DefaultBM25Params() BM25Params {
	return BM25Params{K1: 1.5, B: 0.75, Epsilon: 0.25}
}

// Validate checks parameter ranges.
func (p BM25Params) Validate() error {
	if p.K1 <= 0 {
		return fmt.Errorf("bm25 k1 must be positive, got %g", p.K1)
	}
	if p.B < 0 || p.B > 1 {
		return fmt.Errorf("bm25 b must be in [0,1], got %g", p.B)
	}
	if p.Epsilon < 0 {
		return fmt.Errorf("bm25 epsilon must be non-negative, got %g", p.Epsilon)
	}
	return nil
}
