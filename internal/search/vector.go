package search

import (
	"context"
	"fmt"

	"github.com/docuchat/docuchat/internal/embed"
	"github.com/docuchat/docuchat/internal/store"
)

// LocalVectorSearcher satisfies store.VectorSearcher by embedding the query
// and searching the in-process HNSW store. A remote vector service would
// replace this type without touching the retriever.
type LocalVectorSearcher struct {
	embedder embed.Embedder
	vectors  *store.HNSWStore
}

// NewLocalVectorSearcher wires an embedder to the vector store.
func NewLocalVectorSearcher(embedder embed.Embedder, vectors *store.HNSWStore) *LocalVectorSearcher {
	return &LocalVectorSearcher{embedder: embedder, vectors: vectors}
}

var _ store.VectorSearcher = (*LocalVectorSearcher)(nil)

// Query embeds the query text and returns the session's nearest chunks.
// An embedding failure surfaces as an error so the retriever can degrade to
// keyword-only.
func (s *LocalVectorSearcher) Query(ctx context.Context, query string, topK int, sessionID string) ([]*store.VectorResult, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return s.vectors.Search(ctx, vec, topK, sessionID)
}
