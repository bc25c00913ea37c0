// Package ingest runs the upload pipeline: pages are chunked, embedded,
// added to the vector store, and the session's keyword index is rebuilt over
// the union of everything the session has ever ingested.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/docuchat/docuchat/internal/chunk"
	"github.com/docuchat/docuchat/internal/embed"
	"github.com/docuchat/docuchat/internal/storage"
	"github.com/docuchat/docuchat/internal/store"
)

// embedConcurrency bounds parallel embedding batches per ingest.
const embedConcurrency = 4

// Document is one upload: extracted pages plus optional original blob for
// provenance.
type Document struct {
	DocID     string
	SessionID string
	Pages     []chunk.Page

	// Blob, when set, is stored under BlobKey and its URL attached to
	// every chunk as citation provenance.
	Blob    io.Reader
	BlobKey string
}

// Result summarizes one ingest.
type Result struct {
	DocID string `json:"doc_id"`

	// ChunkCount is the number of chunks produced from this document.
	ChunkCount int `json:"chunk_count"`

	// SessionChunkCount is the total chunks indexed for the session after
	// this ingest, across all its documents.
	SessionChunkCount int `json:"session_chunk_count"`

	// Embedded is false when the embedding collaborator failed and the
	// document is keyword-searchable only.
	Embedded bool `json:"embedded"`

	// BlobURL is the stored document's provenance URL, when a blob was
	// provided.
	BlobURL string `json:"blob_url,omitempty"`
}

// Pipeline wires the ingest collaborators. Dependencies are injected at
// construction; there is no ambient state.
type Pipeline struct {
	builder  *chunk.Builder
	embedder embed.Embedder
	vectors  *store.HNSWStore
	registry *store.KeywordRegistry
	blobs    storage.BlobStore

	// mu serializes ingests per process so two uploads into one session
	// cannot interleave their union rebuilds.
	mu sync.Mutex
}

// NewPipeline creates a pipeline. blobs may be nil when provenance storage
// is not configured.
func NewPipeline(builder *chunk.Builder, embedder embed.Embedder, vectors *store.HNSWStore, registry *store.KeywordRegistry, blobs storage.BlobStore) *Pipeline {
	return &Pipeline{
		builder:  builder,
		embedder: embedder,
		vectors:  vectors,
		registry: registry,
		blobs:    blobs,
	}
}

// Ingest runs the full pipeline for one document.
//
// The keyword index is rebuilt from the union of the session's previously
// indexed chunks and this document's chunks, with any prior version of the
// same document replaced. Keyword and vector search therefore always cover
// the same set of documents for the session.
//
// Embedding failure degrades rather than aborts: the keyword index is still
// rebuilt and the document remains retrievable by keyword alone.
func (p *Pipeline) Ingest(ctx context.Context, doc Document) (*Result, error) {
	if doc.DocID == "" || doc.SessionID == "" {
		return nil, fmt.Errorf("doc id and session id are required")
	}

	chunks, err := p.builder.Build(doc.DocID, doc.SessionID, doc.Pages)
	if err != nil {
		return nil, fmt.Errorf("chunk document %s: %w", doc.DocID, err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("document %s: %w", doc.DocID, store.ErrEmptyChunks)
	}

	result := &Result{DocID: doc.DocID, ChunkCount: len(chunks)}

	var blobKey string
	if doc.Blob != nil && p.blobs != nil {
		blobKey = doc.BlobKey
		if blobKey == "" {
			blobKey = doc.SessionID + "/" + doc.DocID + ".pdf"
		}
		url, err := p.blobs.Put(ctx, blobKey, doc.Blob)
		if err != nil {
			return nil, fmt.Errorf("store blob for %s: %w", doc.DocID, err)
		}
		result.BlobURL = url
		for _, c := range chunks {
			c.PDFURL = url
		}
	}

	embedded := true
	if err := p.embedChunks(ctx, chunks); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			p.discardBlob(blobKey)
			return nil, err
		}
		slog.Warn("ingest_embedding_failed",
			slog.String("doc_id", doc.DocID),
			slog.String("session_id", doc.SessionID),
			slog.String("error", err.Error()))
		embedded = false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Replacement covers both indexes: the document's previous vectors leave
	// together with its previous keyword chunks, so a re-upload with fewer
	// chunks cannot keep stale text vector-retrievable.
	p.vectors.DeleteDoc(doc.SessionID, doc.DocID)
	if embedded {
		if err := p.vectors.Add(ctx, chunks); err != nil {
			p.discardBlob(blobKey)
			return nil, fmt.Errorf("add vectors for %s: %w", doc.DocID, err)
		}
		result.Embedded = true
	}

	union := p.sessionUnion(doc.SessionID, doc.DocID, chunks)
	if err := p.registry.Build(doc.SessionID, union); err != nil {
		p.discardBlob(blobKey)
		return nil, fmt.Errorf("build keyword index for %s: %w", doc.SessionID, err)
	}
	result.SessionChunkCount = len(union)

	slog.Info("document_ingested",
		slog.String("doc_id", doc.DocID),
		slog.String("session_id", doc.SessionID),
		slog.Int("chunks", result.ChunkCount),
		slog.Int("session_chunks", result.SessionChunkCount),
		slog.Bool("embedded", result.Embedded))
	return result, nil
}

// discardBlob removes a blob stored earlier in an ingest that then failed, so
// no unreferenced file is left behind. Uses a fresh context: cleanup must run
// even when the ingest was cancelled.
func (p *Pipeline) discardBlob(key string) {
	if key == "" || p.blobs == nil {
		return
	}
	if err := p.blobs.Delete(context.Background(), key); err != nil {
		slog.Warn("ingest_blob_cleanup_failed",
			slog.String("key", key),
			slog.String("error", err.Error()))
	}
}

// sessionUnion merges the new chunks with the session's existing index
// snapshot, dropping any prior chunks of the same document (re-upload
// replaces).
func (p *Pipeline) sessionUnion(sessionID, docID string, fresh []*store.Chunk) []*store.Chunk {
	existing, _ := p.registry.Chunks(sessionID)
	union := make([]*store.Chunk, 0, len(existing)+len(fresh))
	for _, c := range existing {
		if c.DocID != docID {
			union = append(union, c)
		}
	}
	return append(union, fresh...)
}

// embedChunks fills each chunk's embedding, batching in parallel.
func (p *Pipeline) embedChunks(ctx context.Context, chunks []*store.Chunk) error {
	batchSize := embed.DefaultBatchSize

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, c := range batch {
				texts[i] = c.Text
			}
			vecs, err := p.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return err
			}
			for i, c := range batch {
				c.Embedding = vecs[i]
			}
			return nil
		})
	}

	return g.Wait()
}

// DeleteSession removes all retrieval state for a session: keyword index and
// vectors. Chat history and blobs are owned by their stores.
func (p *Pipeline) DeleteSession(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registry.Delete(sessionID)
	p.vectors.DeleteSession(sessionID)
}
