package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuchat/docuchat/internal/chunk"
	"github.com/docuchat/docuchat/internal/config"
	"github.com/docuchat/docuchat/internal/embed"
	"github.com/docuchat/docuchat/internal/ingest"
	"github.com/docuchat/docuchat/internal/search"
	"github.com/docuchat/docuchat/internal/store"
)

type testEnv struct {
	srv      *Server
	registry *store.KeywordRegistry
	vectors  *store.HNSWStore
	chats    *store.ChatStore
}

// newTestEnv wires a full server over real components: static embedder,
// in-memory chat store, pagewise chunking.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := config.NewConfig()
	embedder := embed.NewStaticEmbedder()
	registry := store.NewKeywordRegistry(store.DefaultBM25Params())
	vectors := store.NewHNSWStore(store.VectorStoreConfig{Dimensions: embedder.Dimensions()})
	builder := chunk.NewBuilder(chunk.Options{Strategy: chunk.StrategyPagewise})
	pipeline := ingest.NewPipeline(builder, embedder, vectors, registry, nil)

	chats, err := store.OpenChatStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = chats.Close() })

	retriever := search.NewRetriever(registry,
		search.NewLocalVectorSearcher(embedder, vectors),
		search.DefaultFusionConfig())

	srv := New(Options{
		Config:    cfg,
		Pipeline:  pipeline,
		Retriever: retriever,
		Registry:  registry,
		Vectors:   vectors,
		Chats:     chats,
	})
	return &testEnv{srv: srv, registry: registry, vectors: vectors, chats: chats}
}

func (env *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	env.srv.Echo().ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeJSON[map[string]string](t, rec)["error"]
}

// ingestReport uploads a two-page document into session s1.
func (env *testEnv) ingestReport(t *testing.T) {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/api/v1/index", map[string]any{
		"session_id": "s1",
		"doc_id":     "d1",
		"pages": []map[string]any{
			{"page_num": 1, "text": "The quarterly report covers revenue growth."},
			{"page_num": 2, "text": "Expenses increased in the second half."},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestServer_Healthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestServer_IndexDocument(t *testing.T) {
	env := newTestEnv(t)
	env.ingestReport(t)

	stats, ok := env.registry.Stats("s1")
	require.True(t, ok)
	assert.Equal(t, 2, stats.NumChunks)
	assert.Equal(t, 2, env.vectors.SessionCount("s1"))
}

func TestServer_IndexResponseBody(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/index", map[string]any{
		"session_id": "s1",
		"doc_id":     "d1",
		"pages":      []map[string]any{{"text": "A single page of content."}},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	result := decodeJSON[ingest.Result](t, rec)
	assert.Equal(t, "d1", result.DocID)
	assert.Equal(t, 1, result.ChunkCount)
	assert.Equal(t, 1, result.SessionChunkCount)
	assert.True(t, result.Embedded)
}

func TestServer_IndexGeneratesDocID(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/index", map[string]any{
		"session_id": "s1",
		"pages":      []map[string]any{{"text": "Content without a doc id."}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decodeJSON[ingest.Result](t, rec).DocID)
}

func TestServer_IndexValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		body    map[string]any
		wantMsg string
	}{
		{
			name:    "missing session id",
			body:    map[string]any{"pages": []map[string]any{{"text": "x"}}},
			wantMsg: "session_id is required",
		},
		{
			name:    "missing pages",
			body:    map[string]any{"session_id": "s1"},
			wantMsg: "pages are required",
		},
		{
			name:    "no indexable text",
			body:    map[string]any{"session_id": "s1", "pages": []map[string]any{{"text": "   "}}},
			wantMsg: "document contains no indexable text",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/index", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantMsg, errorMessage(t, rec))
		})
	}
}

func TestServer_SearchHybrid(t *testing.T) {
	env := newTestEnv(t)
	env.ingestReport(t)

	rec := env.do(t, http.MethodPost, "/api/v1/search", map[string]any{
		"session_id": "s1",
		"query":      "revenue",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeJSON[searchResponse](t, rec)
	assert.Equal(t, "hybrid", resp.Mode)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "d1", resp.Results[0].Chunk.DocID)
	assert.Equal(t, 1, resp.Results[0].Chunk.PageNum)
}

func TestServer_SearchModes(t *testing.T) {
	env := newTestEnv(t)
	env.ingestReport(t)

	for _, mode := range []string{"keyword", "vector", "hybrid"} {
		rec := env.do(t, http.MethodPost, "/api/v1/search", map[string]any{
			"session_id": "s1",
			"query":      "expenses",
			"mode":       mode,
		})
		require.Equal(t, http.StatusOK, rec.Code, "mode %s: %s", mode, rec.Body.String())
		resp := decodeJSON[searchResponse](t, rec)
		assert.Equal(t, mode, resp.Mode)
		assert.NotEmpty(t, resp.Results, "mode %s", mode)
	}
}

func TestServer_SearchBadMode(t *testing.T) {
	env := newTestEnv(t)
	env.ingestReport(t)

	rec := env.do(t, http.MethodPost, "/api/v1/search", map[string]any{
		"session_id": "s1",
		"query":      "revenue",
		"mode":       "semantic",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "mode must be hybrid, keyword, or vector", errorMessage(t, rec))
}

func TestServer_SearchValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/search", map[string]any{"query": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/search", map[string]any{"session_id": "s1", "query": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_SearchKeywordMissingIndexIs404(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/search", map[string]any{
		"session_id": "never-indexed",
		"query":      "anything",
		"mode":       "keyword",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no index for session; upload a document first", errorMessage(t, rec))
}

func TestServer_SearchHybridUnknownSessionDegrades(t *testing.T) {
	env := newTestEnv(t)

	// No keyword index exists, but the vector side answers with zero
	// matches, so this is an empty 200 rather than 404 or 503.
	rec := env.do(t, http.MethodPost, "/api/v1/search", map[string]any{
		"session_id": "never-indexed",
		"query":      "anything",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, decodeJSON[searchResponse](t, rec).Results)
}

// downVectorSearcher fails every query, simulating a dead embedding backend.
type downVectorSearcher struct{}

func (downVectorSearcher) Query(ctx context.Context, query string, topK int, sessionID string) ([]*store.VectorResult, error) {
	return nil, errors.New("embedding backend down")
}

func TestServer_SearchBothSignalsDownIs503(t *testing.T) {
	env := newTestEnv(t)

	env.srv.retriever = search.NewRetriever(env.registry, downVectorSearcher{}, search.DefaultFusionConfig())

	rec := env.do(t, http.MethodPost, "/api/v1/search", map[string]any{
		"session_id": "never-indexed",
		"query":      "anything",
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "retrieval unavailable for this session", errorMessage(t, rec))
}

func TestServer_Chat(t *testing.T) {
	env := newTestEnv(t)
	env.ingestReport(t)

	rec := env.do(t, http.MethodPost, "/api/v1/chat", map[string]any{
		"session_id": "s1",
		"message":    "What does the report cover?",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeJSON[chatResponse](t, rec)
	assert.Contains(t, resp.Answer, "Relevant passages:")
	assert.NotEmpty(t, resp.Sources)

	// Both turns of the exchange are persisted.
	history, err := env.chats.RecentContext(context.Background(), "s1", 6)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "What does the report cover?", history[0].Content)
	assert.Equal(t, "assistant", history[1].Role)
	assert.Equal(t, resp.Answer, history[1].Content)
}

func TestServer_ChatUnknownSession(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/chat", map[string]any{
		"session_id": "never-indexed",
		"message":    "Is anyone there?",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeJSON[chatResponse](t, rec)
	assert.Equal(t, "No relevant content found in this session's documents.", resp.Answer)
	assert.Empty(t, resp.Sources)
}

func TestServer_ChatValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/chat", map[string]any{"message": "hi"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/chat", map[string]any{"session_id": "s1", "message": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_SessionStats(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/sessions/s1/stats", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	env.ingestReport(t)

	rec = env.do(t, http.MethodGet, "/api/v1/sessions/s1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	stats := decodeJSON[sessionStatsResponse](t, rec)
	assert.Equal(t, "s1", stats.SessionID)
	assert.Equal(t, 2, stats.NumChunks)
	assert.Equal(t, 2, stats.VectorCount)
}

func TestServer_SessionDelete(t *testing.T) {
	env := newTestEnv(t)
	env.ingestReport(t)

	chatRec := env.do(t, http.MethodPost, "/api/v1/chat", map[string]any{
		"session_id": "s1",
		"message":    "remember this",
	})
	require.Equal(t, http.StatusOK, chatRec.Code)

	rec := env.do(t, http.MethodDelete, "/api/v1/sessions/s1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "s1", decodeJSON[map[string]string](t, rec)["deleted"])

	_, ok := env.registry.Stats("s1")
	assert.False(t, ok)
	assert.Zero(t, env.vectors.SessionCount("s1"))

	history, err := env.chats.RecentContext(context.Background(), "s1", 6)
	require.NoError(t, err)
	assert.Empty(t, history)

	// Keyword search now reports the index as gone.
	searchRec := env.do(t, http.MethodPost, "/api/v1/search", map[string]any{
		"session_id": "s1",
		"query":      "revenue",
		"mode":       "keyword",
	})
	assert.Equal(t, http.StatusNotFound, searchRec.Code)
}
