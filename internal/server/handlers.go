package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/docuchat/docuchat/internal/chunk"
	"github.com/docuchat/docuchat/internal/ingest"
	"github.com/docuchat/docuchat/internal/search"
	"github.com/docuchat/docuchat/internal/store"
)

type indexPage struct {
	PageNum           int      `json:"page_num"`
	Text              string   `json:"text"`
	ImageDescriptions []string `json:"image_descriptions,omitempty"`
}

type indexRequest struct {
	SessionID string      `json:"session_id"`
	DocID     string      `json:"doc_id,omitempty"`
	Pages     []indexPage `json:"pages"`
}

func (s *Server) handleIndex(c echo.Context) error {
	var req indexRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.SessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id is required")
	}
	if len(req.Pages) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "pages are required")
	}
	if req.DocID == "" {
		req.DocID = uuid.NewString()
	}

	pages := make([]chunk.Page, len(req.Pages))
	for i, p := range req.Pages {
		num := p.PageNum
		if num == 0 {
			num = i + 1
		}
		pages[i] = chunk.Page{
			PageNum:           num,
			Text:              p.Text,
			ImageDescriptions: p.ImageDescriptions,
		}
	}

	result, err := s.pipeline.Ingest(c.Request().Context(), ingest.Document{
		DocID:     req.DocID,
		SessionID: req.SessionID,
		Pages:     pages,
	})
	if err != nil {
		if errors.Is(err, store.ErrEmptyChunks) {
			return echo.NewHTTPError(http.StatusBadRequest, "document contains no indexable text")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

type searchRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
	TopK      int    `json:"top_k,omitempty"`
	Mode      string `json:"mode,omitempty"`
}

type searchResponse struct {
	Results []*search.Result `json:"results"`
	Mode    string           `json:"mode"`
}

func (s *Server) handleSearch(c echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.SessionID == "" || strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id and query are required")
	}
	if req.TopK <= 0 {
		req.TopK = s.cfg.Search.TopK
	}
	if req.Mode == "" {
		req.Mode = string(store.SearchMethodHybrid)
	}

	ctx := c.Request().Context()
	var (
		results []*search.Result
		err     error
	)
	switch store.SearchMethod(req.Mode) {
	case store.SearchMethodHybrid:
		results, err = s.retriever.Retrieve(ctx, req.SessionID, req.Query, req.TopK)
	case store.SearchMethodKeyword:
		results, err = s.retriever.RetrieveKeyword(ctx, req.SessionID, req.Query, req.TopK)
	case store.SearchMethodVector:
		results, err = s.retriever.RetrieveVector(ctx, req.SessionID, req.Query, req.TopK)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "mode must be hybrid, keyword, or vector")
	}

	if err != nil {
		switch {
		case errors.Is(err, search.ErrRetrievalUnavailable):
			// Distinct from an empty result set: no signal could run.
			return echo.NewHTTPError(http.StatusServiceUnavailable, "retrieval unavailable for this session")
		case errors.Is(err, store.ErrIndexMissing):
			return echo.NewHTTPError(http.StatusNotFound, "no index for session; upload a document first")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusOK, searchResponse{Results: results, Mode: req.Mode})
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	TopK      int    `json:"top_k,omitempty"`
}

type chatResponse struct {
	Answer  string           `json:"answer"`
	Sources []*search.Result `json:"sources"`
}

func (s *Server) handleChat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.SessionID == "" || strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id and message are required")
	}
	if req.TopK <= 0 {
		req.TopK = s.cfg.Search.TopK
	}

	ctx := c.Request().Context()

	results, err := s.retriever.Retrieve(ctx, req.SessionID, req.Message, req.TopK)
	if err != nil {
		if errors.Is(err, search.ErrRetrievalUnavailable) {
			return echo.NewHTTPError(http.StatusServiceUnavailable,
				"retrieval unavailable; upload a document to this session first")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	history, err := s.chats.RecentContext(ctx, req.SessionID, s.cfg.Chat.HistoryTurns)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	answer, err := s.answerer.Answer(ctx, req.Message, results, history)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	if err := s.chats.SaveMessage(ctx, req.SessionID, "user", req.Message); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if err := s.chats.SaveMessage(ctx, req.SessionID, "assistant", answer); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, chatResponse{Answer: answer, Sources: results})
}

type sessionStatsResponse struct {
	*store.IndexStats
	VectorCount int `json:"vector_count"`
}

func (s *Server) handleSessionStats(c echo.Context) error {
	sessionID := c.Param("id")
	stats, ok := s.registry.Stats(sessionID)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no index for session")
	}
	return c.JSON(http.StatusOK, sessionStatsResponse{
		IndexStats:  stats,
		VectorCount: s.vectors.SessionCount(sessionID),
	})
}

func (s *Server) handleSessionDelete(c echo.Context) error {
	sessionID := c.Param("id")
	s.pipeline.DeleteSession(sessionID)
	if _, err := s.chats.DeleteSession(c.Request().Context(), sessionID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"deleted": sessionID})
}
