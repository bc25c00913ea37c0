// Package server exposes the retrieval system over HTTP: document ingest,
// hybrid search, chat, and session management.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/docuchat/docuchat/internal/config"
	"github.com/docuchat/docuchat/internal/ingest"
	"github.com/docuchat/docuchat/internal/search"
	"github.com/docuchat/docuchat/internal/storage"
	"github.com/docuchat/docuchat/internal/store"
)

// Server holds the wired dependencies behind the HTTP surface.
type Server struct {
	echo      *echo.Echo
	cfg       *config.Config
	pipeline  *ingest.Pipeline
	retriever *search.Retriever
	registry  *store.KeywordRegistry
	vectors   *store.HNSWStore
	chats     *store.ChatStore
	answerer  Answerer
}

// Options bundles the server's dependencies.
type Options struct {
	Config    *config.Config
	Pipeline  *ingest.Pipeline
	Retriever *search.Retriever
	Registry  *store.KeywordRegistry
	Vectors   *store.HNSWStore
	Chats     *store.ChatStore
	Blobs     *storage.LocalBlobStore

	// Answerer generates chat responses from retrieved context. Nil falls
	// back to an extractive answerer that quotes the top chunks.
	Answerer Answerer
}

// New builds the HTTP server and registers all routes.
func New(opts Options) *Server {
	s := &Server{
		cfg:       opts.Config,
		pipeline:  opts.Pipeline,
		retriever: opts.Retriever,
		registry:  opts.Registry,
		vectors:   opts.Vectors,
		chats:     opts.Chats,
		answerer:  opts.Answerer,
	}
	if s.answerer == nil {
		s.answerer = &ExtractiveAnswerer{}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Content-Type"},
	}))
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		slog.Error("http_error",
			slog.Int("status", code),
			slog.String("method", c.Request().Method),
			slog.String("path", c.Request().URL.Path),
			slog.String("error", msg))
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]string{"error": msg})
		}
	}

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	if opts.Blobs != nil {
		e.Static("/blobs", opts.Blobs.Dir())
	}

	api := e.Group("/api/v1")
	api.POST("/index", s.handleIndex)
	api.POST("/search", s.handleSearch)
	api.POST("/chat", s.handleChat)
	api.GET("/sessions/:id/stats", s.handleSessionStats)
	api.DELETE("/sessions/:id", s.handleSessionDelete)

	s.echo = e
	return s
}

// Start blocks serving HTTP on the configured port.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
	slog.Info("http_server_listening", slog.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo exposes the router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
