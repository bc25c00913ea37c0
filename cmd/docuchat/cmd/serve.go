package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/docuchat/docuchat/internal/chunk"
	"github.com/docuchat/docuchat/internal/config"
	"github.com/docuchat/docuchat/internal/embed"
	"github.com/docuchat/docuchat/internal/ingest"
	"github.com/docuchat/docuchat/internal/logging"
	"github.com/docuchat/docuchat/internal/search"
	"github.com/docuchat/docuchat/internal/server"
	"github.com/docuchat/docuchat/internal/storage"
	"github.com/docuchat/docuchat/internal/store"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the docuchat HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logFile := cfg.Server.LogFile
	if logFile == "" {
		logFile = filepath.Join(cfg.Storage.DataDir, "logs", "docuchat.log")
	}
	logCfg := logging.DefaultConfig(logFile)
	logCfg.Level = cfg.Server.LogLevel
	logCleanup, err := logging.SetupDefault(logCfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logCleanup()

	lock := storage.NewDataDirLock(cfg.Storage.DataDir)
	acquired, err := lock.TryLock()
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("data directory %s is in use by another docuchat process", cfg.Storage.DataDir)
	}
	defer func() { _ = lock.Unlock() }()

	blobs, err := storage.NewLocalBlobStore(filepath.Join(cfg.Storage.DataDir, "blobs"), cfg.Storage.BaseURL)
	if err != nil {
		return err
	}

	chats, err := store.OpenChatStore(filepath.Join(cfg.Storage.DataDir, "chat.db"))
	if err != nil {
		return err
	}
	defer func() { _ = chats.Close() }()

	embedder, err := embed.New(ctx, cfg.Embeddings)
	if err != nil {
		return err
	}
	defer func() { _ = embedder.Close() }()

	registry := store.NewKeywordRegistry(store.BM25Params{
		K1:      cfg.Index.BM25K1,
		B:       cfg.Index.BM25B,
		Epsilon: cfg.Index.BM25Epsilon,
	})
	vectors := store.NewHNSWStore(store.VectorStoreConfig{Dimensions: embedder.Dimensions()})

	builder := chunk.NewBuilder(chunk.Options{
		Strategy:         chunk.Strategy(cfg.Chunking.Strategy),
		MaxChunkSize:     cfg.Chunking.MaxChunkSize,
		MinChunkSize:     cfg.Chunking.MinChunkSize,
		OverlapSentences: cfg.Chunking.OverlapSentences,
		OverlapPages:     cfg.Chunking.OverlapPages,
	})

	pipeline := ingest.NewPipeline(builder, embedder, vectors, registry, blobs)
	retriever := search.NewRetriever(registry, search.NewLocalVectorSearcher(embedder, vectors), search.FusionConfig{
		K: cfg.Search.RRFConstant,
		Weights: search.Weights{
			Keyword: cfg.Search.KeywordWeight,
			Vector:  cfg.Search.VectorWeight,
		},
	})

	srv := server.New(server.Options{
		Config:    cfg,
		Pipeline:  pipeline,
		Retriever: retriever,
		Registry:  registry,
		Vectors:   vectors,
		Chats:     chats,
		Blobs:     blobs,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Expired session indexes are evicted on a fixed cadence, TTL measured
	// from build time.
	go func() {
		ticker := time.NewTicker(cfg.Index.CleanupIntervalDuration())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				registry.Cleanup(cfg.Index.TTLDuration())
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
