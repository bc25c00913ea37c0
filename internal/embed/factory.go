package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/docuchat/docuchat/internal/config"
	docuerrors "github.com/docuchat/docuchat/internal/errors"
)

// New builds the configured embedder chain: provider wrapped in retry, then
// LRU cache. With provider "ollama", an unreachable endpoint falls back to
// the static embedder rather than failing startup; retrieval quality degrades
// but the service stays up.
func New(ctx context.Context, cfg config.EmbeddingsConfig) (Embedder, error) {
	var inner Embedder

	switch strings.ToLower(cfg.Provider) {
	case "static":
		inner = NewStaticEmbedder()

	case "ollama":
		ollama, err := NewOllamaEmbedder(ctx, OllamaConfig{
			Host:       cfg.OllamaHost,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			Timeout:    DefaultTimeout,
		})
		if err != nil {
			slog.Warn("ollama_unavailable_using_static",
				slog.String("host", cfg.OllamaHost),
				slog.String("error", err.Error()))
			inner = NewStaticEmbedder()
		} else {
			inner = ollama
		}

	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", cfg.Provider)
	}

	retryCfg := docuerrors.DefaultRetryConfig()
	retryCfg.InitialDelay = 500 * time.Millisecond

	chained := NewCachedEmbedder(NewRetryingEmbedder(inner, retryCfg), cfg.CacheSize)

	slog.Info("embedder_ready",
		slog.String("model", chained.ModelName()),
		slog.Int("dimensions", chained.Dimensions()))
	return chained, nil
}
