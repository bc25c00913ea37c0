package embed

import (
	"context"

	docuerrors "github.com/docuchat/docuchat/internal/errors"
)

// RetryingEmbedder wraps an Embedder with exponential backoff. Transient
// provider hiccups (model loading, brief connection loss) are absorbed here
// so callers only see hard failures.
type RetryingEmbedder struct {
	inner Embedder
	cfg   docuerrors.RetryConfig
}

var _ Embedder = (*RetryingEmbedder)(nil)

// NewRetryingEmbedder wraps inner with the given retry policy.
func NewRetryingEmbedder(inner Embedder, cfg docuerrors.RetryConfig) *RetryingEmbedder {
	return &RetryingEmbedder{inner: inner, cfg: cfg}
}

// Embed retries the wrapped call with backoff.
func (r *RetryingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return docuerrors.RetryWithResult(ctx, r.cfg, func() ([]float32, error) {
		return r.inner.Embed(ctx, text)
	})
}

// EmbedBatch retries the wrapped call with backoff. The whole batch is
// retried; providers are assumed idempotent for embedding requests.
func (r *RetryingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return docuerrors.RetryWithResult(ctx, r.cfg, func() ([][]float32, error) {
		return r.inner.EmbedBatch(ctx, texts)
	})
}

// Dimensions returns the embedding dimension (passthrough).
func (r *RetryingEmbedder) Dimensions() int {
	return r.inner.Dimensions()
}

// ModelName returns the model identifier (passthrough).
func (r *RetryingEmbedder) ModelName() string {
	return r.inner.ModelName()
}

// Available checks if the embedder is ready (passthrough).
func (r *RetryingEmbedder) Available(ctx context.Context) bool {
	return r.inner.Available(ctx)
}

// Close closes the inner embedder.
func (r *RetryingEmbedder) Close() error {
	return r.inner.Close()
}
