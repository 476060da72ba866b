package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
)

// GenkitEmbedder adapts a Genkit-registered embedder to the Embedder
// interface. It is the provider-neutral alternative to Client.Embed for
// deployments whose embedding model is registered through a Genkit plugin.
// Transient provider errors are retried with the same backoff policy as
// Client calls.
type GenkitEmbedder struct {
	embedder    ai.Embedder
	logger      *slog.Logger
	retryConfig RetryConfig
}

// NewGenkitEmbedder wraps a Genkit embedder. A nil logger falls back to
// slog.Default.
func NewGenkitEmbedder(embedder ai.Embedder, logger *slog.Logger) *GenkitEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &GenkitEmbedder{
		embedder:    embedder,
		logger:      logger,
		retryConfig: DefaultRetryConfig(),
	}
}

// Embed produces the vector for a single text. Failures wrap
// ErrEmbeddingUnavailable.
func (g *GenkitEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := callWithRetry(ctx, g.logger, g.retryConfig, nil, "embed",
		func(ctx context.Context) (*ai.EmbedResponse, error) {
			return g.embedder.Embed(ctx, &ai.EmbedRequest{
				Input: []*ai.Document{ai.DocumentFromText(text, nil)},
			})
		})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrEmbeddingUnavailable, err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: provider returned no vectors", ErrEmbeddingUnavailable)
	}
	return resp.Embeddings[0].Embedding, nil
}
