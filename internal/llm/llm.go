// Package llm provides the embedding and completion clients used by
// retrieval and answering. Completion requests route by model ID prefix:
// "gemini:" models go through Genkit, "openai:" models (including
// fine-tuned ones) go through the OpenAI API directly.
package llm

import (
	"context"
	"errors"

	"github.com/firebase/genkit/go/ai"
)

// Sentinel errors for provider calls.
var (
	// ErrEmbeddingUnavailable indicates the embedding provider could not
	// produce a vector. Callers decide whether to degrade or fail.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrEmptyCompletion indicates the model returned no text.
	ErrEmptyCompletion = errors.New("empty completion")
)

// Embedder produces a vector representation of a single text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Completer generates a text answer from a message sequence.
type Completer interface {
	Complete(ctx context.Context, msgs []*ai.Message, opts ...CompleteOption) (string, error)
}

// CompleteOption customizes a single completion call.
type CompleteOption func(*CompleteOptions)

// CompleteOptions is the resolved form of a call's options.
type CompleteOptions struct {
	ModelID    string
	GeminiOnly bool
}

// ApplyCompleteOptions folds opts into a CompleteOptions value.
func ApplyCompleteOptions(opts ...CompleteOption) CompleteOptions {
	var o CompleteOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithModel requests a specific model by qualified ID, e.g.
// "gemini:gemini-2.5-flash" or "openai:ft:gpt-4o-mini:org::abc".
// An empty ID keeps the client default.
func WithModel(modelID string) CompleteOption {
	return func(o *CompleteOptions) {
		o.ModelID = modelID
	}
}

// WithGeminiOnly pins the call to the Gemini provider regardless of the
// requested model. Agents whose workflow depends on Gemini tool behavior
// use this.
func WithGeminiOnly() CompleteOption {
	return func(o *CompleteOptions) {
		o.GeminiOnly = true
	}
}
