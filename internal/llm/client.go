package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// Default models. Model IDs are provider-qualified: "<provider>:<model>".
const (
	// DefaultModelID is used when a request names no model.
	DefaultModelID = "gemini:gemini-2.5-flash"

	// DefaultEmbeddingModel is the OpenAI embedding model.
	DefaultEmbeddingModel = "text-embedding-3-small"

	// DefaultEmbeddingDim is the vector dimension of DefaultEmbeddingModel.
	DefaultEmbeddingDim = 1536
)

// Provider prefixes recognized in model IDs.
const (
	providerGemini = "gemini"
	providerOpenAI = "openai"
)

// OpenAIClient is the subset of the OpenAI SDK the client uses.
type OpenAIClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// Config contains all required parameters for the Client.
type Config struct {
	Genkit *genkit.Genkit
	OpenAI OpenAIClient
	Logger *slog.Logger

	// DefaultModel is the provider-qualified model used when a call names
	// none (zero-value uses DefaultModelID).
	DefaultModel string

	// EmbeddingModel and EmbeddingDim override the OpenAI embedding setup
	// (zero-values use the defaults above).
	EmbeddingModel string
	EmbeddingDim   int

	// Resilience configuration
	RetryConfig RetryConfig   // Provider retry settings (zero-value uses defaults)
	RateLimiter *rate.Limiter // Optional: proactive rate limiting (nil = unlimited)
}

// validate checks if all required parameters are present.
func (cfg Config) validate() error {
	if cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.OpenAI == nil {
		return errors.New("openai client is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Client implements Embedder and Completer over Genkit (Gemini models) and
// the OpenAI API. It is stateless and safe for concurrent use.
type Client struct {
	genkit         *genkit.Genkit
	openai         OpenAIClient
	logger         *slog.Logger
	defaultModel   string
	embeddingModel string
	embeddingDim   int
	retryConfig    RetryConfig
	rateLimiter    *rate.Limiter
}

// NewClient creates a Client from cfg.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid llm config: %w", err)
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = DefaultModelID
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.EmbeddingDim == 0 {
		cfg.EmbeddingDim = DefaultEmbeddingDim
	}
	if cfg.RetryConfig == (RetryConfig{}) {
		cfg.RetryConfig = DefaultRetryConfig()
	}
	return &Client{
		genkit:         cfg.Genkit,
		openai:         cfg.OpenAI,
		logger:         cfg.Logger,
		defaultModel:   cfg.DefaultModel,
		embeddingModel: cfg.EmbeddingModel,
		embeddingDim:   cfg.EmbeddingDim,
		retryConfig:    cfg.RetryConfig,
		rateLimiter:    cfg.RateLimiter,
	}, nil
}

// Embed produces the vector for a single text via the OpenAI embeddings API.
// Failures wrap ErrEmbeddingUnavailable so callers can degrade instead of
// aborting a whole ingestion batch.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := callWithRetry(ctx, c.logger, c.retryConfig, c.rateLimiter, "create embeddings",
		func(ctx context.Context) (openai.EmbeddingResponse, error) {
			return c.openai.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
				Input:      []string{text},
				Model:      openai.EmbeddingModel(c.embeddingModel),
				Dimensions: c.embeddingDim,
			})
		})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrEmbeddingUnavailable, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: provider returned no vectors", ErrEmbeddingUnavailable)
	}
	return resp.Data[0].Embedding, nil
}

// Complete generates an answer for msgs, routing by the model ID prefix.
func (c *Client) Complete(ctx context.Context, msgs []*ai.Message, opts ...CompleteOption) (string, error) {
	o := ApplyCompleteOptions(opts...)
	provider, model := c.resolveModel(o)
	switch provider {
	case providerOpenAI:
		return c.completeOpenAI(ctx, model, msgs)
	default:
		return c.completeGemini(ctx, model, msgs)
	}
}

// resolveModel picks the provider and bare model name for a call. Unknown
// provider prefixes fall back to the default model with a warning rather
// than failing the request.
func (c *Client) resolveModel(o CompleteOptions) (provider, model string) {
	requested := o.ModelID
	if requested == "" {
		requested = c.defaultModel
	}

	provider, model, ok := strings.Cut(requested, ":")
	if !ok || model == "" {
		provider, model = providerGemini, requested
	}

	if provider != providerGemini && provider != providerOpenAI {
		c.logger.Warn("unknown model provider, using default model",
			"requested", requested,
			"default", c.defaultModel,
		)
		provider, model, _ = strings.Cut(c.defaultModel, ":")
	}

	if o.GeminiOnly && provider != providerGemini {
		c.logger.Debug("model pinned to gemini for this call", "requested", requested)
		defProvider, defModel, _ := strings.Cut(c.defaultModel, ":")
		if defProvider != providerGemini {
			defModel = "gemini-2.5-flash"
		}
		provider, model = providerGemini, defModel
	}
	return provider, model
}

func (c *Client) completeGemini(ctx context.Context, model string, msgs []*ai.Message) (string, error) {
	resp, err := callWithRetry(ctx, c.logger, c.retryConfig, c.rateLimiter, "generate",
		func(ctx context.Context) (*ai.ModelResponse, error) {
			return genkit.Generate(ctx, c.genkit,
				ai.WithModelName("googleai/"+model),
				ai.WithMessages(msgs...),
			)
		})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

func (c *Client) completeOpenAI(ctx context.Context, model string, msgs []*ai.Message) (string, error) {
	resp, err := callWithRetry(ctx, c.logger, c.retryConfig, c.rateLimiter, "chat completion",
		func(ctx context.Context) (openai.ChatCompletionResponse, error) {
			return c.openai.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
				Model:    model,
				Messages: toOpenAIMessages(msgs),
			})
		})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

// toOpenAIMessages converts Genkit messages to the OpenAI wire format.
// Tool messages have no equivalent in our prompts and are skipped.
func toOpenAIMessages(msgs []*ai.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, msg := range msgs {
		var role string
		switch msg.Role {
		case ai.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case ai.RoleModel:
			role = openai.ChatMessageRoleAssistant
		case ai.RoleUser:
			role = openai.ChatMessageRoleUser
		default:
			continue
		}
		out = append(out, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Text(),
		})
	}
	return out
}
