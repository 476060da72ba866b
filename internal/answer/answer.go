// Package answer orchestrates question answering: it resolves the document
// scope, embeds the question, ranks and assembles context, and drives one
// completion call. It holds no persistent state beyond a small answer cache.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/applydi/applydi/internal/llm"
	"github.com/applydi/applydi/internal/retrieval"
	"github.com/applydi/applydi/internal/store"
)

// DefaultTopK is how many ranked chunks feed the context block.
const DefaultTopK = 8

// AdvisoryNoDocuments is returned verbatim when an explicit document
// selection resolves to nothing. No model call is made.
const AdvisoryNoDocuments = "None of the selected documents could be found. Please check your selection."

// Outcome classifies how a Result was produced.
type Outcome string

const (
	// OutcomeAnswered is a retrieval-grounded answer.
	OutcomeAnswered Outcome = "answered"

	// OutcomeDirect is a model-only answer; the scope held no documents.
	OutcomeDirect Outcome = "direct"

	// OutcomeNoDocuments means the explicit document selection matched
	// nothing; Text carries the fixed advisory message.
	OutcomeNoDocuments Outcome = "no_documents"
)

// AnswerError wraps a completion failure with its cause preserved.
type AnswerError struct {
	Cause error
}

func (e *AnswerError) Error() string { return "generating answer: " + e.Cause.Error() }
func (e *AnswerError) Unwrap() error { return e.Cause }

// Request is one question to answer.
type Request struct {
	Question string
	UserID   uuid.UUID
	AgentID  *uuid.UUID  // optional persona
	DocIDs   []uuid.UUID // optional explicit document selection
	History  []Turn      // prior turns, oldest first
	ModelID  string      // optional explicit model, overrides the agent's
}

// Result is the engine's answer.
type Result struct {
	Text    string
	Outcome Outcome
	Cached  bool
}

// Reader is the store read surface the engine needs.
type Reader interface {
	GetAgent(ctx context.Context, id uuid.UUID) (store.Agent, error)
	ListChunksInScope(ctx context.Context, scope store.Scope) ([]store.ChunkWithDocument, error)
	LastAgentMessage(ctx context.Context, agentID uuid.UUID) (string, error)
}

// ContextAssembler turns ranked chunks into a prompt-ready context block.
type ContextAssembler interface {
	Assemble(ctx context.Context, scored []retrieval.Scored) (retrieval.Context, error)
}

// Config contains all required parameters for the Engine.
type Config struct {
	Store     Reader
	Assembler ContextAssembler
	Embedder  llm.Embedder
	Completer llm.Completer
	Logger    *slog.Logger

	TopK      int           // zero-value uses DefaultTopK
	CacheTTL  time.Duration // zero-value uses DefaultCacheTTL
	CacheSize int           // zero-value uses DefaultCacheSize
}

// validate checks if all required parameters are present.
func (cfg Config) validate() error {
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.Assembler == nil {
		return errors.New("assembler is required")
	}
	if cfg.Embedder == nil {
		return errors.New("embedder is required")
	}
	if cfg.Completer == nil {
		return errors.New("completer is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Engine answers questions against a user's document scope. It is stateless
// apart from the answer cache and safe for concurrent use.
type Engine struct {
	store     Reader
	assembler ContextAssembler
	embedder  llm.Embedder
	completer llm.Completer
	logger    *slog.Logger
	topK      int
	cache     *answerCache
}

// NewEngine creates an Engine from cfg.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid answer config: %w", err)
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	return &Engine{
		store:     cfg.Store,
		assembler: cfg.Assembler,
		embedder:  cfg.Embedder,
		completer: cfg.Completer,
		logger:    cfg.Logger,
		topK:      cfg.TopK,
		cache:     newAnswerCache(cfg.CacheTTL, cfg.CacheSize),
	}, nil
}

// Answer resolves the scope and produces one answer.
//
// Three paths:
//  1. explicit DocIDs that match nothing: the fixed advisory message, no
//     embedding and no model call;
//  2. empty scope with no explicit selection: direct completion without
//     retrieval;
//  3. otherwise: embed, rank, assemble, complete.
//
// The engine never retries provider calls; the llm client does that.
func (e *Engine) Answer(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Question) == "" {
		return Result{}, errors.New("question is required")
	}

	var agent *store.Agent
	if req.AgentID != nil {
		a, err := e.store.GetAgent(ctx, *req.AgentID)
		if err != nil {
			return Result{}, fmt.Errorf("loading agent: %w", err)
		}
		agent = &a
	}

	var agentType store.AgentType
	if agent != nil {
		agentType = agent.Type
	}
	key := cacheKey(req.UserID, req.Question, req.DocIDs, agentType)
	if text, ok := e.cache.get(key); ok {
		e.logger.Debug("answer served from cache", "user_id", req.UserID)
		return Result{Text: text, Outcome: OutcomeAnswered, Cached: true}, nil
	}

	chunks, err := e.store.ListChunksInScope(ctx, store.Scope{
		UserID:      req.UserID,
		AgentID:     req.AgentID,
		DocumentIDs: req.DocIDs,
	})
	if err != nil {
		return Result{}, fmt.Errorf("resolving document scope: %w", err)
	}

	if len(chunks) == 0 {
		if len(req.DocIDs) > 0 {
			return Result{Text: AdvisoryNoDocuments, Outcome: OutcomeNoDocuments}, nil
		}
		return e.answerDirect(ctx, req, agent, key)
	}
	return e.answerWithRetrieval(ctx, req, agent, key, chunks)
}

// answerDirect completes without retrieval. Used when the user has no
// documents at all.
func (e *Engine) answerDirect(ctx context.Context, req Request, agent *store.Agent, key string) (Result, error) {
	msgs := e.buildMessages(ctx, req, agent, "")
	text, err := e.completer.Complete(ctx, msgs, e.completeOptions(req, agent)...)
	if err != nil {
		return Result{}, &AnswerError{Cause: err}
	}
	e.cache.put(key, text)
	return Result{Text: text, Outcome: OutcomeDirect}, nil
}

func (e *Engine) answerWithRetrieval(
	ctx context.Context,
	req Request,
	agent *store.Agent,
	key string,
	chunks []store.ChunkWithDocument,
) (Result, error) {
	vec, err := e.embedder.Embed(ctx, req.Question)
	if err != nil {
		return Result{}, fmt.Errorf("embedding question: %w", err)
	}

	scored := retrieval.Rank(vec, chunks, e.topK)
	assembled, err := e.assembler.Assemble(ctx, scored)
	if err != nil {
		return Result{}, fmt.Errorf("assembling context: %w", err)
	}
	e.logger.Debug("retrieval complete",
		"candidates", len(chunks),
		"ranked", len(scored),
	)

	msgs := e.buildMessages(ctx, req, agent, assembled.Text)
	text, err := e.completer.Complete(ctx, msgs, e.completeOptions(req, agent)...)
	if err != nil {
		return Result{}, &AnswerError{Cause: err}
	}
	e.cache.put(key, text)
	return Result{Text: text, Outcome: OutcomeAnswered}, nil
}

// buildMessages assembles the prompt: optional system agent context,
// optional assistant memory hint, then one user message holding the
// flattened history, the question, and the context block.
func (e *Engine) buildMessages(ctx context.Context, req Request, agent *store.Agent, contextText string) []*ai.Message {
	var msgs []*ai.Message

	if agent != nil && agent.Context != "" {
		msgs = append(msgs, ai.NewSystemMessage(ai.NewTextPart(agent.Context)))
	}

	// The memory hint is best effort: a read failure degrades the prompt,
	// not the answer.
	if agent != nil {
		last, err := e.store.LastAgentMessage(ctx, agent.ID)
		if err != nil {
			e.logger.Warn("skipping agent memory hint", "agent_id", agent.ID, "error", err)
		} else if last != "" {
			msgs = append(msgs, ai.NewModelMessage(ai.NewTextPart("Agent memory: "+last)))
		}
	}

	var sb strings.Builder
	if history := flattenHistory(LastTurns(req.History, historyWindow)); history != "" {
		sb.WriteString(history)
		sb.WriteString("\n")
	}
	sb.WriteString("Question: ")
	sb.WriteString(req.Question)
	if contextText != "" {
		sb.WriteString("\n")
		sb.WriteString(contextText)
	}
	return append(msgs, ai.NewUserMessage(ai.NewTextPart(sb.String())))
}

// completeOptions resolves the model for a call. An explicit request model
// wins over the agent's fine-tuned model. Actionable agents are pinned to
// Gemini.
func (e *Engine) completeOptions(req Request, agent *store.Agent) []llm.CompleteOption {
	var opts []llm.CompleteOption

	modelID := req.ModelID
	if modelID == "" && agent != nil && agent.FinetunedModelID != nil {
		modelID = *agent.FinetunedModelID
	}
	if modelID != "" {
		opts = append(opts, llm.WithModel(modelID))
	}
	if agent != nil && agent.Type == store.AgentActionable {
		opts = append(opts, llm.WithGeminiOnly())
	}
	return opts
}
