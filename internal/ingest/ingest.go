// Package ingest turns uploaded documents into searchable chunks. Embedding
// happens inline for the head of the document and is deferred for the rest;
// Backfill completes deferred chunks later.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/applydi/applydi/internal/chunker"
	"github.com/applydi/applydi/internal/llm"
	"github.com/applydi/applydi/internal/store"
)

// DefaultMaxImmediateChunks bounds how many chunks are embedded during the
// upload request itself. Chunks past the bound are stored without a vector
// and picked up by Backfill.
const DefaultMaxImmediateChunks = 20

// Storer is the store write surface ingestion needs.
type Storer interface {
	CreateDocument(ctx context.Context, d store.Document) (store.Document, error)
	CreateChunks(ctx context.Context, docID uuid.UUID, chunks []store.Chunk) ([]store.Chunk, error)
	ListVectorlessChunks(ctx context.Context, docID uuid.UUID) ([]store.Chunk, error)
	SetChunkEmbedding(ctx context.Context, chunkID uuid.UUID, embedding []float32) error
	DeleteDocument(ctx context.Context, docID, userID uuid.UUID) error
}

// Config contains all required parameters for the Ingestor.
type Config struct {
	Store    Storer
	Chunker  *chunker.Chunker
	Embedder llm.Embedder
	Logger   *slog.Logger

	// MaxImmediateChunks overrides the inline embedding bound
	// (zero-value uses DefaultMaxImmediateChunks).
	MaxImmediateChunks int

	// ChunkOptions is passed through to the chunker (zero-value uses the
	// chunker defaults, auto mode included).
	ChunkOptions chunker.Options
}

// validate checks if all required parameters are present.
func (cfg Config) validate() error {
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.Chunker == nil {
		return errors.New("chunker is required")
	}
	if cfg.Embedder == nil {
		return errors.New("embedder is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Request is one document upload.
type Request struct {
	Filename string
	Text     string
	UserID   uuid.UUID
	AgentID  *uuid.UUID
}

// Result reports what one ingestion produced.
type Result struct {
	Document store.Document
	Chunks   int // total chunks stored
	Embedded int // chunks stored with a vector
	Deferred int // chunks stored without a vector
}

// Ingestor chunks, embeds and stores documents.
type Ingestor struct {
	store        Storer
	chunker      *chunker.Chunker
	embedder     llm.Embedder
	logger       *slog.Logger
	maxImmediate int
	chunkOpts    chunker.Options
}

// New creates an Ingestor from cfg.
func New(cfg Config) (*Ingestor, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid ingest config: %w", err)
	}
	if cfg.MaxImmediateChunks <= 0 {
		cfg.MaxImmediateChunks = DefaultMaxImmediateChunks
	}
	return &Ingestor{
		store:        cfg.Store,
		chunker:      cfg.Chunker,
		embedder:     cfg.Embedder,
		logger:       cfg.Logger,
		maxImmediate: cfg.MaxImmediateChunks,
		chunkOpts:    cfg.ChunkOptions,
	}, nil
}

// Ingest stores req as a document plus its chunks. The first
// MaxImmediateChunks chunks are embedded inline; an embedding failure there
// stores the chunk without a vector instead of failing the upload. Chunks
// past the bound are always stored vectorless.
func (ing *Ingestor) Ingest(ctx context.Context, req Request) (Result, error) {
	if req.Filename == "" {
		return Result{}, errors.New("filename is required")
	}

	doc, err := ing.store.CreateDocument(ctx, store.Document{
		UserID:   req.UserID,
		AgentID:  req.AgentID,
		Filename: req.Filename,
		Content:  req.Text,
	})
	if err != nil {
		return Result{}, fmt.Errorf("creating document: %w", err)
	}

	pieces := ing.chunker.Chunk(req.Text, ing.chunkOpts)
	chunks := make([]store.Chunk, len(pieces))
	embedded := 0
	for i, text := range pieces {
		chunks[i] = store.Chunk{Index: int32(i), Text: text}
		if i >= ing.maxImmediate {
			continue
		}
		vec, err := ing.embedder.Embed(ctx, text)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, fmt.Errorf("embedding chunk %d: %w", i, err)
			}
			ing.logger.Warn("storing chunk without vector",
				"document_id", doc.ID,
				"chunk_index", i,
				"error", err,
			)
			continue
		}
		chunks[i].Embedding = vec
		embedded++
	}

	stored, err := ing.store.CreateChunks(ctx, doc.ID, chunks)
	if err != nil {
		return Result{}, fmt.Errorf("storing chunks: %w", err)
	}

	result := Result{
		Document: doc,
		Chunks:   len(stored),
		Embedded: embedded,
		Deferred: len(stored) - embedded,
	}
	ing.logger.Info("document ingested",
		"document_id", doc.ID,
		"chunks", result.Chunks,
		"embedded", result.Embedded,
		"deferred", result.Deferred,
	)
	return result, nil
}

// Backfill embeds the document's vectorless chunks. Chunks whose embedding
// still fails stay vectorless and are reported in the count; the pass keeps
// going past them.
func (ing *Ingestor) Backfill(ctx context.Context, documentID uuid.UUID) (embedded, remaining int, err error) {
	chunks, err := ing.store.ListVectorlessChunks(ctx, documentID)
	if err != nil {
		return 0, 0, fmt.Errorf("listing vectorless chunks: %w", err)
	}

	for _, chunk := range chunks {
		if ctx.Err() != nil {
			return embedded, len(chunks) - embedded, ctx.Err()
		}
		vec, err := ing.embedder.Embed(ctx, chunk.Text)
		if err != nil {
			ing.logger.Warn("backfill left chunk without vector",
				"document_id", documentID,
				"chunk_index", chunk.Index,
				"error", err,
			)
			continue
		}
		if err := ing.store.SetChunkEmbedding(ctx, chunk.ID, vec); err != nil {
			return embedded, len(chunks) - embedded, fmt.Errorf("saving embedding of chunk %d: %w", chunk.Index, err)
		}
		embedded++
	}

	remaining = len(chunks) - embedded
	ing.logger.Info("backfill finished",
		"document_id", documentID,
		"embedded", embedded,
		"remaining", remaining,
	)
	return embedded, remaining, nil
}

// DeleteDocument removes a document; its chunks go with it via the schema's
// cascade.
func (ing *Ingestor) DeleteDocument(ctx context.Context, docID, userID uuid.UUID) error {
	return ing.store.DeleteDocument(ctx, docID, userID)
}
