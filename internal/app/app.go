// Package app wires the application together: configuration, logging,
// database, providers, and the retrieval engine. Commands get a ready App
// and a cleanup function.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/applydi/applydi/db"
	"github.com/applydi/applydi/internal/answer"
	"github.com/applydi/applydi/internal/chunker"
	"github.com/applydi/applydi/internal/config"
	"github.com/applydi/applydi/internal/ingest"
	"github.com/applydi/applydi/internal/llm"
	"github.com/applydi/applydi/internal/log"
	"github.com/applydi/applydi/internal/retrieval"
	"github.com/applydi/applydi/internal/store"
)

// providerRate bounds outbound provider calls across retries.
var providerRate = rate.NewLimiter(rate.Limit(5), 10)

// App holds the wired application components.
type App struct {
	Config   *config.Config
	Logger   log.Logger
	Store    *store.Store
	Engine   *answer.Engine
	Ingestor *ingest.Ingestor
}

// Setup loads configuration and wires every component. The returned cleanup
// function closes the database pool.
func Setup(ctx context.Context) (*App, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger := log.New(log.Config{
		Level: log.ParseLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := store.NewPool(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}
	cleanup := pool.Close

	st := store.New(pool, cfg.EmbeddingDim, logger.With("component", "store"))

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		cleanup()
		return nil, nil, errors.New("initializing genkit")
	}

	client, err := llm.NewClient(llm.Config{
		Genkit:         g,
		OpenAI:         openai.NewClient(os.Getenv("OPENAI_API_KEY")),
		Logger:         logger.With("component", "llm"),
		DefaultModel:   cfg.DefaultModel,
		EmbeddingModel: cfg.EmbeddingModel,
		EmbeddingDim:   cfg.EmbeddingDim,
		RateLimiter:    providerRate,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("creating llm client: %w", err)
	}

	assembler := retrieval.NewAssembler(st, logger.With("component", "retrieval"))

	engine, err := answer.NewEngine(answer.Config{
		Store:     st,
		Assembler: assembler,
		Embedder:  client,
		Completer: client,
		Logger:    logger.With("component", "answer"),
		TopK:      cfg.TopK,
		CacheTTL:  cfg.CacheTTL,
		CacheSize: cfg.CacheSize,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("creating answer engine: %w", err)
	}

	ingestor, err := ingest.New(ingest.Config{
		Store:              st,
		Chunker:            chunker.New(logger.With("component", "chunker")),
		Embedder:           client,
		Logger:             logger.With("component", "ingest"),
		MaxImmediateChunks: cfg.MaxImmediateChunks,
		ChunkOptions: chunker.Options{
			TargetSize: cfg.ChunkTargetSize,
			Overlap:    cfg.ChunkOverlap,
			Mode:       chunker.ModeAuto,
		},
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("creating ingestor: %w", err)
	}

	logger.Info("application ready",
		"model", cfg.DefaultModel,
		"embedding_model", cfg.EmbeddingModel,
		"top_k", cfg.TopK,
	)
	return &App{
		Config:   cfg,
		Logger:   logger,
		Store:    st,
		Engine:   engine,
		Ingestor: ingestor,
	}, cleanup, nil
}

// SetupTimeout bounds how long Setup may take end to end.
const SetupTimeout = 30 * time.Second
