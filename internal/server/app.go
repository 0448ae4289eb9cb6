package server

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cortexai/coursebot/internal/agent"
	"github.com/cortexai/coursebot/internal/config"
	"github.com/cortexai/coursebot/internal/embedding"
	"github.com/cortexai/coursebot/internal/llm"
	"github.com/cortexai/coursebot/internal/rag"
	"github.com/cortexai/coursebot/internal/retrieval"
	"github.com/cortexai/coursebot/internal/security"
	"github.com/cortexai/coursebot/internal/service"
	"github.com/cortexai/coursebot/internal/session"
	"github.com/cortexai/coursebot/internal/vectorstore"
	"github.com/rs/zerolog/log"
)

// App holds the long-lived components shared by the HTTP server and the CLI.
type App struct {
	Config   *config.Config
	Index    vectorstore.Index
	Engine   *retrieval.Engine
	LLM      *llm.AnthropicClient
	Sessions session.Store
	Audit    *service.BigQueryAuditSink
	RAG      *rag.System

	closers []io.Closer
}

// Build connects every backend named in cfg. Optional backends that fail
// (the BigQuery audit sink) are logged and disabled; required ones abort.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	embedder, err := embedding.New(embedding.Options{
		Provider: cfg.EmbeddingProvider,
		APIKey:   cfg.EmbeddingAPIKey,
		BaseURL:  cfg.EmbeddingBaseURL,
		Model:    cfg.EmbeddingModel,
		Dims:     cfg.EmbeddingDims,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding provider: %w", err)
	}

	if a.Index, err = buildIndex(ctx, cfg); err != nil {
		return nil, err
	}

	a.Engine = retrieval.NewEngine(a.Index, embedder, retrieval.Config{
		MaxResults:         cfg.MaxResults,
		CourseNameDistance: cfg.CourseNameDistance,
		ContentDistance:    cfg.ContentDistance,
		ResolveCacheTTL:    config.DefaultResolveCacheTTL,
	})

	if cfg.AnthropicAPIKey == "" && cfg.AnthropicBaseURL == "" {
		log.Warn().Msg("ANTHROPIC_API_KEY not set - model calls will fail")
	}
	a.LLM = llm.NewAnthropicClient(llm.AnthropicOptions{
		APIKey:     cfg.AnthropicAPIKey,
		BaseURL:    cfg.AnthropicBaseURL,
		Model:      cfg.AnthropicModel,
		MaxRetries: -1,
	})

	if err := a.buildSessions(ctx); err != nil {
		a.Close()
		return nil, err
	}

	var sink security.AuditSink
	if cfg.EnableAuditLogging && cfg.GCPProjectID != "" && cfg.AuditDataset != "" {
		bq, err := service.NewBigQueryAuditSink(ctx, cfg.GCPProjectID, cfg.GoogleCredentials, cfg.AuditDataset, cfg.AuditTable)
		if err != nil {
			log.Warn().Err(err).Msg("BigQuery audit sink unavailable")
		} else if err := bq.EnsureTable(ctx); err != nil {
			log.Warn().Err(err).Msg("BigQuery audit table unavailable")
			bq.Close()
		} else {
			a.Audit = bq
			a.closers = append(a.closers, bq)
			sink = bq
		}
	}

	a.RAG, err = rag.New(rag.Deps{
		Engine:    a.Engine,
		Client:    a.LLM,
		Sessions:  a.Sessions,
		Validator: security.NewPromptValidator(cfg.MaxPromptLength),
		Audit:     security.NewAuditLogger(cfg.EnableAuditLogging, sink),
		Costs:     security.NewCostTracker(cfg.MaxQueryTokens),
		Agent: agent.Options{
			MaxRounds:  cfg.MaxToolRounds,
			MaxTokens:  cfg.MaxTokens,
			Sequential: cfg.SequentialTools,
		},
		Timeout: cfg.AgentDeadline(),
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	log.Info().
		Str("index_backend", cfg.IndexBackend).
		Str("embedding", embedding.ProviderKey(embedder)).
		Str("model", a.LLM.Model()).
		Str("session_backend", cfg.SessionBackend).
		Bool("audit_sink", a.Audit != nil).
		Bool("sequential_tools", cfg.SequentialTools).
		Msg("service configuration")
	return a, nil
}

func buildIndex(ctx context.Context, cfg *config.Config) (vectorstore.Index, error) {
	if cfg.IndexBackend != "elasticsearch" {
		return vectorstore.NewMemoryIndex(), nil
	}
	es, err := vectorstore.NewElasticsearchIndex(vectorstore.ElasticsearchOptions{
		Scheme:       cfg.ElasticsearchScheme,
		Host:         cfg.ElasticsearchHost,
		Port:         cfg.ElasticsearchPort,
		User:         cfg.ElasticsearchUser,
		Password:     cfg.ElasticsearchPassword,
		VerifyCerts:  cfg.ElasticsearchVerifyCerts,
		MaxRetries:   cfg.ElasticsearchMaxRetries,
		Timeout:      cfg.ElasticsearchTimeout,
		CatalogIndex: cfg.CatalogIndex,
		ContentIndex: cfg.ContentIndex,
		Dims:         cfg.EmbeddingDims,
	})
	if err != nil {
		return nil, err
	}
	if err := es.EnsureIndices(ctx); err != nil {
		return nil, fmt.Errorf("elasticsearch indices: %w", err)
	}
	return es, nil
}

func (a *App) buildSessions(ctx context.Context) error {
	if a.Config.SessionBackend != "postgres" {
		mem := session.NewMemoryStore(a.Config.MaxHistory)
		mem.ExpireIdle(ctx, time.Duration(a.Config.SessionIdleTTL)*time.Minute)
		a.Sessions = mem
		return nil
	}
	db, err := session.OpenPostgres(ctx, a.Config.DatabaseURL)
	if err != nil {
		return err
	}
	pg := session.NewPostgresStore(db, a.Config.MaxHistory)
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return err
	}
	a.Sessions = pg
	a.closers = append(a.closers, pg)
	return nil
}

// Seed ingests the configured seed file, skipping courses already indexed.
func (a *App) Seed(ctx context.Context) error {
	if a.Config.SeedFile == "" {
		return nil
	}
	_, err := rag.IngestFile(ctx, a.Engine, a.Config.SeedFile, true)
	return err
}

// CheckModel sends a minimal request to the model and logs the outcome.
func (a *App) CheckModel(ctx context.Context) error {
	if err := a.LLM.Ping(ctx); err != nil {
		log.Error().Err(err).Str("model", a.LLM.Model()).Msg("model connectivity check failed")
		return err
	}
	log.Info().Str("model", a.LLM.Model()).Msg("model connectivity check passed")
	return nil
}

// Close waits for pending audit writes and releases backend clients.
func (a *App) Close() {
	if a.RAG != nil {
		a.RAG.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			log.Warn().Err(err).Msg("error closing backend client")
		}
	}
	a.closers = nil
}
