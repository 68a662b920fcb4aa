package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/balidesk/oracle/pkg/config"
	"github.com/balidesk/oracle/pkg/embedder"
	"github.com/balidesk/oracle/pkg/golden"
	"github.com/balidesk/oracle/pkg/ingest"
	"github.com/balidesk/oracle/pkg/kg"
	"github.com/balidesk/oracle/pkg/llm"
	"github.com/balidesk/oracle/pkg/memory"
	"github.com/balidesk/oracle/pkg/observability"
	"github.com/balidesk/oracle/pkg/orchestrator"
	"github.com/balidesk/oracle/pkg/retrieval"
	"github.com/balidesk/oracle/pkg/session"
	"github.com/balidesk/oracle/pkg/store"
	"github.com/balidesk/oracle/pkg/tools"
	"github.com/balidesk/oracle/pkg/vector"
)

// app holds the wired components. Missing credentials leave the dependent
// component nil and its surface degraded, never a startup failure.
type app struct {
	cfg *config.Config

	db       *store.Store
	vectors  vector.Store
	embed    embedder.Embedder
	ladder   *llm.Ladder
	sessions session.Store
	metrics  *observability.Metrics

	ingestor *ingest.Ingestor
	orch     *orchestrator.Orchestrator
}

// buildApp wires every component the configuration allows.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	metrics, err := observability.InitMetrics(observability.MetricsConfig{Enabled: cfg.Metrics.Enabled})
	if err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	a.metrics = metrics

	if cfg.Database.URL != "" {
		db, err := store.New(cfg.Database)
		if err != nil {
			slog.Warn("Postgres unavailable, persistence degraded", "error", err)
		} else if err := db.EnsureSchema(ctx); err != nil {
			slog.Warn("Schema bootstrap failed, persistence degraded", "error", err)
			db.Close()
		} else {
			a.db = db
		}
	} else {
		slog.Warn("DATABASE_URL not set, persistence degraded")
	}

	emb, err := embedder.New(cfg.Embedder)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	a.embed = emb

	vectors, err := vector.NewQdrantStore(cfg.Vector)
	if err != nil {
		slog.Warn("Qdrant unavailable, retrieval degraded", "error", err)
	} else {
		a.vectors = vectors
	}

	a.ladder = buildLadder(cfg.LLM)
	if a.ladder != nil {
		a.ladder.OnFallback(func(model string) {
			a.metrics.RecordLLMFallback(context.WithoutCancel(ctx), model)
		})
	}
	a.sessions = buildSessions(ctx, cfg.Session)

	a.ingestor = a.buildIngestor()
	a.orch = a.buildOrchestrator(ctx)

	return a, nil
}

// buildLadder assembles the fallback chain from whichever providers have
// keys. No keys at all means no chat capability.
func buildLadder(cfg config.LLMConfig) *llm.Ladder {
	var tiers []llm.Provider

	if cfg.GeminiAPIKey != "" {
		if p, err := llm.NewGeminiProvider(llm.GeminiConfig{APIKey: cfg.GeminiAPIKey, Model: cfg.FlashModel}); err != nil {
			slog.Warn("Gemini flash tier unavailable", "error", err)
		} else {
			tiers = append(tiers, p)
		}
		if p, err := llm.NewGeminiProvider(llm.GeminiConfig{APIKey: cfg.GeminiAPIKey, Model: cfg.FlashLiteModel}); err != nil {
			slog.Warn("Gemini flash-lite tier unavailable", "error", err)
		} else {
			tiers = append(tiers, p)
		}
	}
	if cfg.AnthropicAPIKey != "" {
		if p, err := llm.NewAnthropicProvider(llm.AnthropicConfig{APIKey: cfg.AnthropicAPIKey, Model: cfg.ExternalModel}); err != nil {
			slog.Warn("Anthropic tier unavailable", "error", err)
		} else {
			tiers = append(tiers, p)
		}
	}

	ladder, err := llm.NewLadder(tiers...)
	if err != nil {
		slog.Warn("No LLM providers configured, query answering degraded")
		return nil
	}
	return ladder
}

// buildSessions picks redis, then sqlite, then memory.
func buildSessions(ctx context.Context, cfg config.SessionConfig) session.Store {
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Warn("Invalid REDIS_URL, falling back to sqlite", "error", err)
		} else {
			s, err := session.NewRedisStore(ctx, session.RedisConfig{
				Addr:     opts.Addr,
				Password: opts.Password,
				DB:       opts.DB,
				TTL:      cfg.TTL,
			})
			if err != nil {
				slog.Warn("Redis unavailable, falling back to sqlite", "error", err)
			} else {
				return s
			}
		}
	}

	s, err := session.NewSQLiteStore(cfg.SQLitePath)
	if err != nil {
		slog.Warn("SQLite session store unavailable, sessions are in-memory only", "error", err)
		return session.NewMemoryStore()
	}
	return s
}

func (a *app) buildIngestor() *ingest.Ingestor {
	if a.db == nil || a.vectors == nil {
		return nil
	}

	var graphs ingest.GraphBuilder
	var hyde ingest.Generator
	if a.ladder != nil {
		graphs = kg.NewBuilder(a.ladder, a.db)
		hyde = a.ladder
	}

	in, err := ingest.New(ingest.Config{
		StrictQuality:    a.cfg.Ingest.StrictQuality,
		Workers:          a.cfg.Ingest.Workers,
		MaxChunksPerFile: a.cfg.Ingest.MaxChunksPerFile,
		UpsertBatchSize:  a.cfg.Ingest.UpsertBatchSize,
		KGChunks:         a.cfg.Ingest.KGChunks,
		HydeQuestions:    a.cfg.Ingest.HydeQuestions,
	}, a.embed, a.vectors, a.db, graphs, hyde, a.metrics)
	if err != nil {
		slog.Warn("Ingestion unavailable", "error", err)
		return nil
	}
	return in
}

func (a *app) buildOrchestrator(ctx context.Context) *orchestrator.Orchestrator {
	if a.ladder == nil {
		return nil
	}

	var goldenCache orchestrator.GoldenCache
	var assembler orchestrator.MemoryAssembler
	var memoryWriter orchestrator.MemoryWriter
	if a.db != nil {
		cache, err := golden.NewCache(a.db, a.embed, golden.Config{
			SemanticThreshold: a.cfg.Golden.SemanticThreshold,
			CachePath:         a.cfg.Golden.CachePath,
		})
		if err != nil {
			slog.Warn("Golden cache unavailable", "error", err)
		} else {
			// Warm the semantic matrices in the background; lookups stay
			// exact-only until the load completes.
			loadCtx := context.WithoutCancel(ctx)
			go func() {
				if err := cache.Load(loadCtx); err != nil {
					slog.Warn("Golden cache load failed, exact matching only", "error", err)
				}
			}()
			goldenCache = cache
		}
		assembler = memory.NewAssembler(a.db)
		memoryWriter = a.db
	}

	var retriever orchestrator.Retriever
	var recall orchestrator.MemorySearcher
	if a.vectors != nil {
		var reranker *retrieval.Reranker
		if a.cfg.Retrieval.RerankEnable {
			reranker = retrieval.NewReranker(a.ladder, 0)
		}
		retriever = retrieval.NewEngine(a.embed, a.vectors, reranker, retrieval.Config{
			DefaultLimit:     a.cfg.Retrieval.DefaultLimit,
			RerankMultiplier: a.cfg.Retrieval.RerankMultiplier,
		})
		recall = memory.NewRecall(a.embed, a.vectors)
	}

	registry := tools.NewRegistry()
	if a.vectors != nil {
		mustRegister(registry, tools.NewPricingLookup(a.embed, a.vectors))
		mustRegister(registry, tools.NewKBLILookup(a.embed, a.vectors))
	}
	if a.db != nil {
		mustRegister(registry, tools.NewParentDocument(a.db))
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Golden:       goldenCache,
		Assembler:    assembler,
		Retriever:    retriever,
		Chat:         a.ladder,
		Tools:        registry,
		Sessions:     a.sessions,
		MemoryWriter: memoryWriter,
		Recall:       recall,
		Metrics:      a.metrics,
		MaxTokens:    a.cfg.LLM.MaxTokens,
		Temperature:  a.cfg.LLM.Temperature,
		ToolHopLimit: a.cfg.LLM.ToolHopLimit,
	})
	if err != nil {
		slog.Warn("Query pipeline unavailable", "error", err)
		return nil
	}
	return orch
}

func mustRegister(r *tools.Registry, t tools.Tool) {
	if err := r.Register(t); err != nil {
		slog.Warn("Failed to register tool", "error", err)
	}
}

// close releases held connections.
func (a *app) close() {
	if a.sessions != nil {
		if err := a.sessions.Close(); err != nil {
			slog.Warn("Failed to close session store", "error", err)
		}
	}
	if a.vectors != nil {
		if err := a.vectors.Close(); err != nil {
			slog.Warn("Failed to close vector store", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			slog.Warn("Failed to close database", "error", err)
		}
	}
	if a.ladder != nil {
		if err := a.ladder.Close(); err != nil {
			slog.Warn("Failed to close LLM providers", "error", err)
		}
	}
	if a.embed != nil {
		if err := a.embed.Close(); err != nil {
			slog.Warn("Failed to close embedder", "error", err)
		}
	}
}

// shutdownTimeout bounds graceful HTTP drain on exit.
const shutdownTimeout = 10 * time.Second
