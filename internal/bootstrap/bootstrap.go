package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/docchat-ai/retrieval/internal/config"
	"github.com/docchat-ai/retrieval/internal/core/ports"
	"github.com/docchat-ai/retrieval/internal/core/usecase"
	"github.com/docchat-ai/retrieval/internal/infrastructure/bus/nats"
	"github.com/docchat-ai/retrieval/internal/infrastructure/cache"
	memorycache "github.com/docchat-ai/retrieval/internal/infrastructure/cache/memory"
	rediscache "github.com/docchat-ai/retrieval/internal/infrastructure/cache/redis"
	"github.com/docchat-ai/retrieval/internal/infrastructure/embedding"
	ollamaembed "github.com/docchat-ai/retrieval/internal/infrastructure/embedding/ollama"
	openaiembed "github.com/docchat-ai/retrieval/internal/infrastructure/embedding/openai"
	memoryregistry "github.com/docchat-ai/retrieval/internal/infrastructure/registry/memory"
	postgresregistry "github.com/docchat-ai/retrieval/internal/infrastructure/registry/postgres"
	"github.com/docchat-ai/retrieval/internal/infrastructure/resilience"
	"github.com/docchat-ai/retrieval/internal/infrastructure/vector/qdrant"
	"github.com/docchat-ai/retrieval/internal/observability/metrics"
)

// App holds the wired service graph. Redis, Postgres and NATS are optional;
// absent ones degrade to in-process equivalents so the pipeline stays usable
// as a single replica or embedded library.
type App struct {
	Config  config.Config
	Metrics *metrics.ServerMetrics

	Ingestor  ports.ChunkIngestor
	Retriever ports.Retriever
	Status    ports.CorpusStatus

	bus     ports.InvalidationBus
	coord   *usecase.RetrieveUseCase
	logger  *slog.Logger
	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	serverMetrics := metrics.NewServerMetrics("retrievald")

	embedExecutor := resilience.NewExecutor(withRateLimit(resilience.DefaultConfig(), cfg))
	embedder := metrics.NewInstrumentedEmbedder(
		embedding.NewResilientProvider(newProvider(cfg), embedExecutor),
		serverMetrics,
	)

	index := qdrant.New(qdrant.Config{
		BaseURL:    cfg.QdrantURL,
		Collection: cfg.QdrantCollection,
		Dimension:  cfg.EmbeddingDimension,
		Embedder:   embedder,
		Logger:     logger,
	})
	if err := index.Init(ctx); err != nil {
		return nil, fmt.Errorf("init vector index: %w", err)
	}

	var closers []func()

	var primaryCache ports.ResultCache
	if cfg.RedisAddr != "" {
		redisCache, err := rediscache.New(rediscache.Config{
			Addrs:    []string{cfg.RedisAddr},
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			logger.Warn("redis cache unavailable, using in-process cache", "error", err)
		} else {
			primaryCache = redisCache
			closers = append(closers, redisCache.Close)
		}
	}
	resultCache := cache.NewFallback(ctx, primaryCache, memorycache.New(), logger)

	var registry ports.SourceRegistry = memoryregistry.New()
	if cfg.PostgresDSN != "" {
		db, err := postgresregistry.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		pgRegistry := postgresregistry.New(db)
		if err := pgRegistry.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		registry = pgRegistry
		closers = append(closers, func() { _ = db.Close() })
	}

	var invalidationBus ports.InvalidationBus
	if cfg.NATSURL != "" {
		bus, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig()),
			Logger:             logger,
		})
		if err != nil {
			return nil, fmt.Errorf("init invalidation bus: %w", err)
		}
		invalidationBus = bus
		closers = append(closers, bus.Close)
	}

	centroid := usecase.NewCentroidCache(index, cfg.CentroidSampleLimit)
	retrieveUC := usecase.NewRetrieveUseCase(
		embedder,
		index,
		resultCache,
		centroid,
		usecase.RetrieverConfig{
			DefaultK:            cfg.RetrievalK,
			KMultiplier:         cfg.RetrievalKMultiplier,
			Mode:                cfg.RetrievalMode,
			MMRLambda:           cfg.MMRLambda,
			SimilarityThreshold: cfg.SimilarityThreshold,
			GatingThreshold:     cfg.GatingThreshold,
			MinQueryTokens:      cfg.MinQueryTokens,
			GatingKeywords:      cfg.GatingKeywords,
			CacheTTL:            cacheTTL(cfg),
		},
		logger,
		serverMetrics,
	)
	ingestUC := usecase.NewIngestUseCase(
		embedder,
		index,
		registry,
		invalidationBus,
		retrieveUC,
		usecase.IngestConfig{
			BatchSize:          cfg.IngestBatchSize,
			MaxConcurrentTasks: cfg.MaxConcurrentTasks,
			DedupThreshold:     cfg.DedupThreshold,
			DedupSampleLimit:   cfg.DedupSampleLimit,
		},
		logger,
	)

	return &App{
		Config:    cfg,
		Metrics:   serverMetrics,
		Ingestor:  ingestUC,
		Retriever: retrieveUC,
		Status:    registry,
		bus:       invalidationBus,
		coord:     retrieveUC,
		logger:    logger,
		closeFn: func() {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		},
	}, nil
}

// ListenInvalidations blocks consuming corpus-change events from sibling
// replicas until ctx is done. A nil bus returns immediately.
func (a *App) ListenInvalidations(ctx context.Context) error {
	if a.bus == nil {
		return nil
	}
	return a.bus.SubscribeCorpusChanged(ctx, func(_ context.Context, generation uint64) error {
		local := a.coord.CorpusChanged()
		a.logger.Info("corpus change received",
			"remote_generation", generation,
			"local_generation", local,
		)
		return nil
	})
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func newProvider(cfg config.Config) ports.EmbeddingProvider {
	if cfg.EmbeddingProvider == "openai" {
		return openaiembed.New(openaiembed.Config{
			APIKey:    cfg.OpenAIAPIKey,
			BaseURL:   cfg.OpenAIBaseURL,
			Model:     cfg.OpenAIModel,
			Dimension: cfg.EmbeddingDimension,
		})
	}
	return ollamaembed.New(cfg.OllamaURL, cfg.OllamaEmbedModel, cfg.EmbeddingDimension)
}

func cacheTTL(cfg config.Config) time.Duration {
	if cfg.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(cfg.CacheTTLSeconds) * time.Second
}

func withRateLimit(base resilience.Config, cfg config.Config) resilience.Config {
	base.RateLimit = cfg.EmbedRateLimit
	base.RateBurst = cfg.EmbedRateBurst
	return base
}
