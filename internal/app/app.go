package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/prismdocs/prism-server/internal/config"
	"github.com/prismdocs/prism-server/internal/core"
	db "github.com/prismdocs/prism-server/internal/core/database"
	"github.com/prismdocs/prism-server/internal/core/ingestion_engine"
	"github.com/prismdocs/prism-server/internal/core/llm"
	"github.com/prismdocs/prism-server/internal/core/storage"
	"github.com/prismdocs/prism-server/internal/core/vectorindex"
	"github.com/prismdocs/prism-server/internal/logger"
)

const queryCacheTTL = 24 * time.Hour

type App struct {
	DBClient  core.DbClient
	FileStore core.FileStore
	Ingestor  *ingestion_engine.DocumentIngestor
	Index     *vectorindex.Store
	Server    *Server
	Logger    *zap.Logger
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	log, err := logger.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	log.Info("database initialized and bootstrapped")

	store, err := newFileStore(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init file store: %w", err)
	}
	log.Info("file store ready", zap.String("backend", cfg.StorageBackend))

	embedder, err := newEmbedder(appCtx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}

	var index *vectorindex.Store
	var indexer ingestion_engine.ChunkIndexer
	if embedder != nil {
		index = vectorindex.NewStore(dbClient, embedder, log)
		indexer = index
	} else {
		log.Warn("no embedding provider configured; search is disabled")
	}

	extractor := ingestion_engine.NewPdfExtractor(cfg.PDFMaxPages, log)
	renderer := ingestion_engine.NewImageRenderer(store, cfg.OutputDir,
		cfg.RenderScale, cfg.RenderQuality, cfg.RenderMaxPages, cfg.RenderTimeout, log)
	chunker := ingestion_engine.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap, cfg.ChunkMinLength)

	ingestor := ingestion_engine.NewDocumentIngestor(
		dbClient, store, extractor, renderer, chunker, indexer, cfg.QueueSize, log)

	server := NewServer(cfg, dbClient, store, ingestor, index, log)

	return &App{
		DBClient:  dbClient,
		FileStore: store,
		Ingestor:  ingestor,
		Index:     index,
		Server:    server,
		Logger:    log,
	}, nil
}

func (a *App) Close() {
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
}

func newFileStore(ctx context.Context, cfg *config.Config) (core.FileStore, error) {
	switch cfg.StorageBackend {
	case "s3":
		return storage.NewS3Store(ctx, cfg)
	case "local", "":
		return storage.NewLocalStore(cfg.DataDir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// newEmbedder builds the configured provider, optionally wrapped with a
// Redis query cache. Returns nil when embedding is disabled; ingestion
// still runs, search just has nothing to rank.
func newEmbedder(ctx context.Context, cfg *config.Config, log *zap.Logger) (core.EmbeddingProvider, error) {
	var provider core.EmbeddingProvider
	var err error

	switch cfg.EmbedProvider {
	case "huggingface":
		provider = llm.NewHFEmbedder(cfg, log)
	case "gemini":
		provider, err = llm.NewGeminiEmbedder(ctx, cfg.AIAPIKey, cfg.EmbedModel, cfg.EmbedDim)
	case "openai":
		provider, err = llm.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbedModel, cfg.EmbedDim)
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbedProvider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, query cache disabled", zap.Error(err))
			return provider, nil
		}
		provider = llm.NewCachedEmbedder(provider, rdb, queryCacheTTL, log)
		log.Info("query embedding cache enabled")
	}

	return provider, nil
}
