// Package bootstrap builds every dependency of the service from config and
// owns their shutdown.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"notebookrag/internal/ai"
	appsvc "notebookrag/internal/app"
	"notebookrag/internal/cache"
	"notebookrag/internal/config"
	"notebookrag/internal/ingest"
	"notebookrag/internal/observability"
	"notebookrag/internal/pkg/logger"
	"notebookrag/internal/platform/database"
	rabbitmqClient "notebookrag/internal/platform/rabbitmq"
	redisClient "notebookrag/internal/platform/redis"
	weaviateClient "notebookrag/internal/platform/weaviate"
	"notebookrag/internal/rag"
	"notebookrag/internal/repository"
	"notebookrag/internal/retrieval"
	"notebookrag/internal/retrieval/pgvectorstore"
	"notebookrag/internal/retrieval/weaviatestore"
	"notebookrag/internal/stage"
	"notebookrag/internal/tracer"
	"notebookrag/internal/worker"
)

type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	DB       *gorm.DB
	Redis    *redis.Client
	MQConn   *amqp.Connection
	Weaviate *weaviate.Client
	Stage    stage.Gateway
	Metrics  *observability.Metrics

	Sessions *appsvc.SessionService
	Messages *appsvc.MessageService
	Sources  *appsvc.SourceService
	RAG      *appsvc.RAGService

	IngestWorker *worker.IngestWorker

	StartedAt      time.Time
	shutdownTracer func(context.Context) error
}

type indexBackend interface {
	retrieval.Searcher
	retrieval.Indexer
}

// Open connects the database and nothing else. Used by the migrate command.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	if cfg.Database.Driver == "sqlite" {
		if dir := filepath.Dir(cfg.DSN()); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir failed: %w", err)
			}
		}
	}
	return database.New(ctx, cfg.Database.Driver, cfg.DSN(), log)
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	log := logger.New(cfg.Log.File, cfg.Log.Level, cfg.App.Env == "prod")

	app := &App{Config: cfg, Logger: log, Metrics: observability.NewMetrics(), StartedAt: time.Now()}
	if err := app.init(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) init(ctx context.Context) error {
	cfg, log := a.Config, a.Logger

	shutdown, err := tracer.Init(ctx, cfg.Tracing.Enabled, cfg.Tracing.Endpoint, cfg.App.Name, log)
	if err != nil {
		return err
	}
	a.shutdownTracer = shutdown

	a.DB, err = Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	if err := database.Migrate(a.DB); err != nil {
		return err
	}
	stores := repository.NewStores(a.DB)

	history, err := a.historyCache(ctx)
	if err != nil {
		return err
	}

	a.Stage, err = a.stageGateway(ctx)
	if err != nil {
		return err
	}

	backend, err := a.indexBackend(ctx)
	if err != nil {
		return err
	}

	chat, err := ai.NewChatClient(ctx, ai.ChatConfig{
		Provider:    cfg.LLM.Provider,
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: float32(cfg.LLM.Temperature),
		MaxTokens:   cfg.LLM.MaxTokens,
	})
	if err != nil {
		return err
	}

	policy, err := rag.ParseWindowPolicy(cfg.RAG.HistoryPolicy)
	if err != nil {
		return err
	}

	sourceURLTTL := time.Duration(cfg.Stage.SourceURLTTL) * time.Second
	ingestSvc := ingest.NewService(a.Stage, stores.Chunks, backend, ingest.Options{
		ChunkSize:    cfg.Ingest.ChunkSize,
		ChunkOverlap: cfg.Ingest.ChunkOverlap,
		ScopedURLTTL: sourceURLTTL,
	}, a.Metrics, log)
	publisher, err := a.ingestPublisher(ctx, ingestSvc)
	if err != nil {
		return err
	}

	a.Messages = appsvc.NewMessageService(stores, history, cfg.RAG.WindowSize, policy, log)
	a.Sessions = appsvc.NewSessionService(stores, a.Stage, backend, history, a.Metrics, log)
	a.Sources = appsvc.NewSourceService(stores, a.Stage, backend, publisher, log)
	a.RAG = appsvc.NewRAGService(
		stores,
		a.Messages,
		retrieval.NewEngine(backend, cfg.Retrieval.TopK, log),
		rag.NewRewriter(chat, log),
		rag.NewGenerator(chat),
		a.Stage,
		appsvc.RAGOptions{CallTimeout: cfg.CallTimeout(), SourceURLTTL: sourceURLTTL},
		a.Metrics,
		log,
	)

	log.Info("bootstrap complete",
		zap.String("db", cfg.Database.Driver),
		zap.String("retrieval", cfg.Retrieval.Backend),
		zap.String("stage", cfg.Stage.Backend),
		zap.String("llm", cfg.LLM.Provider),
		zap.String("history_policy", string(policy)),
	)
	return nil
}

func (a *App) historyCache(ctx context.Context) (appsvc.HistoryCache, error) {
	cfg := a.Config.Redis
	historyTTL := time.Duration(cfg.HistoryTTLSeconds) * time.Second
	dirtyTTL := time.Duration(cfg.HistoryDirtyTTLSeconds) * time.Second
	if !cfg.Enabled {
		return cache.NewMemoryHistoryCache(historyTTL, dirtyTTL), nil
	}

	client, err := redisClient.New(ctx, redisClient.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err != nil {
		return nil, err
	}
	a.Redis = client
	return cache.NewHistoryCache(client, historyTTL, dirtyTTL), nil
}

func (a *App) stageGateway(ctx context.Context) (stage.Gateway, error) {
	cfg := a.Config.Stage
	if cfg.Backend == "gcs" {
		gw, err := stage.NewGCSGateway(ctx, cfg.Bucket, cfg.CredentialsFile)
		if err != nil {
			return nil, err
		}
		return gw, nil
	}
	gw, err := stage.NewLocalGateway(cfg.LocalDir, a.Config.App.PublicURL, cfg.SigningKey)
	if err != nil {
		return nil, err
	}
	return gw, nil
}

func (a *App) indexBackend(ctx context.Context) (indexBackend, error) {
	cfg := a.Config
	if cfg.Retrieval.Backend == "pgvector" {
		embedder := ai.NewEmbeddingClient(ai.EmbeddingConfig{
			BaseURL:    cfg.Embedding.BaseURL,
			APIKey:     cfg.Embedding.APIKey,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
		})
		store := pgvectorstore.New(a.DB, embedder, cfg.Embedding.Dimensions)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return store, nil
	}

	client, err := weaviateClient.New(ctx, cfg.Weaviate.Host, cfg.Weaviate.Scheme)
	if err != nil {
		return nil, err
	}
	a.Weaviate = client
	store := weaviatestore.New(client, cfg.Weaviate.Class, cfg.Weaviate.Vectorizer)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// ingestPublisher processes uploads inline unless async ingestion over
// rabbitmq is configured, in which case a worker consumes the queue.
func (a *App) ingestPublisher(ctx context.Context, svc *ingest.Service) (ingest.Publisher, error) {
	cfg := a.Config
	if !cfg.Ingest.Async {
		return ingest.NewInlinePublisher(svc), nil
	}
	if !cfg.RabbitMQ.Enabled {
		return nil, errors.New("async ingestion requires rabbitmq")
	}

	conn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}
	a.MQConn = conn

	a.IngestWorker = worker.NewIngestWorker(conn, svc, cfg.RabbitMQ.IngestQueue, a.Logger)
	if err := a.IngestWorker.Start(ctx); err != nil {
		return nil, fmt.Errorf("start ingest worker failed: %w", err)
	}
	return rabbitmqClient.NewJobPublisher(conn, cfg.RabbitMQ.IngestQueue), nil
}

// HealthChecks lists a probe for every connected dependency.
func (a *App) HealthChecks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{}
	if a.DB != nil {
		checks["database"] = func(ctx context.Context) error {
			sqlDB, err := a.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx, a.Redis) }
	}
	if a.MQConn != nil {
		checks["rabbitmq"] = func(context.Context) error { return rabbitmqClient.Ping(a.MQConn) }
	}
	if a.Weaviate != nil {
		checks["weaviate"] = func(ctx context.Context) error {
			ready, err := a.Weaviate.Misc().ReadyChecker().Do(ctx)
			if err != nil {
				return err
			}
			if !ready {
				return errors.New("weaviate not ready")
			}
			return nil
		}
	}
	if a.Stage != nil {
		checks["stage"] = a.Stage.Ping
	}
	return checks
}

func (a *App) Close() error {
	var errs []error
	if a.IngestWorker != nil {
		a.IngestWorker.Close()
	}
	if a.MQConn != nil && !a.MQConn.IsClosed() {
		errs = append(errs, a.MQConn.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.Stage != nil {
		errs = append(errs, a.Stage.Close())
	}
	if a.DB != nil {
		errs = append(errs, database.Close(a.DB))
	}
	if a.shutdownTracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		errs = append(errs, a.shutdownTracer(ctx))
		cancel()
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return errors.Join(errs...)
}
