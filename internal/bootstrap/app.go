package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"gopherai-pdfqa/internal/ai"
	"gopherai-pdfqa/internal/cache"
	"gopherai-pdfqa/internal/config"
	"gopherai-pdfqa/internal/logger"
	"gopherai-pdfqa/internal/model"
	"gopherai-pdfqa/internal/platform/database"
	rabbitmqClient "gopherai-pdfqa/internal/platform/rabbitmq"
	redisClient "gopherai-pdfqa/internal/platform/redis"
	"gopherai-pdfqa/internal/repository"
	"gopherai-pdfqa/internal/vectorstore"
	"gopherai-pdfqa/internal/worker"
)

type App struct {
	Config        *config.Config
	DB            *gorm.DB
	Redis         *redis.Client
	MQConn        *amqp.Connection
	Store         vectorstore.Store
	Backends      *ai.Registry
	Publisher     *rabbitmqClient.HistoryPublisher
	HistoryWorker *worker.HistoryPersistWorker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	log := logger.New("bootstrap")

	app := &App{Config: cfg, StartedAt: time.Now()}
	ok := false
	defer func() {
		if !ok {
			_ = app.Close()
		}
	}()

	app.DB, err = database.New(ctx, cfg.Database.Driver, cfg.DSN())
	if err != nil {
		return nil, err
	}
	if err := app.DB.AutoMigrate(&model.User{}, &model.QuestionAnswer{}); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	app.Redis, err = redisClient.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}

	embedder := newEmbedder(cfg)
	app.Store, err = newStore(ctx, cfg, embedder)
	if err != nil {
		return nil, err
	}

	app.Backends, err = newBackends(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info("generation backends ready", "backends", app.Backends.Names())

	if cfg.RabbitMQ.Enabled {
		app.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
		if err != nil {
			return nil, err
		}
	}
	if cfg.History.Async {
		historyCache := cache.NewHistoryCache(
			app.Redis,
			time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
			time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
		)
		app.Publisher = rabbitmqClient.NewHistoryPublisher(app.MQConn, cfg.RabbitMQ.HistoryQueue)
		app.HistoryWorker = worker.NewHistoryPersistWorker(
			app.MQConn,
			repository.NewQuestionAnswerRepository(app.DB),
			historyCache,
			cfg.RabbitMQ.HistoryQueue,
		)
		if err := app.HistoryWorker.Start(ctx); err != nil {
			return nil, fmt.Errorf("start history worker failed: %w", err)
		}
	}

	ok = true
	return app, nil
}

func newEmbedder(cfg *config.Config) ai.Embedder {
	embCfg := ai.EmbeddingConfig{
		BaseURL: cfg.Embedding.BaseURL,
		APIKey:  cfg.Embedding.APIKey,
		Model:   cfg.Embedding.Model,
	}
	if cfg.Embedding.Provider == "local" {
		return ai.NewLocalEmbedder(ai.NewOpenAICompatibleClient(0), embCfg)
	}
	return ai.NewOpenAIEmbedder(embCfg)
}

func newStore(ctx context.Context, cfg *config.Config, embedder ai.Embedder) (vectorstore.Store, error) {
	vs := cfg.VectorStore
	if vs.Driver == "qdrant" {
		store, err := vectorstore.NewQdrantStore(ctx, vectorstore.QdrantConfig{
			Host:       vs.QdrantHost,
			Port:       vs.QdrantPort,
			UseTLS:     vs.QdrantTLS,
			APIKey:     vs.QdrantKey,
			Collection: vs.Collection,
		}, embedder)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	store, err := vectorstore.OpenSQLite(ctx, vs.Path, vs.Collection, embedder)
	if err != nil {
		return nil, err
	}
	chunks, err := store.Count(ctx)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("count indexed chunks failed: %w", err)
	}
	logger.New("bootstrap").Info("vector index opened", "path", vs.Path, "collection", vs.Collection, "chunks", chunks)
	return store, nil
}

// newBackends registers openai and llama always; gemini only when a key is
// configured, otherwise requests for it get the unknown-model answer.
func newBackends(ctx context.Context, cfg *config.Config) (*ai.Registry, error) {
	backends := []ai.Backend{
		ai.NewOpenAIBackend(ai.OpenAIConfig{
			BaseURL:   cfg.OpenAI.BaseURL,
			APIKey:    cfg.OpenAI.APIKey,
			Model:     cfg.OpenAI.Model,
			MaxTokens: cfg.OpenAI.MaxTokens,
			Timeout:   seconds(cfg.OpenAI.TimeoutSeconds),
		}),
		ai.NewLlamaBackend(
			ai.NewOpenAICompatibleClient(seconds(cfg.Llama.TimeoutSeconds)),
			ai.ChatConfig{
				BaseURL:   cfg.Llama.BaseURL,
				Model:     cfg.Llama.Model,
				MaxTokens: cfg.Llama.MaxTokens,
			},
			seconds(cfg.Llama.TimeoutSeconds),
		),
	}
	if cfg.Gemini.APIKey != "" {
		gemini, err := ai.NewGeminiBackend(ctx, ai.GeminiConfig{
			APIKey:    cfg.Gemini.APIKey,
			Model:     cfg.Gemini.Model,
			MaxTokens: cfg.Gemini.MaxTokens,
			Timeout:   seconds(cfg.Gemini.TimeoutSeconds),
		})
		if err != nil {
			return nil, err
		}
		backends = append(backends, gemini)
	}
	return ai.NewRegistry(backends...), nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// HealthChecks returns one probe per external dependency.
func (a *App) HealthChecks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{
		"database": func(ctx context.Context) error {
			sqlDB, err := a.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"redis": func(ctx context.Context) error {
			return a.Redis.Ping(ctx).Err()
		},
	}
	if a.MQConn != nil {
		checks["rabbitmq"] = func(context.Context) error {
			if a.MQConn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		}
	}
	return checks
}

func (a *App) Close() error {
	var errs []error
	if a.HistoryWorker != nil {
		a.HistoryWorker.Close()
	}
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
