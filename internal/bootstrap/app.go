package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"askdocs/internal/ai"
	"askdocs/internal/cache"
	"askdocs/internal/chunker"
	"askdocs/internal/config"
	"askdocs/internal/ingest"
	"askdocs/internal/loader"
	"askdocs/internal/model"
	"askdocs/internal/ocr"
	mysqlClient "askdocs/internal/platform/mysql"
	rabbitmqClient "askdocs/internal/platform/rabbitmq"
	redisClient "askdocs/internal/platform/redis"
	"askdocs/internal/queue"
	"askdocs/internal/repository"
	"askdocs/internal/vectorstore"
	"askdocs/internal/worker"
)

// App holds every long-lived resource: datastores, broker connection, the
// vector index and the background workers.
type App struct {
	Config       *config.Config
	MySQL        *gorm.DB
	Redis        *redis.Client
	MQConn       *amqp.Connection
	VectorIndex  *vectorstore.QdrantIndex
	LLM          *ai.OpenAICompatibleClient
	Publisher    *queue.Publisher
	HistoryCache *cache.HistoryCache

	ingestWorker       *worker.IngestWorker
	vectorDeleteWorker *worker.VectorDeleteWorker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		return nil, err
	}
	if err := mysqlDB.AutoMigrate(
		&model.User{},
		&model.Document{},
		&model.ChatSession{},
		&model.ChatMessage{},
		&model.SessionDocument{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}

	index, err := vectorstore.NewQdrantIndex(vectorstore.QdrantOptions{
		Host:   cfg.Qdrant.Host,
		Port:   cfg.Qdrant.Port,
		APIKey: cfg.Qdrant.APIKey,
		UseTLS: cfg.Qdrant.UseTLS,
		Dim:    cfg.Qdrant.EmbeddingDim,
	})
	if err != nil {
		return nil, err
	}

	llmClient := ai.NewOpenAICompatibleClient(ai.Config{
		BaseURL:        cfg.LLM.BaseURL,
		APIKey:         cfg.LLM.APIKey,
		Model:          cfg.LLM.Model,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
	})

	publisher := queue.NewPublisher(mqConn, cfg.RabbitMQ.IngestQueue, cfg.RabbitMQ.VectorDeleteQueue)

	historyCache := cache.NewHistoryCache(
		redisCli,
		time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)

	docRepo := repository.NewDocumentRepository(mysqlDB)
	docLoader := loader.NewUniversalLoader(ocr.NewTesseractEngine(), cfg.Ingest.MinTextLength)
	splitter := chunker.NewSplitter(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	processor := ingest.NewProcessor(docRepo, docLoader, splitter, llmClient, index, cfg.Ingest.EmbedBatch)

	policy := worker.RetryPolicy{
		MaxAttempts: cfg.RabbitMQ.MaxAttempts,
		Backoff:     time.Duration(cfg.RabbitMQ.RetryBackoffSeconds) * time.Second,
	}
	ingestWorker := worker.NewIngestWorker(mqConn, publisher, processor, cfg.RabbitMQ.IngestQueue, policy)
	if err := ingestWorker.Start(ctx); err != nil {
		return nil, fmt.Errorf("start ingest worker failed: %w", err)
	}
	vectorDeleteWorker := worker.NewVectorDeleteWorker(mqConn, publisher, processor, cfg.RabbitMQ.VectorDeleteQueue, policy)
	if err := vectorDeleteWorker.Start(ctx); err != nil {
		ingestWorker.Close()
		return nil, fmt.Errorf("start vector delete worker failed: %w", err)
	}

	return &App{
		Config:             cfg,
		MySQL:              mysqlDB,
		Redis:              redisCli,
		MQConn:             mqConn,
		VectorIndex:        index,
		LLM:                llmClient,
		Publisher:          publisher,
		HistoryCache:       historyCache,
		ingestWorker:       ingestWorker,
		vectorDeleteWorker: vectorDeleteWorker,
		StartedAt:          time.Now(),
	}, nil
}

func (a *App) Close() error {
	var closeErr error
	if a.ingestWorker != nil {
		a.ingestWorker.Close()
	}
	if a.vectorDeleteWorker != nil {
		a.vectorDeleteWorker.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.VectorIndex != nil {
		if err := a.VectorIndex.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
