package main

import (
	"context"
	"log"

	"github.com/hibiken/asynq"

	"context-rag-platform/internal/ai"
	"context-rag-platform/internal/config"
	"context-rag-platform/internal/logger"
	"context-rag-platform/internal/queue"
	"context-rag-platform/internal/store"
	"context-rag-platform/internal/telemetry"
	"context-rag-platform/services"
	"context-rag-platform/utils"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		logger.Warn("Metrics disabled", "error", err)
	}

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := utils.WithTimeout(context.Background())
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()

	geminiClient, err := ai.NewGeminiClient(cfg.GeminiAPIKey, cfg.CompletionModel, cfg.VectorDimensions, cfg.GeminiTier)
	if err != nil {
		log.Fatal("Failed to initialize Gemini client:", err)
	}
	defer geminiClient.Close()

	st := store.NewMongoStore(mongoClient, cfg.DBName)
	extractor := services.NewDocumentExtractor(st)
	pipeline := services.NewPipelineService(
		st,
		services.NewChunkerService(),
		services.NewEmbeddingService(geminiClient),
		services.NewVectorIndexService(),
		extractor,
		metrics,
		cfg.IndexStorageDir,
		cfg.DefaultChunkSize,
	)
	versionManager := services.NewVersionManagerService(st)
	processor := queue.NewTaskProcessor(pipeline, versionManager)

	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				"default": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskProcessContext, processor.ProcessContext)

	logger.Info("Starting worker", "concurrency", cfg.WorkerConcurrency, "redis", cfg.RedisURL)
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
