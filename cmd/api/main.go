package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlog "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"candidate-screener/internal/config"
	"candidate-screener/internal/handlers"
	"candidate-screener/internal/logger"
	"candidate-screener/internal/repositories"
	"candidate-screener/internal/services"
)

func main() {
	cfg := config.Load()

	zlog, err := logger.New(cfg.Server.Env)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	db, err := config.InitDatabase(cfg)
	if err != nil {
		zlog.Fatal("failed to initialize database", zap.Error(err))
	}

	docRepo := repositories.NewDocumentRepository(db)
	evalRepo := repositories.NewEvaluationRepository(db)

	storage := services.NewFileStorage(cfg.Storage.UploadPath)
	if err := storage.EnsureUploadDir(); err != nil {
		zlog.Fatal("failed to create upload directory", zap.Error(err))
	}

	ctx := context.Background()

	llmClient, err := services.NewLLMClient(ctx, cfg.LLM, zlog)
	if err != nil {
		zlog.Fatal("failed to initialize LLM client", zap.Error(err))
	}

	// Embeddings always go through Gemini, whichever provider handles
	// generation.
	embedder, err := services.NewGeminiTransport(ctx, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.EmbedModel)
	if err != nil {
		zlog.Fatal("failed to initialize embedding provider", zap.Error(err))
	}

	vectorIndex, err := services.NewQdrantIndex(cfg.Qdrant.URL, cfg.Qdrant.APIKey, cfg.Qdrant.Collection)
	if err != nil {
		zlog.Fatal("failed to initialize qdrant", zap.Error(err))
	}
	if err := vectorIndex.InitCollection(ctx); err != nil {
		zlog.Fatal("failed to initialize qdrant collection", zap.Error(err))
	}

	retrieval := services.NewRetrievalEngine(
		services.NewTextChunker(),
		embedder,
		vectorIndex,
		cfg.Retrieval.TopK,
		zlog,
	)

	pipeline := services.NewEvaluationPipeline(retrieval, llmClient, cfg.LLM.Temperature, cfg.LLM.MaxTokens, zlog)

	orchestrator := services.NewOrchestrator(evalRepo, docRepo, services.NewPDFParser(), pipeline, cfg.Worker, zlog)

	worker := services.NewWorker(evalRepo, orchestrator, cfg.Worker.Concurrency, zlog)
	orchestrator.SetScheduler(worker)
	worker.Start(ctx)

	uploadHandler := handlers.NewUploadHandler(docRepo, storage, cfg.Storage.MaxFileSize, zlog)
	evaluateHandler := handlers.NewEvaluationHandler(orchestrator)
	resultHandler := handlers.NewResultHandler(orchestrator, evalRepo, zlog)

	app := fiber.New(fiber.Config{
		AppName:      "Candidate Screener API",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		BodyLimit:    int(cfg.Storage.MaxFileSize),
		ErrorHandler: errorHandler,
	})

	app.Use(recover.New())
	app.Use(fiberlog.New(fiberlog.Config{
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	api := app.Group("/api/v1")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now(),
		})
	})

	api.Post("/upload", uploadHandler.HandleUpload)
	api.Post("/evaluate", evaluateHandler.HandleEvaluate)
	api.Delete("/evaluate/:id", evaluateHandler.HandleCancel)
	api.Get("/result/:id", resultHandler.HandleGetResult)
	api.Get("/results", resultHandler.HandleList)
	api.Get("/stats", resultHandler.HandleStats)

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Candidate Screener API",
			"version": "1.0.0",
			"endpoints": []string{
				"POST /api/v1/upload",
				"POST /api/v1/evaluate",
				"DELETE /api/v1/evaluate/:id",
				"GET /api/v1/result/:id",
				"GET /api/v1/results",
				"GET /api/v1/stats",
			},
		})
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		zlog.Info("shutting down server")
		worker.Stop()
		if err := app.Shutdown(); err != nil {
			zlog.Error("server forced to shutdown", zap.Error(err))
		}
	}()

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	zlog.Info("server starting", zap.String("addr", addr))

	if err := app.Listen(addr); err != nil {
		zlog.Fatal("failed to start server", zap.Error(err))
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
		"code":  code,
	})
}
