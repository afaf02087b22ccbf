package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/ddq-agent/backend/internal/answering"
	"github.com/ddq-agent/backend/internal/api/handlers"
	"github.com/ddq-agent/backend/internal/cache/redis"
	"github.com/ddq-agent/backend/internal/documents"
	"github.com/ddq-agent/backend/internal/evaluation"
	"github.com/ddq-agent/backend/internal/extraction"
	"github.com/ddq-agent/backend/internal/index"
	"github.com/ddq-agent/backend/internal/ingestion"
	"github.com/ddq-agent/backend/internal/lifecycle"
	"github.com/ddq-agent/backend/internal/llm"
	"github.com/ddq-agent/backend/internal/metrics"
	"github.com/ddq-agent/backend/internal/middleware/ratelimit"
	"github.com/ddq-agent/backend/internal/middleware/security"
	"github.com/ddq-agent/backend/internal/middleware/validation"
	"github.com/ddq-agent/backend/internal/parsing"
	"github.com/ddq-agent/backend/internal/projects"
	"github.com/ddq-agent/backend/internal/retrieval"
	"github.com/ddq-agent/backend/internal/storage/sqlite"
	"github.com/ddq-agent/backend/internal/workers"
	"github.com/ddq-agent/backend/pkg/config"
	appLogger "github.com/ddq-agent/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting DDQ Agent API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	var cacheClient *redis.Client
	if cfg.Redis.Enabled {
		cacheClient, err = redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer cacheClient.Close()
	}

	chunkIndex := index.New(index.NewLexicalScorer())

	chunks, err := sqliteClient.LoadAllChunks()
	if err != nil {
		appLogger.Fatal("Failed to load persisted chunks", zap.Error(err))
	}
	chunkIndex.Load(chunks)

	chunker := index.NewChunker(
		index.TierConfig{Size: cfg.Index.RetrievalChunkSize, Overlap: cfg.Index.RetrievalChunkOverlap},
		index.TierConfig{Size: cfg.Index.CitationChunkSize, Overlap: cfg.Index.CitationChunkOverlap},
	)

	retriever := retrieval.New(chunkIndex, retrieval.Config{
		AnswerTopK:   cfg.Index.AnswerTopK,
		CitationTopM: cfg.Index.CitationTopM,
		MinOverlap:   cfg.Index.MinOverlap,
	})

	var composer answering.Composer
	if cfg.LLM.Enabled {
		composer = llm.NewClient(
			cfg.LLM.APIKey,
			cfg.LLM.Model,
			cfg.LLM.Temperature,
			cfg.LLM.MaxTokens,
			time.Duration(cfg.LLM.TimeoutSec)*time.Second,
		)
	} else {
		composer = answering.NewConcatComposer()
	}

	control := lifecycle.NewController(sqliteClient)
	extractor := extraction.NewExtractor()
	generator := answering.NewGenerator(retriever, composer)

	answerService := answering.NewService(
		sqliteClient,
		generator,
		control,
		cacheClient,
		time.Duration(cfg.Redis.TTLSec)*time.Second,
		time.Duration(cfg.Generation.QuestionTimeoutSec)*time.Second,
	)

	processor := ingestion.NewProcessor(sqliteClient, chunkIndex, chunker, control, extractor, cacheClient)
	projectService := projects.NewService(sqliteClient, control, extractor, parsing.NewQuestionnaireParser())
	evaluationService := evaluation.NewService(sqliteClient)
	tracker := workers.NewTracker(sqliteClient)

	documentService, err := documents.NewService(sqliteClient, chunkIndex, cfg.Storage.UploadDir)
	if err != nil {
		appLogger.Fatal("Failed to create document service", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	rateLimiter := ratelimit.New(ratelimit.Config{
		Logger: appLogger.GetLogger(),
	})
	defer rateLimiter.Stop()

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, PATCH, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))
	app.Use(rateLimiter.Middleware())
	app.Use(validation.Middleware(validation.Config{
		MaxUploadSize: cfg.Server.BodyLimit,
		Logger:        appLogger.GetLogger(),
	}))

	documentHandler := handlers.NewDocumentHandler(documentService, processor, tracker)
	projectHandler := handlers.NewProjectHandler(projectService, answerService, tracker)
	answerHandler := handlers.NewAnswerHandler(answerService)
	requestHandler := handlers.NewRequestHandler(tracker)
	evaluationHandler := handlers.NewEvaluationHandler(evaluationService)
	wsHandler := handlers.NewWebSocketHandler(tracker)

	api := app.Group("/api/v1")

	api.Post("/documents/upload", documentHandler.UploadDocument)
	api.Post("/documents/register", documentHandler.RegisterDocument)
	api.Post("/documents/:id/index", documentHandler.IndexDocument)
	api.Get("/documents", documentHandler.ListDocuments)
	api.Get("/documents/:id", documentHandler.GetDocument)
	api.Delete("/documents/:id", documentHandler.DeleteDocument)

	api.Post("/projects", projectHandler.CreateProject)
	api.Get("/projects", projectHandler.ListProjects)
	api.Get("/projects/:id", projectHandler.GetProject)
	api.Delete("/projects/:id", projectHandler.DeleteProject)
	api.Patch("/projects/:id/scope", projectHandler.UpdateScope)
	api.Post("/projects/:id/retry", projectHandler.RetryProject)
	api.Get("/projects/:id/status", projectHandler.GetStatus)
	api.Get("/projects/:id/sections", projectHandler.GetSections)
	api.Get("/projects/:id/answers", answerHandler.ListProjectAnswers)
	api.Post("/projects/:id/generate-all", projectHandler.GenerateAll)
	api.Get("/projects/:id/evaluations", evaluationHandler.GetReport)

	api.Post("/answers/generate/:questionID", answerHandler.GenerateAnswer)
	api.Get("/answers/question/:questionID", answerHandler.GetAnswer)
	api.Patch("/answers/:id/review", answerHandler.ReviewAnswer)

	api.Post("/evaluations", evaluationHandler.Evaluate)

	api.Get("/requests/:id", requestHandler.GetRequest)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(wsHandler.HandleConnection))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
