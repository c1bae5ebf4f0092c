package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"knowledge-agent/config"
	"knowledge-agent/database"
	"knowledge-agent/llmclient"
	"knowledge-agent/retrieval"
	"knowledge-agent/tokens"
	"knowledge-agent/web"
	"knowledge-agent/web/middleware"
	"knowledge-agent/web/services"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	// Initialize logger with default level to load config
	tempLogger, err := config.InitLogger("info")
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	// Load config (which includes log level setting)
	cfg := config.Load(tempLogger)

	// Re-initialize logger with configured level
	logger, err := config.InitLogger(cfg.LogLevel)
	if err != nil {
		fmt.Printf("Failed to re-initialize logger with configured level: %v\n", err)
		os.Exit(1)
	}
	defer config.Cleanup()

	store, err := database.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	if err := store.EnsureSchema(ctx, cfg.EmbeddingDimensions); err != nil {
		logger.Fatal("Failed to ensure database schema", zap.Error(err))
	}

	llm := llmclient.New(cfg, logger)

	retriever, err := retrieval.New(cfg, store, llm, logger)
	if err != nil {
		logger.Fatal("Failed to initialize retriever", zap.Error(err))
	}

	pipeline := services.NewPipeline(cfg, store, retriever, llm, logger)
	counter := tokens.NewCounter(cfg.TokenEncoding)

	limiter, err := middleware.NewClientRateLimiter(
		cfg.RateLimitMessagesPerMin, cfg.RateLimitBurstSize, cfg.RateLimitMaxTracked, logger)
	if err != nil {
		logger.Fatal("Failed to initialize rate limiter", zap.Error(err))
	}

	// Create context that listens for interrupt signals
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.CleanupEnabled {
		cleanupService := web.NewCleanupService(store, logger)
		go cleanupService.Run(ctx, cfg.CleanupInterval, cfg.ConversationRetention)
	}

	webServer := web.NewServer(cfg, store, pipeline, counter, limiter, logger)

	port := fmt.Sprintf(":%d", cfg.WebPort)
	logger.Info("Starting knowledge agent web server", zap.String("port", port))
	if err := webServer.Start(ctx, port); err != nil {
		logger.Error("Web server error", zap.Error(err))
		os.Exit(1)
	}
}
