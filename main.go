package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"zeenix-trading-bot/config"
	"zeenix-trading-bot/internal/api"
	"zeenix-trading-bot/internal/bot"
	"zeenix-trading-bot/internal/cache"
	"zeenix-trading-bot/internal/database"
	"zeenix-trading-bot/internal/deriv"
	"zeenix-trading-bot/internal/events"
	"zeenix-trading-bot/internal/logging"
	"zeenix-trading-bot/internal/logstream"
	"zeenix-trading-bot/internal/risk"
	"zeenix-trading-bot/internal/strategy"
	"zeenix-trading-bot/internal/ticks"

	"github.com/rs/zerolog"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)
	logger.Info("Structured logging initialized")

	zlog := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Initialize event bus
	eventBus := events.NewEventBus()
	logger.Info("Event bus initialized")

	// Initialize database
	dbConfig := database.Config{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "zeenix_bot"),
		Password: getEnv("DB_PASSWORD", "zeenix_bot_password"),
		Database: getEnv("DB_NAME", "zeenix_bot"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}

	db, err := database.NewDB(dbConfig)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run database migrations
	ctx := context.Background()
	if err := db.RunMigrations(ctx); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Create repository
	repo := database.NewRepository(db)

	// Redis-backed session config cache, degrades to direct reads
	cacheService := cache.NewCacheService(cfg.RedisConfig)
	defer cacheService.Close()
	sessionCache := cache.NewSessionCache(cacheService, repo, cfg.RiskConfig.ConfigCacheTTL)
	logger.Info("Session cache initialized", "redis_enabled", cfg.RedisConfig.Enabled)

	// Batched activity log writer
	logQueue := logstream.NewQueue(repo, cfg.LogStreamConfig, zlog)
	logQueue.Start()

	// Risk controller
	riskController := risk.NewController(repo, sessionCache, eventBus, logQueue, logger)
	logger.Info("Risk controller initialized")

	// Market data and trading gateway
	gateway := deriv.NewGateway(cfg.DerivConfig, zlog)
	tickStore := ticks.NewStore(cfg.DerivConfig.MaxHistory)

	// Strategy runtime
	runtime := strategy.NewRuntime(cfg.DerivConfig.PrimarySymbol, cfg.TradingConfig,
		gateway, tickStore, repo, sessionCache, riskController, logQueue, eventBus, logger)
	riskController.OnStop(runtime.RemoveUser)

	// Orchestrator ties market data, sessions, and maintenance together
	orchestrator := bot.NewOrchestrator(cfg, repo, gateway, tickStore, runtime, logQueue, eventBus, logger)
	if err := orchestrator.Start(ctx); err != nil {
		log.Fatalf("Failed to start orchestrator: %v", err)
	}

	// HTTP API
	server := api.NewServer(cfg.ServerConfig, cfg.TradingConfig, repo, sessionCache, tickStore, gateway, orchestrator, logger)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("Failed to start web server: %v", err)
		}
	}()

	logger.Info("Zeenix trading bot started",
		"symbol", cfg.DerivConfig.PrimarySymbol,
		"api", cfg.ServerConfig.Port)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down web server: %v", err)
	}

	orchestrator.Stop()
	logQueue.Stop()

	log.Println("Shutdown complete")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
