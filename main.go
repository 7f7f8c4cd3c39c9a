package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/sparkacademy/portal-service/internal/cache"
	"github.com/sparkacademy/portal-service/internal/config"
	"github.com/sparkacademy/portal-service/internal/events"
	"github.com/sparkacademy/portal-service/internal/handlers"
	"github.com/sparkacademy/portal-service/internal/live"
	"github.com/sparkacademy/portal-service/internal/llm"
	"github.com/sparkacademy/portal-service/internal/repositories/casdoor"
	"github.com/sparkacademy/portal-service/internal/repositories/postgres"
	"github.com/sparkacademy/portal-service/internal/services"
	"github.com/sparkacademy/portal-service/internal/storage"
	"github.com/sparkacademy/portal-service/internal/utils"
	"github.com/sparkacademy/portal-service/internal/validator"
	"github.com/sparkacademy/portal-service/internal/worker"
	"github.com/sparkacademy/portal-service/pkg"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	slogLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	logger := utils.NewSlogLogger(slogLogger)

	// Initialize database
	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Initialize Redis (if configured)
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = pkg.NewRedisClient(cfg)
		if err != nil {
			log.Printf("Warning: Failed to initialize Redis: %v", err)
		}
	}

	// Initialize repositories
	repoConfig := postgres.RepositoryConfig{
		DB:          db,
		RedisClient: redisClient,
		CasdoorConfig: casdoor.CasdoorConfig{
			Endpoint:         cfg.Casdoor.Endpoint,
			ClientID:         cfg.Casdoor.ClientID,
			ClientSecret:     cfg.Casdoor.ClientSecret,
			Certificate:      cfg.Casdoor.Cert,
			OrganizationName: cfg.Casdoor.Organization,
			ApplicationName:  cfg.Casdoor.Application,
		},
	}
	repoManager := postgres.NewRepositoryManager(repoConfig)
	if err := repoManager.Initialize(); err != nil {
		log.Fatalf("Failed to initialize repositories: %v", err)
	}

	// Initialize validator
	validator := validator.New()

	// Initialize event publisher (Kafka when brokers are configured)
	var publisher events.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher, err := events.NewKafkaEventPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, slogLogger)
		if err != nil {
			log.Fatalf("Failed to initialize Kafka publisher: %v", err)
		}
		publisher = kafkaPublisher
	} else {
		publisher = events.NewMockEventPublisher(slogLogger)
	}

	// Initialize generative model provider
	provider, err := llm.NewClient(llm.Config{
		BaseURL:    cfg.Provider.BaseURL,
		APIKey:     cfg.Provider.APIKey,
		ChatModel:  cfg.Provider.ChatModel,
		ImageModel: cfg.Provider.ImageModel,
		VideoModel: cfg.Provider.VideoModel,
		TTSModel:   cfg.Provider.TTSModel,
		LiveURL:    cfg.Provider.LiveURL,
		Timeout:    cfg.Provider.Timeout,
	})
	if err != nil {
		log.Fatalf("Failed to initialize model provider: %v", err)
	}

	// Initialize object storage for generated media
	store, err := storage.NewFromConfig(cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize object storage: %v", err)
	}

	// Initialize live session tickets (voice is disabled without a secret)
	var ticketIssuer *live.TicketIssuer
	if cfg.Live.TicketSecret != "" {
		ticketIssuer = live.NewTicketIssuer(cfg.Live.TicketSecret, cfg.Live.TicketTTL)
	} else {
		logger.Warn("LIVE_TICKET_SECRET not set, live voice sessions are disabled")
	}

	// Initialize services
	deps := services.Dependencies{
		DB:                db,
		Repo:              repoManager.GetRepository(),
		Logger:            slogLogger,
		Validator:         validator,
		Publisher:         publisher,
		CacheManager:      cache.NewCacheManager(redisClient),
		Provider:          provider,
		Store:             store,
		TicketIssuer:      ticketIssuer,
		MediaHistoryLimit: cfg.Media.HistoryLimit,
		DefaultVoice:      cfg.Live.DefaultVoice,
	}

	var serviceManager services.ServiceManager
	switch cfg.Environment {
	case "production":
		serviceManager = services.CreateProductionServiceManager(deps)
	case "development":
		serviceManager = services.CreateDevelopmentServiceManager(deps)
	default:
		serviceManager = services.NewDefaultServiceManager(deps)
	}
	if err := serviceManager.Initialize(context.Background()); err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}

	// Initialize handlers
	handlerManager := handlers.NewHandlerManager(serviceManager, store, logger, cfg.Casdoor)

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Setup middleware
	handlers.SetupMiddleware(router, logger)

	// Note: Authentication middleware is applied per route group in SetupRoutes
	handlerManager.SetupRoutes(router)

	// Start background workers for reminders and video polling
	workerCtx, workerCancel := context.WithCancel(context.Background())
	runner := worker.NewRunner(serviceManager.Planner(), serviceManager.Media(), cfg.Worker, logger)
	runner.Start(workerCtx)

	// Create HTTP server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Starting server", "port", cfg.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Stop background workers before the services they call
	workerCancel()
	runner.Wait()

	// Shutdown services
	if err := serviceManager.Shutdown(ctx); err != nil {
		log.Printf("Failed to shutdown services: %v", err)
	}

	// Close database connection
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	// Close Redis connection
	if redisClient != nil {
		redisClient.Close()
	}

	logger.Info("Server exited")
}
