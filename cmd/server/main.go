package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"returns-service/config"
	"returns-service/internal/api"
	"returns-service/internal/broker"
	"returns-service/internal/extractor"
	"returns-service/internal/redisclient"
	"returns-service/internal/report"
	"returns-service/internal/seed"
	"returns-service/internal/service"
	"returns-service/internal/store"
	"returns-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting returns service")

	tp, err := util.InitTracer("returns-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.Path)
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database opened", zap.String("path", db.Path()))

	var (
		idempotency service.IdempotencyStore
		locker      service.Locker
	)
	if cfg.Redis.Addr != "" {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()

		idempotency = redisclient.NewIdempotencyStore(redisClient,
			time.Duration(cfg.Redis.IdempotencyTTLHours)*time.Hour,
			time.Duration(cfg.Redis.PendingTTLSeconds)*time.Second)
		locker = redisClient
		logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))
	} else {
		logger.Info("Redis not configured, idempotency keys disabled")
	}

	var publisher service.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicReturn)
		defer producer.Close()

		publisher = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	} else {
		logger.Info("Kafka not configured, domain events disabled")
	}

	var source store.SeedSource
	if cfg.Seed.CSVURL != "" {
		source = seed.NewCSVSource(cfg.Seed.CSVURL, time.Duration(cfg.Seed.TimeoutSeconds)*time.Second, logger)
	}

	startupCtx, startupCancel := context.WithTimeout(context.Background(), time.Minute)
	err = service.NewStartup(db, source, locker).Run(startupCtx)
	startupCancel()
	if err != nil {
		logger.Fatal("Startup routine failed", zap.Error(err))
	}

	ex, err := extractor.New(cfg.Extraction.Provider, extractor.GeminiConfig{
		APIKey:  cfg.Extraction.APIKey,
		Model:   cfg.Extraction.Model,
		BaseURL: cfg.Extraction.BaseURL,
		Timeout: time.Duration(cfg.Extraction.TimeoutSeconds) * time.Second,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to configure extractor", zap.Error(err))
	}

	ingestion := service.NewIngestionService(db, idempotency, publisher)
	reports := service.NewReportService(report.NewGenerator(db, cfg.Report.Path, logger), publisher)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(ingestion, reports, ex, db)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
