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

	"go.uber.org/zap"

	"github.com/ragcore/ingestion-core/internal/config"
	"github.com/ragcore/ingestion-core/internal/database"
	"github.com/ragcore/ingestion-core/internal/handlers"
	"github.com/ragcore/ingestion-core/internal/logger"
	"github.com/ragcore/ingestion-core/internal/metrics"
	"github.com/ragcore/ingestion-core/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	appLogger, err := logger.New(logger.Config{Level: cfg.Logger.Level, Format: cfg.Logger.Format})
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := appLogger.Sync(); err != nil {
			log.Printf("logger sync warning: %v", err)
		}
	}()

	appLogger.Info("starting ingestion processor",
		zap.String("version", cfg.Server.Version),
		zap.String("environment", cfg.Server.Environment),
		zap.String("port", cfg.Server.Port),
	)

	ctx := context.Background()

	chunkStore, err := database.NewChunkStore(ctx, cfg.Postgres, appLogger)
	if err != nil {
		appLogger.Fatal("failed to initialize chunk store", zap.Error(err))
	}
	defer chunkStore.Close()

	storageClient, err := services.NewObjectStoreClient(cfg.Storage, appLogger)
	if err != nil {
		appLogger.Fatal("failed to initialize object store client", zap.Error(err))
	}

	aiClient := services.NewAIServiceClient(cfg.AIService, appLogger)

	documentExtractor := services.NewDocumentExtractor(cfg.Processor, aiClient, appLogger)
	imageDescriptor := services.NewImageDescriptor(cfg.Processor, aiClient, appLogger)
	audioPipeline := services.NewAudioPipeline(cfg.Processor, aiClient, appLogger)
	videoPipeline := services.NewVideoPipeline(cfg.Processor, aiClient, appLogger)

	metricsInstance := metrics.NewMetrics(appLogger)

	mediaDispatcher := services.NewMediaDispatcher(
		storageClient, chunkStore, documentExtractor, imageDescriptor, audioPipeline, videoPipeline,
		cfg.Processor, metricsInstance, appLogger,
	)

	jobDeadline := time.Duration(cfg.Processor.JobDeadlineSeconds) * time.Second
	processorServer := handlers.NewProcessorServer(
		mediaDispatcher, chunkStore, aiClient, cfg.Processor.MaxConcurrentJobs, jobDeadline, metricsInstance, appLogger,
	)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      processorServer.Router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		appLogger.Info("processor HTTP server listening", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("processor HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("shutting down processor")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("processor forced to shutdown", zap.Error(err))
	}
	appLogger.Info("processor exited")
}

func init() {
	os.Setenv("TZ", "UTC")
	fmt.Print(`
 ____                  ____               _____
|  _ \ __ _  __ _  ___ / ___|___  _ __ ___|___ /
| |_) / _' |/ _' |/ __| |   / _ \| '__/ _ \ |_ \
|  _ < (_| | (_| | (__| |__| (_) | | |  __/___) |
|_| \_\__,_|\__, |\___|\____\___/|_|  \___|____/
            |___/
RAG Ingestion Core - document/image/audio/video processor
`)
}
