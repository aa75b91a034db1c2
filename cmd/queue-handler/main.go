package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ragcore/ingestion-core/internal/config"
	"github.com/ragcore/ingestion-core/internal/database"
	"github.com/ragcore/ingestion-core/internal/logger"
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

	appLogger.Info("starting ingestion queue handler",
		zap.String("version", cfg.Server.Version),
		zap.String("environment", cfg.Server.Environment),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chunkStore, err := database.NewChunkStore(ctx, cfg.Postgres, appLogger)
	if err != nil {
		appLogger.Fatal("failed to initialize chunk store", zap.Error(err))
	}
	defer chunkStore.Close()

	var resolutionCache *database.ResolutionCache
	if cfg.Redis.Enabled {
		resolutionCache, err = database.NewResolutionCache(cfg.Redis, appLogger)
		if err != nil {
			appLogger.Error("failed to initialize resolution cache, continuing without it", zap.Error(err))
			resolutionCache = nil
		} else {
			defer resolutionCache.Close()
			appLogger.Info("resolution cache initialized")
		}
	}

	var notebookGraph *database.NotebookGraph
	if cfg.Neo4j.Enabled {
		notebookGraph, err = database.NewNotebookGraph(cfg.Neo4j, appLogger)
		if err != nil {
			appLogger.Error("failed to initialize notebook graph, continuing without it", zap.Error(err))
			notebookGraph = nil
		} else {
			defer notebookGraph.Close(ctx)
			appLogger.Info("notebook graph initialized")
		}
	}

	transport, err := services.NewKafkaTransport(cfg.Kafka, appLogger)
	if err != nil {
		appLogger.Fatal("failed to initialize queue transport", zap.Error(err))
	}
	defer transport.Close()

	dispatcher := services.NewQueueDispatcher(transport, chunkStore, resolutionCache, notebookGraph, cfg.Queue, appLogger)
	if err := dispatcher.Start(ctx); err != nil {
		appLogger.Fatal("failed to start queue dispatcher", zap.Error(err))
	}
	appLogger.Info("queue dispatcher running",
		zap.String("topic", cfg.Queue.UploadEventsTopic), zap.String("group", cfg.Queue.ConsumerGroup))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("shutting down queue handler")
	cancel()
	time.Sleep(500 * time.Millisecond) // let in-flight handlers observe ctx cancellation
	appLogger.Info("queue handler exited")
}

func init() {
	os.Setenv("TZ", "UTC")
	fmt.Print(`
 ___                      _   _                 _ _
/ _ \ _   _  ___ _   _  ___| | | | __ _ _ __   __| | | ___ _ __
| | | | | | |/ _ \ | | |/ _ \ |_| |/ _' | '_ \ / _' | |/ _ \ '__|
| |_| | |_| |  __/ |_| |  __/  _  | (_| | | | | (_| | |  __/ |
\__\_\\__,_|\___|\__,_|\___|_| |_|\__,_|_| |_|\__,_|_|\___|_|
RAG Ingestion Core - upload event to durable task dispatcher
`)
}
