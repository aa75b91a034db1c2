package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ragcore/ingestion-core/internal/database"
	"github.com/ragcore/ingestion-core/internal/logger"
	"github.com/ragcore/ingestion-core/internal/metrics"
	"github.com/ragcore/ingestion-core/internal/middleware"
	"github.com/ragcore/ingestion-core/internal/services"
)

// ProcessorServer wires the C9 processor HTTP surface: POST /process-task
// and GET /health, behind the same global middleware stack the teacher uses
// for its API server (request ID, recovery, metrics).
type ProcessorServer struct {
	Router  *gin.Engine
	handler *ProcessorHandler
	metrics *metrics.Metrics
}

// NewProcessorServer builds the gin engine and registers routes.
func NewProcessorServer(
	dispatcher *services.MediaDispatcher,
	chunks *database.ChunkStore,
	ai *services.AIServiceClient,
	maxConcurrentJobs int,
	jobDeadline time.Duration,
	metricsInstance *metrics.Metrics,
	log *logger.Logger,
) *ProcessorServer {
	handler := NewProcessorHandler(dispatcher, chunks, ai, maxConcurrentJobs, jobDeadline, metricsInstance, log)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(metrics.GinMiddleware(metricsInstance))

	router.POST("/process-task", handler.ProcessTask)
	router.GET("/health", handler.Health)
	router.GET("/metrics", gin.WrapH(metricsInstance.Handler()))

	return &ProcessorServer{Router: router, handler: handler, metrics: metricsInstance}
}
