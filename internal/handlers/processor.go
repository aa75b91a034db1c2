package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ragcore/ingestion-core/internal/database"
	"github.com/ragcore/ingestion-core/internal/logger"
	"github.com/ragcore/ingestion-core/internal/metrics"
	"github.com/ragcore/ingestion-core/internal/models"
	"github.com/ragcore/ingestion-core/internal/services"
	"github.com/ragcore/ingestion-core/pkg/errors"
)

// ProcessorHandler is C9, the processor HTTP service: it accepts process
// tasks behind a per-process concurrency cap, runs the media dispatcher
// (C8) as a background job with a per-job deadline, and reports health.
// Grounded in the teacher's internal/handlers/job.go (async task intake
// shape) and internal/handlers/health.go (the services map response shape).
type ProcessorHandler struct {
	dispatcher  *services.MediaDispatcher
	chunks      *database.ChunkStore
	ai          *services.AIServiceClient
	jobSlots    chan struct{}
	jobDeadline time.Duration
	metrics     *metrics.Metrics
	logger      *logger.Logger
}

// NewProcessorHandler builds a ProcessorHandler with a concurrency cap of
// maxConcurrentJobs and a per-job deadline.
func NewProcessorHandler(
	dispatcher *services.MediaDispatcher,
	chunks *database.ChunkStore,
	ai *services.AIServiceClient,
	maxConcurrentJobs int,
	jobDeadline time.Duration,
	metricsInstance *metrics.Metrics,
	log *logger.Logger,
) *ProcessorHandler {
	if maxConcurrentJobs < 1 {
		maxConcurrentJobs = 1
	}
	return &ProcessorHandler{
		dispatcher:  dispatcher,
		chunks:      chunks,
		ai:          ai,
		jobSlots:    make(chan struct{}, maxConcurrentJobs),
		jobDeadline: jobDeadline,
		metrics:     metricsInstance,
		logger:      log.WithService("processor_handler"),
	}
}

// processTaskRequest is an alias of models.ProcessTask: the binding tags on
// that one type serve the HTTP boundary, and the same type is the queue
// envelope.
type processTaskRequest = models.ProcessTask

// ProcessTask handles POST /process-task. A well-formed task is accepted
// (200 with status "accepted", async dispatch) unless the process is already at its concurrency
// cap (429 busy); a malformed body is rejected (400).
func (h *ProcessorHandler) ProcessTask(c *gin.Context) {
	var task processTaskRequest
	if err := c.ShouldBindJSON(&task); err != nil {
		c.JSON(http.StatusBadRequest, errors.Validation("invalid process task payload", err))
		return
	}

	doc, err := h.chunks.GetDocument(c.Request.Context(), task.DocumentID)
	if err != nil {
		c.JSON(http.StatusNotFound, errors.NotFound("document not found for task"))
		return
	}

	select {
	case h.jobSlots <- struct{}{}:
	default:
		h.metrics.IncJobsRejectedBusy()
		c.JSON(http.StatusTooManyRequests, gin.H{"status": "busy"})
		return
	}
	h.metrics.IncJobsAccepted()
	h.metrics.SetJobsInFlight(len(h.jobSlots))

	go h.runJob(task, doc)

	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

// runJob executes the dispatcher under a bounded deadline and releases the
// concurrency slot on every exit path.
func (h *ProcessorHandler) runJob(task models.ProcessTask, doc *models.Document) {
	defer func() {
		<-h.jobSlots
		h.metrics.SetJobsInFlight(len(h.jobSlots))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), h.jobDeadline)
	defer cancel()

	if err := h.dispatcher.Dispatch(ctx, task, doc.UserID, doc.Filename); err != nil {
		h.logger.Error("job failed",
			zap.String("document_id", task.DocumentID.String()), zap.Error(err))
	}
}

// HealthResponse is the GET /health contract (spec §6).
type HealthResponse struct {
	Status   string                   `json:"status"`
	Services map[string]ServiceHealth `json:"services"`
}

// ServiceHealth reports one dependency's reachability.
type ServiceHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Health handles GET /health, checking the AI text/multimodal embedding
// path, the transcription path (all backed by the same managed AI service),
// and the chunk store.
func (h *ProcessorHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{Status: "healthy", Services: make(map[string]ServiceHealth)}

	aiHealth := checkService(func() error { return h.ai.HealthCheck(ctx) })
	response.Services["ai_text"] = aiHealth
	response.Services["ai_multimodal"] = aiHealth
	response.Services["transcription"] = aiHealth
	if aiHealth.Status != "healthy" {
		response.Status = "degraded"
	}

	storeHealth := checkService(func() error { return h.chunks.HealthCheck(ctx) })
	response.Services["chunk_store"] = storeHealth
	if storeHealth.Status != "healthy" {
		response.Status = "degraded"
	}

	status := http.StatusOK
	if response.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, response)
}

func checkService(check func() error) ServiceHealth {
	if err := check(); err != nil {
		return ServiceHealth{Status: "unhealthy", Error: err.Error()}
	}
	return ServiceHealth{Status: "healthy"}
}
