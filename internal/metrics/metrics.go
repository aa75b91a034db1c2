package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ragcore/ingestion-core/internal/logger"
)

// Metrics contains the Prometheus metrics emitted by the processor. The
// queue handler does not create a Metrics instance.
type Metrics struct {
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	jobsInFlight    prometheus.Gauge
	jobsAccepted    prometheus.Counter
	jobsRejectedBusy prometheus.Counter
	jobsCompleted   *prometheus.CounterVec
	jobStageDuration *prometheus.HistogramVec

	dbQueriesTotal  *prometheus.CounterVec
	dbQueryDuration *prometheus.HistogramVec

	aiCallsTotal   *prometheus.CounterVec
	aiCallDuration *prometheus.HistogramVec

	chunksPersisted *prometheus.CounterVec

	logger *logger.Logger
}

// NewMetrics creates a new metrics instance with all Prometheus metrics.
func NewMetrics(log *logger.Logger) *Metrics {
	m := &Metrics{
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests"},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration"},
			[]string{"method", "path"},
		),
		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "http_requests_in_flight", Help: "In-flight HTTP requests"},
		),
		jobsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "processing_jobs_in_flight", Help: "Currently running ProcessingJobs"},
		),
		jobsAccepted: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "processing_jobs_accepted_total", Help: "Tasks accepted for processing"},
		),
		jobsRejectedBusy: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "processing_jobs_rejected_busy_total", Help: "Tasks rejected due to concurrency cap"},
		),
		jobsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "processing_jobs_completed_total", Help: "Jobs finished by terminal state"},
			[]string{"state"},
		),
		jobStageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "processing_stage_duration_seconds", Help: "Per-stage duration within a job"},
			[]string{"stage", "media_class"},
		),
		dbQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "db_queries_total", Help: "Total database queries"},
			[]string{"operation", "status"},
		),
		dbQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "db_query_duration_seconds", Help: "Database query duration"},
			[]string{"operation"},
		),
		aiCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "ai_service_calls_total", Help: "Calls to the managed AI service"},
			[]string{"kind", "status"},
		),
		aiCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "ai_service_call_duration_seconds", Help: "AI service call duration"},
			[]string{"kind"},
		),
		chunksPersisted: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "chunks_persisted_total", Help: "Chunk rows written"},
			[]string{"embedding_type"},
		),
		logger: log.WithService("metrics"),
	}

	prometheus.MustRegister(
		m.httpRequestsTotal, m.httpRequestDuration, m.httpRequestsInFlight,
		m.jobsInFlight, m.jobsAccepted, m.jobsRejectedBusy, m.jobsCompleted, m.jobStageDuration,
		m.dbQueriesTotal, m.dbQueryDuration,
		m.aiCallsTotal, m.aiCallDuration,
		m.chunksPersisted,
	)

	return m
}

// Handler returns the Prometheus scrape endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

func (m *Metrics) IncHTTPRequestsInFlight() { m.httpRequestsInFlight.Inc() }
func (m *Metrics) DecHTTPRequestsInFlight() { m.httpRequestsInFlight.Dec() }

func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (m *Metrics) SetJobsInFlight(n int)  { m.jobsInFlight.Set(float64(n)) }
func (m *Metrics) IncJobsAccepted()       { m.jobsAccepted.Inc() }
func (m *Metrics) IncJobsRejectedBusy()   { m.jobsRejectedBusy.Inc() }
func (m *Metrics) IncJobsCompleted(state string) {
	m.jobsCompleted.WithLabelValues(state).Inc()
}
func (m *Metrics) ObserveStageDuration(stage, mediaClass string, d time.Duration) {
	m.jobStageDuration.WithLabelValues(stage, mediaClass).Observe(d.Seconds())
}

func (m *Metrics) ObserveDBQuery(operation string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.dbQueriesTotal.WithLabelValues(operation, status).Inc()
	m.dbQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *Metrics) ObserveAICall(kind string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.aiCallsTotal.WithLabelValues(kind, status).Inc()
	m.aiCallDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func (m *Metrics) IncChunksPersisted(embeddingType string, n int) {
	m.chunksPersisted.WithLabelValues(embeddingType).Add(float64(n))
}

// GinMiddleware records HTTP metrics for every request.
func GinMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.IncHTTPRequestsInFlight()
		c.Next()
		m.DecHTTPRequestsInFlight()
		m.ObserveHTTPRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}
