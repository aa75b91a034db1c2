package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ragcore/ingestion-core/internal/config"
	"github.com/ragcore/ingestion-core/internal/database"
	"github.com/ragcore/ingestion-core/internal/logger"
	"github.com/ragcore/ingestion-core/internal/metrics"
	"github.com/ragcore/ingestion-core/internal/models"
	pkgerrors "github.com/ragcore/ingestion-core/pkg/errors"
)

// MediaDispatcher is C8: it classifies an incoming object by MIME/extension,
// enforces the per-media-class resource limits, downloads the object,
// routes to the matching pipeline, and persists the resulting chunks in one
// logical write, advancing the document's stage/progress throughout.
// Grounded in the teacher's document-processing orchestration shape
// (internal/services/document.go), generalized from a single-format
// pipeline to the spec's four-way media split.
type MediaDispatcher struct {
	storage   *ObjectStoreClient
	chunks    *database.ChunkStore
	documents *DocumentExtractor
	images    *ImageDescriptor
	audio     *AudioPipeline
	video     *VideoPipeline
	cfg       config.ProcessorConfig
	metrics   *metrics.Metrics
	logger    *logger.Logger
}

// NewMediaDispatcher wires the four media pipelines behind a single entry
// point.
func NewMediaDispatcher(
	storage *ObjectStoreClient,
	chunks *database.ChunkStore,
	documents *DocumentExtractor,
	images *ImageDescriptor,
	audio *AudioPipeline,
	video *VideoPipeline,
	cfg config.ProcessorConfig,
	metricsInstance *metrics.Metrics,
	log *logger.Logger,
) *MediaDispatcher {
	return &MediaDispatcher{
		storage:   storage,
		chunks:    chunks,
		documents: documents,
		images:    images,
		audio:     audio,
		video:     video,
		cfg:       cfg,
		metrics:   metricsInstance,
		logger:    log.WithService("media_dispatcher"),
	}
}

// Dispatch runs the full pipeline for one task: classify, enforce limits,
// download, extract/describe/transcribe/segment, embed, persist, and mark
// the document completed or failed. The downloaded temp file is removed on
// every exit path, including a panic recovered at the top of this method.
func (m *MediaDispatcher) Dispatch(ctx context.Context, task models.ProcessTask, userID, filename string) (err error) {
	progress := NewProgressMapper()
	mediaClassLabel := "unknown"
	stageStart := time.Now()
	lastStage := ""
	counted := false

	markStage := func(stage string) {
		now := time.Now()
		if lastStage != "" {
			m.metrics.ObserveStageDuration(lastStage, mediaClassLabel, now.Sub(stageStart))
		}
		lastStage = stage
		stageStart = now
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("media dispatch panic: %v", r)
		}
		if lastStage != "" {
			m.metrics.ObserveStageDuration(lastStage, mediaClassLabel, time.Since(stageStart))
		}
		if err != nil {
			m.fail(ctx, task.DocumentID, err)
		}
		if counted {
			if err != nil {
				m.metrics.IncJobsCompleted(string(models.DocumentStateFailed))
			} else {
				m.metrics.IncJobsCompleted(string(models.DocumentStateCompleted))
			}
		}
	}()

	alreadyDone, err := m.alreadyCompleted(ctx, task.DocumentID)
	if err != nil {
		return err
	}
	if alreadyDone {
		m.logger.Info("skipping redelivered task for already-completed document",
			zap.String("document_id", task.DocumentID.String()))
		return nil
	}
	counted = true

	markStage(models.StageDownloading)
	if err := m.advance(ctx, task.DocumentID, models.StageDownloading, progress.Report(models.StageDownloading, 0, 0)); err != nil {
		return err
	}

	class := ClassifyMedia(task.MimeType, filename)
	if class == "" {
		return pkgerrors.ValidationWithDetails("unsupported media type",
			map[string]interface{}{"mime_type": task.MimeType, "filename": filename})
	}
	mediaClassLabel = string(class)
	if err := m.enforceSizeLimit(class, task.Size); err != nil {
		return err
	}

	path, err := m.storage.DownloadToTempFile(ctx, task.ObjectKey)
	if err != nil {
		return pkgerrors.StorageError("download failed", err)
	}
	defer m.storage.CleanupTempFile(path)

	markStage(models.StageClassifying)
	if err := m.advance(ctx, task.DocumentID, models.StageClassifying, progress.Report(models.StageClassifying, 0, 0)); err != nil {
		return err
	}

	chunks, err := m.runPipeline(ctx, class, task, userID, path, filename, progress)
	if err != nil {
		return err
	}

	markStage(models.StageGeneratingEmbeddings)
	if err := m.advance(ctx, task.DocumentID, models.StageGeneratingEmbeddings, progress.Report(models.StageGeneratingEmbeddings, 1, 1)); err != nil {
		return err
	}
	if err := m.chunks.InsertChunks(ctx, task.DocumentID, chunks); err != nil {
		return pkgerrors.StorageError("insert chunks failed", err)
	}
	m.recordChunksPersisted(chunks)

	markStage(models.StageStoring)
	if err := m.advance(ctx, task.DocumentID, models.StageStoring, progress.Report(models.StageStoring, 1, 1)); err != nil {
		return err
	}
	markStage(models.StageCompleted)
	return m.advance(ctx, task.DocumentID, models.StageCompleted, 100)
}

// recordChunksPersisted reports the chunks_persisted_total metric broken
// down by embedding type, matching the dual-embedding data model (spec §3).
func (m *MediaDispatcher) recordChunksPersisted(chunks []*models.Chunk) {
	counts := make(map[models.EmbeddingType]int)
	for _, c := range chunks {
		counts[c.EmbeddingType]++
	}
	for embeddingType, n := range counts {
		m.metrics.IncChunksPersisted(string(embeddingType), n)
	}
}

func (m *MediaDispatcher) runPipeline(ctx context.Context, class models.MediaClass, task models.ProcessTask, userID, path, filename string, progress *ProgressMapper) ([]*models.Chunk, error) {
	switch class {
	case models.MediaClassDocument:
		if err := m.advance(ctx, task.DocumentID, models.StageExtracting, progress.Report(models.StageExtracting, 0, 0)); err != nil {
			return nil, err
		}
		return m.documents.Extract(ctx, task.DocumentID, userID, path, task.MimeType, filename)

	case models.MediaClassImage:
		if err := m.advance(ctx, task.DocumentID, models.StageDescribingImage, progress.Report(models.StageDescribingImage, 0, 0)); err != nil {
			return nil, err
		}
		chunk, err := m.images.Describe(ctx, task.DocumentID, userID, path, filename)
		if err != nil {
			return nil, err
		}
		return []*models.Chunk{chunk}, nil

	case models.MediaClassAudio:
		durationSec, err := probeDuration(ctx, path)
		if err != nil {
			return nil, pkgerrors.ExtractionError(fmt.Sprintf("%s: duration probe failed", filename), err)
		}
		if err := validateAudioDuration(durationSec, float64(m.cfg.AudioMaxDurationSec)); err != nil {
			return nil, err
		}
		if err := m.advance(ctx, task.DocumentID, models.StageTranscribingAudio, progress.Report(models.StageTranscribingAudio, 0, 0)); err != nil {
			return nil, err
		}
		chunk, err := m.audio.Process(ctx, task.DocumentID, userID, path, filename)
		if err != nil {
			return nil, err
		}
		return []*models.Chunk{chunk}, nil

	case models.MediaClassVideo:
		if err := m.advance(ctx, task.DocumentID, models.StageSegmentingVideo, progress.Report(models.StageSegmentingVideo, 0, 0)); err != nil {
			return nil, err
		}
		return m.video.Process(ctx, task.DocumentID, userID, path, filename, progress)

	default:
		return nil, pkgerrors.Validation("unreachable media class", nil)
	}
}

// enforceSizeLimit checks the byte-size resource limits from spec §5 that
// are knowable before download (document and image; audio/video are
// duration-bounded instead and checked after a duration probe).
func (m *MediaDispatcher) enforceSizeLimit(class models.MediaClass, size int64) error {
	switch class {
	case models.MediaClassDocument:
		if m.cfg.DocMaxBytes > 0 && size > m.cfg.DocMaxBytes {
			return pkgerrors.ResourceLimitError(fmt.Sprintf("document size %d exceeds limit %d", size, m.cfg.DocMaxBytes))
		}
	case models.MediaClassImage:
		return validateImageSize(size, m.cfg.ImageMaxBytes)
	}
	return nil
}

// alreadyCompleted reports whether documentID is already in the completed
// state, the guard that makes redelivery of a completed document's task a
// no-op rather than an illegal-transition failure (spec §4.8, §8
// "Round-trip and idempotence").
func (m *MediaDispatcher) alreadyCompleted(ctx context.Context, documentID uuid.UUID) (bool, error) {
	doc, err := m.chunks.GetDocument(ctx, documentID)
	if err != nil {
		return false, pkgerrors.StorageError("load document for idempotency check failed", err)
	}
	return doc.State == models.DocumentStateCompleted, nil
}

// advance persists a stage/progress update for the document, promoting its
// state to completed once the stage reaches StageCompleted and to
// processing otherwise. A persistence failure here is itself returned so
// the caller's top-level error handling can still mark the document failed.
func (m *MediaDispatcher) advance(ctx context.Context, documentID uuid.UUID, stage string, pct int) error {
	state := models.DocumentStateProcessing
	if stage == models.StageCompleted {
		state = models.DocumentStateCompleted
	}
	if err := m.chunks.UpdateDocumentProgress(ctx, documentID, state, stage, pct, ""); err != nil {
		return pkgerrors.StorageError("update document progress failed", err)
	}
	return nil
}

// fail marks a document failed and records the triggering error, resetting
// progress to 0 per the monotonic progress model's one sanctioned
// regression (spec invariant 6). The logged retriable field records whether
// cause is the kind of failure a caller-side redelivery/resubmission could
// plausibly fix, so operators and alerting can tell persistent document
// failures apart from ones worth retrying without string-matching the
// message (spec §7).
func (m *MediaDispatcher) fail(ctx context.Context, documentID uuid.UUID, cause error) {
	m.logger.Error("document processing failed",
		zap.String("document_id", documentID.String()),
		zap.Bool("retriable", pkgerrors.IsRetriable(cause)),
		zap.Error(cause))
	if updateErr := m.chunks.UpdateDocumentProgress(ctx, documentID, models.DocumentStateFailed, models.StageFailed, 0, cause.Error()); updateErr != nil {
		m.logger.Error("failed to record document failure", zap.Error(updateErr), zap.Error(cause))
	}
}

// ClassifyMedia routes an object to a media class by MIME type first, file
// extension second, matching the precedence the document extractor uses for
// its own narrower format classification (spec §4.3).
func ClassifyMedia(mimeType, filename string) models.MediaClass {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return models.MediaClassImage
	case strings.HasPrefix(mimeType, "audio/"):
		return models.MediaClassAudio
	case strings.HasPrefix(mimeType, "video/"):
		return models.MediaClassVideo
	case strings.Contains(mimeType, "pdf"),
		strings.Contains(mimeType, "wordprocessingml"),
		strings.Contains(mimeType, "msword"),
		strings.Contains(mimeType, "html"),
		strings.Contains(mimeType, "text/plain"):
		return models.MediaClassDocument
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return models.MediaClassImage
	case ".mp3", ".wav", ".m4a", ".flac", ".ogg":
		return models.MediaClassAudio
	case ".mp4", ".mov", ".avi", ".mkv", ".webm":
		return models.MediaClassVideo
	case ".pdf", ".docx", ".doc", ".html", ".htm", ".txt", ".md":
		return models.MediaClassDocument
	}
	return ""
}
