package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/ragcore/ingestion-core/internal/config"
	"github.com/ragcore/ingestion-core/internal/database"
	"github.com/ragcore/ingestion-core/internal/logger"
	"github.com/ragcore/ingestion-core/internal/models"
	pkgerrors "github.com/ragcore/ingestion-core/pkg/errors"
)

// ObjectFinalizedEvent is the inbound event shape from the object store's
// upload-completion notification (spec §6).
type ObjectFinalizedEvent struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
	Generation  string `json:"generation"`
	EventID     string `json:"eventId"`
}

// documentResolver is the subset of ChunkStore the dispatcher depends on;
// narrowed so dispatcher tests can supply a fake without a live database.
type documentResolver interface {
	FindDocumentByObjectKey(ctx context.Context, objectKey string) (*models.Document, error)
}

// QueueDispatcher is the C10 event-to-queue dispatcher: it receives
// object-finalized events, resolves them to a document row, and enqueues
// exactly one durable ProcessTask per object. It is intentionally thin —
// translate event to task and return — so it never blocks the event
// source's short delivery timeout on the processor's multi-minute work.
type QueueDispatcher struct {
	transport *KafkaTransport
	documents documentResolver
	cache     *database.ResolutionCache
	graph     *database.NotebookGraph
	cfg       config.QueueConfig
	logger    *logger.Logger
}

// NewQueueDispatcher creates a new queue dispatcher. cache and graph may be
// nil: cache absence falls through to the document store on every
// resolution, and graph absence simply skips the best-effort notebook-graph
// side record.
func NewQueueDispatcher(transport *KafkaTransport, documents documentResolver, cache *database.ResolutionCache, graph *database.NotebookGraph, cfg config.QueueConfig, log *logger.Logger) *QueueDispatcher {
	return &QueueDispatcher{
		transport: transport,
		documents: documents,
		cache:     cache,
		graph:     graph,
		cfg:       cfg,
		logger:    log.WithService("queue_dispatcher"),
	}
}

// Start subscribes to the upload-events topic and begins dispatching.
func (d *QueueDispatcher) Start(ctx context.Context) error {
	return d.transport.Subscribe(ctx, d.cfg.UploadEventsTopic, d.cfg.ConsumerGroup, d.handleObjectFinalized)
}

// handleObjectFinalized implements the C10 contract: resolve the document,
// enqueue a task. Returning nil acknowledges the event (no redelivery);
// returning an error leaves it for the queue to redeliver. Whether a
// resolution failure returns an error at all is decided by
// pkgerrors.IsRetriable(err) (spec §7): a non-retriable failure is logged
// and acknowledged rather than redelivered forever, since redelivery cannot
// change its outcome.
func (d *QueueDispatcher) handleObjectFinalized(ctx context.Context, _ string, value []byte) error {
	var event ObjectFinalizedEvent
	if err := json.Unmarshal(value, &event); err != nil {
		d.logger.Warn("discarding malformed object-finalized event", zap.Error(err))
		return nil // parse failures are non-retriable
	}

	if event.Bucket != "" && d.cfg.UploadBucket != "" && event.Bucket != d.cfg.UploadBucket {
		d.logger.Debug("ignoring event for unrelated bucket",
			zap.String("bucket", event.Bucket), zap.String("expected_bucket", d.cfg.UploadBucket))
		return nil
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, time.Duration(d.cfg.DispatchDeadlineSec)*time.Second)
	defer cancel()

	doc, err := d.resolveDocument(dispatchCtx, event.Name)
	if err != nil {
		if !pkgerrors.IsRetriable(err) {
			d.logger.Error("document resolution failed with a non-retriable error, dropping event",
				zap.String("object_key", event.Name), zap.Error(err))
			return nil
		}
		d.logger.Error("document resolution failed persistently, requesting redelivery",
			zap.String("object_key", event.Name), zap.Error(err))
		return err
	}
	if doc == nil {
		d.logger.Warn("no document row found for finalized object after bounded retries, dropping event",
			zap.String("object_key", event.Name), zap.String("event_id", event.EventID))
		return nil
	}

	task := models.ProcessTask{
		DocumentID: doc.ID,
		ObjectKey:  doc.ObjectKey,
		MimeType:   coalesce(event.ContentType, doc.MimeType),
		Size:       event.Size,
		Attempt:    1,
	}

	if err := d.transport.Publish(dispatchCtx, d.cfg.ProcessTasksTopic, doc.ID.String(), task); err != nil {
		return pkgerrors.StorageError(fmt.Sprintf("enqueue process task for document %s", doc.ID), err)
	}

	if d.cache != nil {
		d.cache.PutDocumentID(dispatchCtx, event.Name, doc.ID.String())
	}

	if d.graph != nil {
		if err := d.graph.RecordDispatch(dispatchCtx, doc.ID, doc.ObjectKey, time.Now().UTC()); err != nil {
			d.logger.Warn("notebook graph dispatch record failed, continuing", zap.Error(err))
		}
	}

	d.logger.Info("dispatched process task",
		zap.String("document_id", doc.ID.String()), zap.String("object_key", event.Name))
	return nil
}

// resolveDocument locates the document row for objectKey, retrying with
// exponential backoff up to ResolveMaxAttempts when the row is not yet
// visible (the upload-completion write may still be racing this event).
// A nil, nil return means "gave up, event should be dropped"; a non-nil
// error means a persistent database failure that warrants redelivery.
func (d *QueueDispatcher) resolveDocument(ctx context.Context, objectKey string) (*models.Document, error) {
	if d.cache != nil {
		if id := d.cache.GetDocumentID(ctx, objectKey); id != "" {
			if doc, err := d.documents.FindDocumentByObjectKey(ctx, objectKey); err == nil && doc != nil {
				return doc, nil
			}
		}
	}

	maxAttempts := d.cfg.ResolveMaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	baseDelay := time.Duration(d.cfg.ResolveBaseDelayMs) * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		doc, err := d.documents.FindDocumentByObjectKey(ctx, objectKey)
		if err != nil {
			lastErr = err
		} else if doc != nil {
			return doc, nil
		}

		if attempt == maxAttempts-1 {
			break
		}
		delay := baseDelay * time.Duration(math.Pow(2, float64(attempt)))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, nil
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
