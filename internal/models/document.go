package models

import (
	"time"

	"github.com/google/uuid"
)

// DocumentState is the monotonic processing state of a Document.
// Transitions advance along pending -> processing -> (completed|failed); the
// one way back is failed -> processing, when a failed document is retried.
type DocumentState string

const (
	DocumentStatePending    DocumentState = "pending"
	DocumentStateProcessing DocumentState = "processing"
	DocumentStateCompleted  DocumentState = "completed"
	DocumentStateFailed     DocumentState = "failed"
)

// stateRank gives the monotonic ordering used to reject backward transitions.
// completed and failed are both terminal and are not ranked against each
// other; CanTransitionTo enforces that distinction explicitly.
var stateRank = map[DocumentState]int{
	DocumentStatePending:    0,
	DocumentStateProcessing: 1,
	DocumentStateCompleted:  2,
	DocumentStateFailed:     2,
}

// Well-known stage labels used by the progress mapper. Video/document
// pipelines also emit "processing_chunk_{i}_of_{n}"-shaped stages which
// the progress mapper interpolates within the enclosing band.
const (
	StagePending              = "pending"
	StageDownloading          = "downloading"
	StageClassifying          = "classifying"
	StageExtracting           = "extracting"
	StageTranscribingAudio    = "transcribing_audio"
	StageTranscribingVideo    = "transcribing_video"
	StageDescribingImage      = "describing_image"
	StageSegmentingVideo      = "segmenting_video"
	StageGeneratingEmbeddings = "generating_embeddings"
	StageStoring              = "storing"
	StageCompleted            = "completed"
	StageFailed               = "failed"
)

// Document represents a user-uploaded file tracked by the processing core.
// It is created at upload-completion time by the external upload path and
// mutated only by the processor thereafter; the core never deletes it.
type Document struct {
	ID        uuid.UUID     `json:"id"`
	UserID    string        `json:"user_id"`
	Filename  string        `json:"filename"`
	ObjectKey string        `json:"object_key"`
	MimeType  string        `json:"mime_type"`
	Size      int64         `json:"size"`
	State     DocumentState `json:"state"`
	Stage     string        `json:"stage"`
	Progress  int           `json:"progress"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// CanTransitionTo reports whether moving from d.State to next is a legal
// transition per spec invariant 6: states only advance, except that a
// failed document may be retried back into processing (the queue's own
// retry policy, not a backward regression of a single attempt) and a
// completed document accepts only a same-state no-op so a redelivered task
// never regresses it.
func (d *Document) CanTransitionTo(next DocumentState) bool {
	if d.State == next {
		return true
	}
	if d.State == DocumentStateCompleted {
		return false
	}
	if d.State == DocumentStateFailed {
		return next == DocumentStateProcessing
	}
	return stateRank[next] >= stateRank[d.State]
}

// IsTerminal reports whether the document has reached completed or failed.
func (d *Document) IsTerminal() bool {
	return d.State == DocumentStateCompleted || d.State == DocumentStateFailed
}

// MediaClass is the coarse classification a document's object is routed on.
type MediaClass string

const (
	MediaClassDocument MediaClass = "document"
	MediaClassImage    MediaClass = "image"
	MediaClassAudio    MediaClass = "audio"
	MediaClassVideo    MediaClass = "video"
)

// ProcessTask is the envelope the queue dispatcher (C10) enqueues and the
// processor (C9) accepts at POST /process-task.
type ProcessTask struct {
	DocumentID uuid.UUID `json:"document_id" binding:"required"`
	ObjectKey  string    `json:"object_key" binding:"required"`
	MimeType   string    `json:"mime_type" binding:"required"`
	Size       int64     `json:"size" binding:"required"`
	Attempt    int       `json:"attempt"`
}

// ProcessingJob is the ephemeral, in-memory record of one active task.
// It exists only for the lifetime of a single processor invocation and is
// never persisted; the Document row is the durable source of truth.
type ProcessingJob struct {
	DocumentID uuid.UUID
	ObjectKey  string
	MediaClass MediaClass
	Stage      string
	Progress   int
	StartedAt  time.Time
}

// NewDocument creates a pending Document for an upload-completed object.
func NewDocument(userID, filename, objectKey, mimeType string, size int64) *Document {
	now := time.Now()
	return &Document{
		ID:        uuid.New(),
		UserID:    userID,
		Filename:  filename,
		ObjectKey: objectKey,
		MimeType:  mimeType,
		Size:      size,
		State:     DocumentStatePending,
		Stage:     StagePending,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
