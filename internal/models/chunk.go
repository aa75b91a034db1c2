package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Embedding dimensions are fixed by the AI service contract; any mismatch
// between a produced vector and these constants is a hard error (spec
// invariant 2).
const (
	TextEmbeddingDim       = 768
	MultimodalEmbeddingDim = 1408
)

// EmbeddingType records which vector column(s) are semantically primary
// for a chunk. A chunk may still carry both vectors (video chunks always
// do) but exactly one of text/multimodal is the declared type.
type EmbeddingType string

const (
	EmbeddingTypeText       EmbeddingType = "text"
	EmbeddingTypeMultimodal EmbeddingType = "multimodal"
)

// DocumentChunkMetadata describes a chunk produced by the document extractor (C5).
type DocumentChunkMetadata struct {
	SourceFilename string `json:"source_filename"`
	ChunkIndex     int    `json:"chunk_index"`
	TotalChunks    int    `json:"total_chunks"`
	CharStart      int    `json:"char_start"`
	CharEnd        int    `json:"char_end"`
	StructureHint  string `json:"structure_hint,omitempty"`
}

// ImageChunkMetadata describes the single chunk produced by the image descriptor (C6).
type ImageChunkMetadata struct {
	SourceFilename  string `json:"source_filename"`
	Width           int    `json:"width,omitempty"`
	Height          int    `json:"height,omitempty"`
	Format          string `json:"format"`
	DescriptionModel string `json:"description_model"`
}

// TranscriptMetadata is embedded in audio and video chunk metadata.
type TranscriptMetadata struct {
	Language   string `json:"language"`
	Confidence float64 `json:"confidence"`
	Model      string `json:"model"`
	Timestamp  string `json:"timestamp"`
	HasAudio   bool   `json:"has_audio"`
	Error      string `json:"error,omitempty"`
}

// AudioChunkMetadata describes the chunk(s) produced by the audio pipeline.
type AudioChunkMetadata struct {
	SourceFilename string              `json:"source_filename"`
	Transcript     TranscriptMetadata `json:"transcript"`
}

// VideoChunkMetadata describes one segment-chunk produced by the video pipeline (C7).
type VideoChunkMetadata struct {
	SourceFilename string              `json:"source_filename"`
	SegmentIndex   int                 `json:"segment_index"`
	TotalSegments  int                 `json:"total_segments"`
	StartOffsetSec float64             `json:"start_offset_sec"`
	EndOffsetSec   float64             `json:"end_offset_sec"`
	DurationSec    float64             `json:"duration_sec"`
	Transcript     TranscriptMetadata `json:"transcript"`
}

// Chunk is the smallest persisted unit of retrievable content.
type Chunk struct {
	ID                   uuid.UUID       `json:"id"`
	DocumentID           uuid.UUID       `json:"document_id"`
	UserID               string          `json:"user_id"`
	Content              string          `json:"content"`
	Context              *string         `json:"context,omitempty"`
	ChunkIndex           int             `json:"chunk_index"`
	Metadata             json.RawMessage `json:"metadata"`
	EmbeddingType        EmbeddingType   `json:"embedding_type"`
	TextEmbedding        []float32       `json:"text_embedding,omitempty"`
	MultimodalEmbedding  []float32       `json:"multimodal_embedding,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
}

// Validate enforces the chunk invariants from spec §3 before the chunk is
// handed to the chunk store gateway. It is intentionally strict: a chunk
// that fails validation must never reach persistence.
func (c *Chunk) Validate() error {
	if c.Content == "" {
		return fmt.Errorf("chunk %d: content must not be empty", c.ChunkIndex)
	}
	if c.EmbeddingType != EmbeddingTypeText && c.EmbeddingType != EmbeddingTypeMultimodal {
		return fmt.Errorf("chunk %d: embedding_type must be text or multimodal, got %q", c.ChunkIndex, c.EmbeddingType)
	}
	if c.EmbeddingType == EmbeddingTypeText && c.TextEmbedding == nil {
		return fmt.Errorf("chunk %d: embedding_type=text requires text_embedding", c.ChunkIndex)
	}
	if c.TextEmbedding != nil && len(c.TextEmbedding) != TextEmbeddingDim {
		return fmt.Errorf("chunk %d: text_embedding has dimension %d, want %d", c.ChunkIndex, len(c.TextEmbedding), TextEmbeddingDim)
	}
	if c.MultimodalEmbedding != nil && len(c.MultimodalEmbedding) != MultimodalEmbeddingDim {
		return fmt.Errorf("chunk %d: multimodal_embedding has dimension %d, want %d", c.ChunkIndex, len(c.MultimodalEmbedding), MultimodalEmbeddingDim)
	}
	return nil
}

// NewChunk builds a Chunk with a fresh id and the current timestamp. The
// caller is responsible for populating embeddings and metadata before
// handing it to the chunk store.
func NewChunk(documentID uuid.UUID, userID, content string, chunkIndex int, embeddingType EmbeddingType, metadata interface{}) (*Chunk, error) {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal chunk metadata: %w", err)
	}
	return &Chunk{
		ID:            uuid.New(),
		DocumentID:    documentID,
		UserID:        userID,
		Content:       content,
		ChunkIndex:    chunkIndex,
		Metadata:      raw,
		EmbeddingType: embeddingType,
		CreatedAt:     time.Now(),
	}, nil
}
