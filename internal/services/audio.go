package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ragcore/ingestion-core/internal/config"
	"github.com/ragcore/ingestion-core/internal/logger"
	"github.com/ragcore/ingestion-core/internal/models"
	pkgerrors "github.com/ragcore/ingestion-core/pkg/errors"
)

// AudioPipeline produces the single chunk for an audio clip (spec §4.6): a
// transcript via the Gemini-family transcription client, embedded as text.
// Unlike the image descriptor, a transcription failure here is already
// absorbed by AIServiceClient.Transcribe itself (HasAudio=false, placeholder
// text), so this pipeline only needs to embed whatever text comes back.
type AudioPipeline struct {
	ai     *AIServiceClient
	logger *logger.Logger
}

// NewAudioPipeline builds an AudioPipeline.
func NewAudioPipeline(_ config.ProcessorConfig, ai *AIServiceClient, log *logger.Logger) *AudioPipeline {
	return &AudioPipeline{
		ai:     ai,
		logger: log.WithService("audio_pipeline"),
	}
}

// Process transcribes the clip at path and returns its single text chunk.
func (p *AudioPipeline) Process(ctx context.Context, documentID uuid.UUID, userID, path, filename string) (*models.Chunk, error) {
	transcript, err := p.ai.Transcribe(ctx, path)
	if err != nil {
		return nil, err
	}

	embedding, err := p.ai.EmbedText(ctx, transcript.Text)
	if err != nil {
		return nil, err
	}

	meta := models.AudioChunkMetadata{
		SourceFilename: filename,
		Transcript: models.TranscriptMetadata{
			Language:   transcript.Language,
			Confidence: transcript.Confidence,
			Model:      transcript.Model,
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
			HasAudio:   transcript.HasAudio,
		},
	}

	chunk, err := models.NewChunk(documentID, userID, transcript.Text, 0, models.EmbeddingTypeText, meta)
	if err != nil {
		return nil, fmt.Errorf("build audio chunk: %w", err)
	}
	chunk.TextEmbedding = embedding
	return chunk, nil
}

// validateAudioDuration is invoked by the media dispatcher (C8) before
// Process to enforce the audio duration resource limit (spec §5).
func validateAudioDuration(durationSec, maxSec float64) error {
	if maxSec > 0 && durationSec > maxSec {
		return pkgerrors.ResourceLimitError(fmt.Sprintf("audio duration %.1fs exceeds limit %.1fs", durationSec, maxSec))
	}
	return nil
}
