package services

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/google/uuid"

	"github.com/ragcore/ingestion-core/internal/config"
	"github.com/ragcore/ingestion-core/internal/logger"
	"github.com/ragcore/ingestion-core/internal/models"
	pkgerrors "github.com/ragcore/ingestion-core/pkg/errors"
)

// ImageDescriptor is the C6 image descriptor: a single multimodal AI call
// produces a dense natural-language description of an image, which is then
// embedded two ways so the image is retrievable by either a text-like query
// against its description or a genuinely multimodal query against the image
// itself (spec §4.5). Grounded in ai_client.go's DescribeMedia/EmbedText/
// EmbedMultimodal surface, introduced this module alongside C3.
type ImageDescriptor struct {
	ai     *AIServiceClient
	logger *logger.Logger
}

// NewImageDescriptor builds an ImageDescriptor.
func NewImageDescriptor(_ config.ProcessorConfig, ai *AIServiceClient, log *logger.Logger) *ImageDescriptor {
	return &ImageDescriptor{
		ai:     ai,
		logger: log.WithService("image_descriptor"),
	}
}

// Describe produces the single chunk for an image object. On a DescribeMedia
// failure, a structured fallback placeholder is used for the description
// text instead of failing the job (spec §4.5): the placeholder, which names
// the file and the error, becomes the chunk content, and ImageChunkMetadata
// records the failure by setting description_model to "unavailable".
func (d *ImageDescriptor) Describe(ctx context.Context, documentID uuid.UUID, userID, path, filename string) (*models.Chunk, error) {
	width, height, format := probeImage(path, filename)

	description, descErr := d.ai.DescribeMedia(ctx, path)
	descriptionFailed := false
	if descErr != nil {
		d.logger.Warn("image description failed, using placeholder",
			zap.String("file", filename), zap.Error(descErr))
		description = fmt.Sprintf("[description unavailable for %s: %s]", filename, descErr.Error())
		descriptionFailed = true
	}

	textEmbedding, err := d.ai.EmbedText(ctx, description)
	if err != nil {
		return nil, err
	}

	multimodalEmbedding, err := d.ai.EmbedMultimodal(ctx, path, description)
	if err != nil {
		return nil, err
	}

	meta := models.ImageChunkMetadata{
		SourceFilename:   filename,
		Width:            width,
		Height:           height,
		Format:           format,
		DescriptionModel: descriptionModelLabel(descriptionFailed),
	}
	if descriptionFailed {
		meta.DescriptionModel = "unavailable"
	}

	chunk, err := models.NewChunk(documentID, userID, description, 0, models.EmbeddingTypeMultimodal, meta)
	if err != nil {
		return nil, fmt.Errorf("build image chunk: %w", err)
	}
	chunk.TextEmbedding = textEmbedding
	chunk.MultimodalEmbedding = multimodalEmbedding
	return chunk, nil
}

func descriptionModelLabel(failed bool) string {
	if failed {
		return "unavailable"
	}
	return "managed-vision"
}

// probeImage decodes just the image header for width/height, and derives
// format from the file extension. A decode failure is non-fatal: width and
// height are simply left at 0, since they're descriptive metadata, not a
// correctness requirement (unlike the embedding dimensions).
func probeImage(path, filename string) (width, height int, format string) {
	format = strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")

	f, err := os.Open(path)
	if err != nil {
		return 0, 0, format
	}
	defer f.Close()

	cfg, decodedFormat, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, format
	}
	if decodedFormat != "" {
		format = decodedFormat
	}
	return cfg.Width, cfg.Height, format
}

// validateImageSize is invoked by the media dispatcher (C8) before Describe
// to enforce the image resource limit (spec §5); kept here since it's a
// property of the same media class this file owns.
func validateImageSize(size, maxBytes int64) error {
	if maxBytes > 0 && size > maxBytes {
		return pkgerrors.ResourceLimitError(fmt.Sprintf("image size %d exceeds limit %d", size, maxBytes))
	}
	return nil
}
