package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ragcore/ingestion-core/internal/models"
)

func TestClassifyMediaByMimePrefix(t *testing.T) {
	assert.Equal(t, models.MediaClassImage, ClassifyMedia("image/png", "whatever.bin"))
	assert.Equal(t, models.MediaClassAudio, ClassifyMedia("audio/mpeg", "whatever.bin"))
	assert.Equal(t, models.MediaClassVideo, ClassifyMedia("video/mp4", "whatever.bin"))
}

func TestClassifyMediaByMimeContains(t *testing.T) {
	assert.Equal(t, models.MediaClassDocument, ClassifyMedia("application/pdf", "report.pdf"))
	assert.Equal(t, models.MediaClassDocument,
		ClassifyMedia("application/vnd.openxmlformats-officedocument.wordprocessingml.document", "report.docx"))
	assert.Equal(t, models.MediaClassDocument, ClassifyMedia("application/msword", "legacy.doc"))
	assert.Equal(t, models.MediaClassDocument, ClassifyMedia("text/html; charset=utf-8", "page.html"))
	assert.Equal(t, models.MediaClassDocument, ClassifyMedia("text/plain", "notes.txt"))
}

func TestClassifyMediaFallsBackToExtensionWhenMimeUnknown(t *testing.T) {
	assert.Equal(t, models.MediaClassImage, ClassifyMedia("application/octet-stream", "photo.jpg"))
	assert.Equal(t, models.MediaClassAudio, ClassifyMedia("application/octet-stream", "track.flac"))
	assert.Equal(t, models.MediaClassVideo, ClassifyMedia("application/octet-stream", "clip.mkv"))
	assert.Equal(t, models.MediaClassDocument, ClassifyMedia("application/octet-stream", "readme.md"))
}

func TestClassifyMediaMimePrefixTakesPrecedenceOverExtension(t *testing.T) {
	// A .txt extension with an image mime type should classify as image: mime wins.
	assert.Equal(t, models.MediaClassImage, ClassifyMedia("image/png", "export.txt"))
}

func TestClassifyMediaUnrecognizedReturnsEmpty(t *testing.T) {
	assert.Equal(t, models.MediaClass(""), ClassifyMedia("application/octet-stream", "archive.zip"))
}
