package services

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// onePixelPNG is a minimal valid 1x1 PNG, used to exercise probeImage's
// real decode path without depending on test fixtures outside the repo.
const onePixelPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAAC0lEQVR42mNk+A8AAQUBAScY42YAAAAASUVORK5CYII="

func writeTestImage(t *testing.T, name string) string {
	t.Helper()
	data, err := base64.StdEncoding.DecodeString(onePixelPNG)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestProbeImageDecodesDimensionsAndFormat(t *testing.T) {
	path := writeTestImage(t, "pixel.png")
	width, height, format := probeImage(path, "pixel.png")

	assert.Equal(t, 1, width)
	assert.Equal(t, 1, height)
	assert.Equal(t, "png", format)
}

func TestProbeImageFallsBackOnDecodeFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-really-an-image.jpg")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))

	width, height, format := probeImage(path, "not-really-an-image.jpg")
	assert.Equal(t, 0, width)
	assert.Equal(t, 0, height)
	assert.Equal(t, "jpg", format, "falls back to the file extension when decode fails")
}

func TestProbeImageMissingFileFallsBackToExtension(t *testing.T) {
	width, height, format := probeImage("/no/such/path.png", "missing.png")
	assert.Equal(t, 0, width)
	assert.Equal(t, 0, height)
	assert.Equal(t, "png", format)
}

func TestValidateImageSize(t *testing.T) {
	assert.NoError(t, validateImageSize(100, 1000))
	assert.Error(t, validateImageSize(1001, 1000))
	assert.NoError(t, validateImageSize(1_000_000, 0), "a zero limit means unbounded")
}

func TestDescriptionModelLabel(t *testing.T) {
	assert.Equal(t, "unavailable", descriptionModelLabel(true))
	assert.Equal(t, "managed-vision", descriptionModelLabel(false))
}
