package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetriable(t *testing.T) {
	t.Run("non-retriable classes", func(t *testing.T) {
		assert.False(t, ResourceLimitError("too big").Retriable())
		assert.False(t, JobTimeout("deadline exceeded").Retriable())
		assert.False(t, Validation("bad input", nil).Retriable())
	})

	t.Run("retriable classes", func(t *testing.T) {
		assert.True(t, ExtractionError("pdf parse failed", assert.AnError).Retriable())
		assert.True(t, TranscriptionError("asr failed", assert.AnError).Retriable())
		assert.True(t, DescriptionError("vision call failed", assert.AnError).Retriable())
		assert.True(t, EmbeddingError("embed call failed", assert.AnError).Retriable())
		assert.True(t, StorageError("insert failed", assert.AnError).Retriable())
	})
}

func TestIsRetriable(t *testing.T) {
	assert.True(t, IsRetriable(StorageError("db down", assert.AnError)))
	assert.False(t, IsRetriable(ResourceLimitError("video too long")))
	assert.True(t, IsRetriable(assert.AnError), "a non-APIError is assumed retriable by default")
}

func TestNewTaxonomyErrorsMapHTTPStatus(t *testing.T) {
	assert.Equal(t, 413, GetHTTPStatusCode(ResourceLimitError("too big")))
	assert.Equal(t, 504, GetHTTPStatusCode(JobTimeout("timed out")))
}
