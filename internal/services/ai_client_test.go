package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragcore/ingestion-core/internal/config"
	"github.com/ragcore/ingestion-core/internal/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "json"})
	require.NoError(t, err)
	return log
}

func newTestAIClient(t *testing.T, srv *httptest.Server) *AIServiceClient {
	t.Helper()
	cfg := config.AIServiceConfig{
		BaseURL:                     srv.URL,
		APIKey:                      "test-key",
		TextEmbedModel:              "text-embed-test",
		MultimodalEmbedModel:        "multimodal-embed-test",
		TranscriptionModel:          "transcribe-test",
		DescriptionModel:            "describe-test",
		TimeoutSeconds:              5,
		TextEmbedDim:                768,
		MultimodalEmbedDim:          1408,
		RetryAttempts:               3,
		MultimodalContextTokenLimit: 32,
	}
	return NewAIServiceClient(cfg, testLogger(t))
}

func vector(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestCallWithRetryRespectsConfiguredAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := config.AIServiceConfig{
		BaseURL:        srv.URL,
		APIKey:         "test-key",
		TextEmbedModel: "text-embed-test",
		TimeoutSeconds: 5,
		TextEmbedDim:   768,
		RetryAttempts:  2,
	}
	c := NewAIServiceClient(cfg, testLogger(t))

	_, err := c.EmbedText(t.Context(), "hello world")
	assert.Error(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestEmbedTextReturnsVectorOfConfiguredDimension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings/text", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(embeddingResponse{Embedding: vector(768, 0.1)})
	}))
	defer srv.Close()

	c := newTestAIClient(t, srv)
	emb, err := c.EmbedText(t.Context(), "hello world")
	require.NoError(t, err)
	assert.Len(t, emb, 768)
}

func TestEmbedTextRejectsWrongDimension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embeddingResponse{Embedding: vector(10, 0.1)})
	}))
	defer srv.Close()

	c := newTestAIClient(t, srv)
	_, err := c.EmbedText(t.Context(), "hello world")
	assert.Error(t, err)
}

func TestEmbedMultimodalSendsImageBytesAndContext(t *testing.T) {
	tmp, err := os.CreateTemp(t.TempDir(), "img-*.bin")
	require.NoError(t, err)
	_, err = tmp.Write([]byte{0xFF, 0xD8, 0xFF})
	require.NoError(t, err)
	require.NoError(t, tmp.Close())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(t, req.Image)
		assert.Equal(t, "a caption", req.Context)
		_ = json.NewEncoder(w).Encode(embeddingResponse{Embedding: vector(1408, 0.2)})
	}))
	defer srv.Close()

	c := newTestAIClient(t, srv)
	emb, err := c.EmbedMultimodal(t.Context(), tmp.Name(), "a caption")
	require.NoError(t, err)
	assert.Len(t, emb, 1408)
}

func TestEmbedMultimodalQuerySendsContentNotImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "find the invoice", req.Content)
		assert.Empty(t, req.Image)
		_ = json.NewEncoder(w).Encode(embeddingResponse{Embedding: vector(1408, 0.3)})
	}))
	defer srv.Close()

	c := newTestAIClient(t, srv)
	emb, err := c.EmbedMultimodalQuery(t.Context(), "find the invoice")
	require.NoError(t, err)
	assert.Len(t, emb, 1408)
}

func TestTranscribeFallsBackToPlaceholderOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tmp, err := os.CreateTemp(t.TempDir(), "audio-*.bin")
	require.NoError(t, err)
	_, err = tmp.Write([]byte("fake-audio"))
	require.NoError(t, err)
	require.NoError(t, tmp.Close())

	c := newTestAIClient(t, srv)
	result, err := c.Transcribe(t.Context(), tmp.Name())
	require.NoError(t, err, "a failed transcription call degrades rather than failing the job")
	assert.False(t, result.HasAudio)
	assert.Contains(t, result.Text, "transcription failed")
}

func TestTranscribeReturnsNoAudioPlaceholderOnEmptyText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(transcriptionResponse{Text: "   "})
	}))
	defer srv.Close()

	tmp, err := os.CreateTemp(t.TempDir(), "audio-*.bin")
	require.NoError(t, err)
	require.NoError(t, tmp.Close())

	c := newTestAIClient(t, srv)
	result, err := c.Transcribe(t.Context(), tmp.Name())
	require.NoError(t, err)
	assert.False(t, result.HasAudio)
	assert.Equal(t, "[no audio]", result.Text)
}

func TestTranscribeReturnsTranscriptOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(transcriptionResponse{Text: "hello there", Language: "en", Confidence: 0.97})
	}))
	defer srv.Close()

	tmp, err := os.CreateTemp(t.TempDir(), "audio-*.bin")
	require.NoError(t, err)
	require.NoError(t, tmp.Close())

	c := newTestAIClient(t, srv)
	result, err := c.Transcribe(t.Context(), tmp.Name())
	require.NoError(t, err)
	assert.True(t, result.HasAudio)
	assert.Equal(t, "hello there", result.Text)
	assert.Equal(t, "en", result.Language)
}

func TestDescribeMediaHardPropagatesFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tmp, err := os.CreateTemp(t.TempDir(), "img-*.bin")
	require.NoError(t, err)
	require.NoError(t, tmp.Close())

	c := newTestAIClient(t, srv)
	_, err = c.DescribeMedia(t.Context(), tmp.Name())
	assert.Error(t, err, "description failures are not swallowed; callers supply their own placeholder")
}

func TestDescribeMediaReturnsTrimmedDescription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(descriptionResponse{Description: "  a red bicycle  "})
	}))
	defer srv.Close()

	tmp, err := os.CreateTemp(t.TempDir(), "img-*.bin")
	require.NoError(t, err)
	require.NoError(t, tmp.Close())

	c := newTestAIClient(t, srv)
	desc, err := c.DescribeMedia(t.Context(), tmp.Name())
	require.NoError(t, err)
	assert.Equal(t, "a red bicycle", desc)
}

func TestHealthCheckReturnsErrorOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestAIClient(t, srv)
	assert.Error(t, c.HealthCheck(t.Context()))
}

func TestTruncateToTokenBudgetUsesConfiguredLimit(t *testing.T) {
	log := testLogger(t)
	long := strings.Repeat("x", 200)

	assert.Len(t, truncateToTokenBudget(long, 10, log), 40)
	assert.Equal(t, long, truncateToTokenBudget(long, 0, log), "a zero limit means unbounded")
}

func TestHealthCheckSucceedsOn200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestAIClient(t, srv)
	assert.NoError(t, c.HealthCheck(t.Context()))
}
