package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ragcore/ingestion-core/internal/config"
	"github.com/ragcore/ingestion-core/internal/logger"
	pkgerrors "github.com/ragcore/ingestion-core/pkg/errors"
)

// AIServiceClient is the managed AI service client backing C3 (embeddings),
// C4 (transcription) and C6 (image/video description). It speaks a single
// bearer-authenticated JSON-over-HTTPS protocol, the same shape the
// upstream codebase used for its provider-agnostic AI calls.
type AIServiceClient struct {
	httpClient *http.Client
	cfg        config.AIServiceConfig
	logger     *logger.Logger
}

// TranscriptResult is the output of the transcription client (C4).
type TranscriptResult struct {
	Text       string
	Language   string
	Confidence float64
	Model      string
	HasAudio   bool
}

// NewAIServiceClient creates a new managed AI service client.
func NewAIServiceClient(cfg config.AIServiceConfig, log *logger.Logger) *AIServiceClient {
	return &AIServiceClient{
		httpClient: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		cfg:        cfg,
		logger:     log.WithService("ai_service"),
	}
}

type embeddingRequest struct {
	Model   string `json:"model"`
	Content string `json:"content,omitempty"`
	Image   string `json:"image_base64,omitempty"`
	Context string `json:"context,omitempty"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// EmbedText produces a 768-d text embedding of content (C3, C5, C6, C11).
func (c *AIServiceClient) EmbedText(ctx context.Context, content string) ([]float32, error) {
	var out embeddingResponse
	err := c.callWithRetry(ctx, "embed_text", func() error {
		return c.doJSON(ctx, "/embeddings/text", embeddingRequest{
			Model:   c.cfg.TextEmbedModel,
			Content: content,
		}, &out)
	})
	if err != nil {
		return nil, pkgerrors.EmbeddingError("text embedding failed", err)
	}
	if len(out.Embedding) != c.cfg.TextEmbedDim {
		return nil, pkgerrors.EmbeddingError(
			fmt.Sprintf("text embedding returned dimension %d, want %d", len(out.Embedding), c.cfg.TextEmbedDim), nil)
	}
	return out.Embedding, nil
}

// EmbedMultimodal produces a 1408-d multimodal embedding of the file at
// mediaPath, contextualized by contextText truncated to the configured
// token budget (C3, C6, C7).
func (c *AIServiceClient) EmbedMultimodal(ctx context.Context, mediaPath, contextText string) ([]float32, error) {
	data, err := os.ReadFile(mediaPath)
	if err != nil {
		return nil, pkgerrors.EmbeddingError("read media for multimodal embedding", err)
	}

	var out embeddingResponse
	err = c.callWithRetry(ctx, "embed_multimodal", func() error {
		return c.doJSON(ctx, "/embeddings/multimodal", embeddingRequest{
			Model:   c.cfg.MultimodalEmbedModel,
			Image:   base64.StdEncoding.EncodeToString(data),
			Context: truncateToTokenBudget(contextText, c.cfg.MultimodalContextTokenLimit, c.logger),
		}, &out)
	})
	if err != nil {
		return nil, pkgerrors.EmbeddingError("multimodal embedding failed", err)
	}
	if len(out.Embedding) != c.cfg.MultimodalEmbedDim {
		return nil, pkgerrors.EmbeddingError(
			fmt.Sprintf("multimodal embedding returned dimension %d, want %d", len(out.Embedding), c.cfg.MultimodalEmbedDim), nil)
	}
	return out.Embedding, nil
}

// EmbedMultimodalQuery produces a 1408-d multimodal-space embedding of a
// text-only query string, for C11 searches where there is no source image
// or video to embed, only the user's query text (spec §4.9).
func (c *AIServiceClient) EmbedMultimodalQuery(ctx context.Context, query string) ([]float32, error) {
	var out embeddingResponse
	err := c.callWithRetry(ctx, "embed_multimodal_query", func() error {
		return c.doJSON(ctx, "/embeddings/multimodal", embeddingRequest{
			Model:   c.cfg.MultimodalEmbedModel,
			Content: query,
		}, &out)
	})
	if err != nil {
		return nil, pkgerrors.EmbeddingError("multimodal query embedding failed", err)
	}
	if len(out.Embedding) != c.cfg.MultimodalEmbedDim {
		return nil, pkgerrors.EmbeddingError(
			fmt.Sprintf("multimodal query embedding returned dimension %d, want %d", len(out.Embedding), c.cfg.MultimodalEmbedDim), nil)
	}
	return out.Embedding, nil
}

type transcriptionRequest struct {
	Model string `json:"model"`
	Audio string `json:"audio_base64"`
}

type transcriptionResponse struct {
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

// Transcribe runs the Gemini-family transcription call over mediaPath (C4).
// Per spec §4.6, a failed transcription does not fail the job: callers
// receive a TranscriptResult with HasAudio=false and the error folded into
// Text rather than a hard error, except for context cancellation and a
// failure to read mediaPath, which return a TranscriptionError.
func (c *AIServiceClient) Transcribe(ctx context.Context, mediaPath string) (TranscriptResult, error) {
	data, err := os.ReadFile(mediaPath)
	if err != nil {
		return TranscriptResult{}, pkgerrors.TranscriptionError("read media for transcription", err)
	}

	var out transcriptionResponse
	callErr := c.callWithRetry(ctx, "transcribe", func() error {
		return c.doJSON(ctx, "/transcribe", transcriptionRequest{
			Model: c.cfg.TranscriptionModel,
			Audio: base64.StdEncoding.EncodeToString(data),
		}, &out)
	})
	if callErr != nil {
		if ctx.Err() != nil {
			return TranscriptResult{}, ctx.Err()
		}
		c.logger.Warn("transcription failed, continuing with silent placeholder", zap.Error(callErr))
		return TranscriptResult{
			Text:     fmt.Sprintf("[transcription failed: %s]", callErr.Error()),
			Model:    c.cfg.TranscriptionModel,
			HasAudio: false,
		}, nil
	}

	text := strings.TrimSpace(out.Text)
	if text == "" {
		return TranscriptResult{Text: "[no audio]", Model: c.cfg.TranscriptionModel, HasAudio: false}, nil
	}
	return TranscriptResult{
		Text:       text,
		Language:   out.Language,
		Confidence: out.Confidence,
		Model:      c.cfg.TranscriptionModel,
		HasAudio:   true,
	}, nil
}

type descriptionRequest struct {
	Model string `json:"model"`
	Image string `json:"image_base64"`
}

type descriptionResponse struct {
	Description string `json:"description"`
}

// DescribeMedia calls the multimodal vision model to produce a dense
// natural-language description of an image or video segment's visual
// content (C6, C7). An error here is hard-propagated; callers supply their
// own placeholder fallback per spec §4.5.
func (c *AIServiceClient) DescribeMedia(ctx context.Context, mediaPath string) (string, error) {
	data, err := os.ReadFile(mediaPath)
	if err != nil {
		return "", pkgerrors.DescriptionError("read media for description", err)
	}

	var out descriptionResponse
	err = c.callWithRetry(ctx, "describe_media", func() error {
		return c.doJSON(ctx, "/describe", descriptionRequest{
			Model: c.cfg.DescriptionModel,
			Image: base64.StdEncoding.EncodeToString(data),
		}, &out)
	})
	if err != nil {
		return "", pkgerrors.DescriptionError("media description failed", err)
	}
	return strings.TrimSpace(out.Description), nil
}

// HealthCheck probes the managed AI service's health endpoint. It backs
// the ai_text/ai_multimodal/transcription entries the processor's /health
// surface reports, all of which share this one underlying service.
func (c *AIServiceClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health check request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ai service health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("ai service health check returned status %d", resp.StatusCode)
	}
	return nil
}

// doJSON marshals body, POSTs it to path under the configured base URL with
// bearer auth, and unmarshals the JSON response into out.
func (c *AIServiceClient) doJSON(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		c.logger.LogServiceCall("ai_service", path, duration.Seconds()*1000, err)
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		err := fmt.Errorf("%s returned status %d", path, resp.StatusCode)
		c.logger.LogServiceCall("ai_service", path, duration.Seconds()*1000, err)
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", path, err)
	}
	c.logger.LogServiceCall("ai_service", path, duration.Seconds()*1000, nil)
	return nil
}

// callWithRetry retries transient failures with bounded exponential
// backoff and jitter, up to the configured RETRY_ATTEMPTS (spec §5/§6).
// A 4xx response is retried like any other failure; only a cancelled or
// expired context stops the loop early, returning ctx.Err(). This matches the teacher's external-call retry shape used for
// Kafka/S3/Neo4j connection checks.
func (c *AIServiceClient) callWithRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	attempts := c.cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		if err := fn(); err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return ctx.Err()
			}
			backoff := time.Duration(math.Pow(2, float64(attempt))) * 100 * time.Millisecond
			jitter := time.Duration(rand.Int63n(int64(50 * time.Millisecond)))
			select {
			case <-time.After(backoff + jitter):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("%s: exhausted retries: %w", op, lastErr)
}

// truncateToTokenBudget approximates a token as ~4 characters, matching the
// rough heuristic used across the pack's LLM-adjacent code where no
// tokenizer is wired in, and truncates to the configured
// MULTIMODAL_CONTEXT_TOKEN_LIMIT (spec §6).
func truncateToTokenBudget(text string, tokenLimit int, log *logger.Logger) string {
	const approxCharsPerToken = 4
	if tokenLimit <= 0 {
		return text
	}
	limit := tokenLimit * approxCharsPerToken
	if len(text) <= limit {
		return text
	}
	log.Debug("truncating multimodal context to token budget", zap.Int("original_len", len(text)))
	return text[:limit]
}
