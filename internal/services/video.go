package services

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/google/uuid"

	"github.com/ragcore/ingestion-core/internal/config"
	"github.com/ragcore/ingestion-core/internal/logger"
	"github.com/ragcore/ingestion-core/internal/models"
	pkgerrors "github.com/ragcore/ingestion-core/pkg/errors"
)

// VideoPipeline is C7: duration probing, fixed-window segmentation via an
// external transcoder, and per-segment dual-parallel transcribe+describe
// followed by dual-parallel text+multimodal embedding (spec §4.7).
// Segmentation is grounded in the pack's ffmpeg-backed video parser
// (other_examples' Vantagics-AskFlow video processing pipeline); this
// module's own contribution is the fixed-window (rather than keyframe-driven)
// segmentation and the per-segment dual embedding.
type VideoPipeline struct {
	segmentLenSec int
	maxSegments   int
	maxDurationSec int
	ai            *AIServiceClient
	logger        *logger.Logger
}

// NewVideoPipeline builds a VideoPipeline from the processor's video
// resource-limit configuration.
func NewVideoPipeline(cfg config.ProcessorConfig, ai *AIServiceClient, log *logger.Logger) *VideoPipeline {
	return &VideoPipeline{
		segmentLenSec:  cfg.VideoSegmentLenSec,
		maxSegments:    cfg.VideoMaxSegments,
		maxDurationSec: cfg.VideoMaxDurationSec,
		ai:             ai,
		logger:         log.WithService("video_pipeline"),
	}
}

// segmentResult is the outcome of fully processing one fixed-window segment.
type segmentResult struct {
	chunk *models.Chunk
	err   error
}

// Process probes path's duration, cuts it into fixed-length windows (default
// 30s, at most VideoMaxSegments), and runs each window through the
// transcribe+describe+embed pipeline sequentially (segments are processed
// one at a time; within a segment, transcription and description run in
// parallel, and so do the two embedding calls). progress is advanced once
// per completed segment. Every temp segment file is removed on every exit
// path, including mid-loop errors.
func (v *VideoPipeline) Process(ctx context.Context, documentID uuid.UUID, userID, path, filename string, progress *ProgressMapper) ([]*models.Chunk, error) {
	durationSec, err := probeDuration(ctx, path)
	if err != nil {
		return nil, pkgerrors.ExtractionError(fmt.Sprintf("%s: duration probe failed", filename), err)
	}
	if v.maxDurationSec > 0 && durationSec > float64(v.maxDurationSec) {
		return nil, pkgerrors.ResourceLimitError(
			fmt.Sprintf("video duration %.1fs exceeds limit %ds", durationSec, v.maxDurationSec))
	}

	windows := v.windows(durationSec)
	if len(windows) == 0 {
		return nil, pkgerrors.ExtractionError(fmt.Sprintf("%s: no segments produced for %.1fs video", filename, durationSec), nil)
	}

	segmentDir, err := os.MkdirTemp("", "ragcore-video-segment-*")
	if err != nil {
		return nil, fmt.Errorf("create segment temp dir: %w", err)
	}
	defer os.RemoveAll(segmentDir)

	chunks := make([]*models.Chunk, 0, len(windows))
	for i, w := range windows {
		chunk, err := v.processSegment(ctx, documentID, userID, path, filename, segmentDir, i, len(windows), w)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
		progress.Report(models.StageSegmentingVideo, i+1, len(windows))
	}
	return chunks, nil
}

type videoWindow struct {
	startSec float64
	endSec   float64
}

// windows splits [0, durationSec) into fixed segmentLenSec windows, capped
// at maxSegments (spec §5 resource limits). A duration that divides evenly
// produces no trailing short window.
func (v *VideoPipeline) windows(durationSec float64) []videoWindow {
	segLen := float64(v.segmentLenSec)
	if segLen <= 0 {
		segLen = 30
	}
	var out []videoWindow
	for start := 0.0; start < durationSec; start += segLen {
		end := start + segLen
		if end > durationSec {
			end = durationSec
		}
		out = append(out, videoWindow{startSec: start, endSec: end})
		if v.maxSegments > 0 && len(out) >= v.maxSegments {
			break
		}
	}
	return out
}

// processSegment extracts one window to a temp file, runs the dual-parallel
// transcribe+describe phase, embeds the result two ways in parallel, and
// removes the segment file before returning, success or failure.
func (v *VideoPipeline) processSegment(ctx context.Context, documentID uuid.UUID, userID, path, filename, segmentDir string, index, total int, w videoWindow) (*models.Chunk, error) {
	segPath := filepath.Join(segmentDir, fmt.Sprintf("segment-%04d%s", index, filepath.Ext(path)))
	if err := extractSegment(ctx, path, segPath, w.startSec, w.endSec-w.startSec); err != nil {
		return nil, pkgerrors.ExtractionError(fmt.Sprintf("%s: segment %d extraction failed", filename, index), err)
	}
	defer os.Remove(segPath)

	var (
		wg           sync.WaitGroup
		transcript   TranscriptResult
		transcribeErr error
		description  string
		describeErr  error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		transcript, transcribeErr = v.ai.Transcribe(ctx, segPath)
	}()
	go func() {
		defer wg.Done()
		description, describeErr = v.ai.DescribeMedia(ctx, segPath)
	}()
	wg.Wait()

	if transcribeErr != nil {
		return nil, transcribeErr
	}
	if describeErr != nil {
		v.logger.Warn("segment description failed, using placeholder",
			zap.Int("segment", index), zap.Error(describeErr))
		description = fmt.Sprintf("[description unavailable for segment %d]", index)
	}

	content := strings.TrimSpace(transcript.Text)
	if content == "" {
		content = "[no audio]"
	}

	var (
		textEmbedding       []float32
		multimodalEmbedding []float32
		textErr             error
		multimodalErr       error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		textEmbedding, textErr = v.ai.EmbedText(ctx, content)
	}()
	go func() {
		defer wg.Done()
		multimodalEmbedding, multimodalErr = v.ai.EmbedMultimodal(ctx, segPath, description)
	}()
	wg.Wait()

	if textErr != nil {
		return nil, textErr
	}
	if multimodalErr != nil {
		return nil, multimodalErr
	}

	meta := models.VideoChunkMetadata{
		SourceFilename: filename,
		SegmentIndex:   index,
		TotalSegments:  total,
		StartOffsetSec: w.startSec,
		EndOffsetSec:   w.endSec,
		DurationSec:    w.endSec - w.startSec,
		Transcript: models.TranscriptMetadata{
			Language:   transcript.Language,
			Confidence: transcript.Confidence,
			Model:      transcript.Model,
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
			HasAudio:   transcript.HasAudio,
		},
	}

	chunk, err := models.NewChunk(documentID, userID, content, index, models.EmbeddingTypeMultimodal, meta)
	if err != nil {
		return nil, fmt.Errorf("build video segment chunk %d: %w", index, err)
	}
	chunk.Context = &description
	chunk.TextEmbedding = textEmbedding
	chunk.MultimodalEmbedding = multimodalEmbedding
	return chunk, nil
}

// probeDuration shells out to ffprobe for the container duration in
// seconds. ffprobe/ffmpeg are expected on PATH, the same assumption the
// pack's transcoding code makes of its external tools.
func probeDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	durationSec, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse ffprobe duration %q: %w", string(out), err)
	}
	return durationSec, nil
}

// extractSegment shells out to ffmpeg to cut [startSec, startSec+lenSec)
// out of src into dst, re-encoding nothing (stream copy) so extraction stays
// fast even on long videos.
func extractSegment(ctx context.Context, src, dst string, startSec, lenSec float64) error {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-ss", strconv.FormatFloat(startSec, 'f', 3, 64),
		"-i", src,
		"-t", strconv.FormatFloat(lenSec, 'f', 3, 64),
		"-c", "copy",
		dst,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
