package services

import "github.com/ragcore/ingestion-core/internal/models"

// stageBand is the [base, base+width] percentage range a stage occupies in
// the overall progress model. Chunked work within a stage (video segments,
// text chunks) is interpolated linearly across the band.
type stageBand struct {
	base  int
	width int
}

// stageBands gives the known stage->base-progress anchors shared by every
// media pipeline (spec §4.3 "Progress model"). Unknown stages are not
// present here; ProgressMapper retains the last reported value for them.
var stageBands = map[string]stageBand{
	models.StagePending:              {0, 0},
	models.StageDownloading:          {0, 10},
	models.StageClassifying:          {10, 5},
	models.StageExtracting:           {15, 45},
	models.StageTranscribingAudio:    {15, 45},
	models.StageTranscribingVideo:    {15, 45},
	models.StageDescribingImage:      {15, 45},
	models.StageSegmentingVideo:      {15, 45},
	models.StageGeneratingEmbeddings: {60, 25},
	models.StageStoring:              {85, 14},
	models.StageCompleted:            {100, 0},
	models.StageFailed:               {0, 0},
}

// ProgressMapper derives a monotonically non-decreasing percentage from a
// sequence of (stage, i, n) reports for a single job. It is the concrete
// implementation of spec §4.3/§9 "progress as derived state, not stored
// truth": a value lower than the last reported one is clamped, except for
// the single reset to 0 that accompanies a failed transition.
type ProgressMapper struct {
	last int
}

// NewProgressMapper creates a mapper starting at 0%.
func NewProgressMapper() *ProgressMapper {
	return &ProgressMapper{}
}

// Report computes the percentage for stage, optionally interpolating
// within the stage's band using the 0-indexed i of n chunked sub-units
// (pass n<=0 to skip interpolation and report the stage's base). The
// result is clamped to never regress below the last reported value.
func (p *ProgressMapper) Report(stage string, i, n int) int {
	band, ok := stageBands[stage]
	if !ok {
		return p.last
	}

	pct := band.base
	if n > 0 && band.width > 0 {
		if i > n {
			i = n
		}
		pct = band.base + (band.width*i)/n
	}

	if pct < p.last {
		pct = p.last
	}
	p.last = pct
	return pct
}

// ReportFailed resets the mapper to 0%, the one sanctioned regression in
// the monotonic progress model (spec invariant 6 / §4.3).
func (p *ProgressMapper) ReportFailed() int {
	p.last = 0
	return 0
}

// Last returns the most recently reported percentage without recomputing.
func (p *ProgressMapper) Last() int {
	return p.last
}
