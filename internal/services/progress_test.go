package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ragcore/ingestion-core/internal/models"
)

func TestProgressMapperReportsBandBase(t *testing.T) {
	p := NewProgressMapper()
	assert.Equal(t, 0, p.Report(models.StageDownloading, 0, 0))
	assert.Equal(t, 10, p.Report(models.StageClassifying, 0, 0))
	assert.Equal(t, 15, p.Report(models.StageExtracting, 0, 0))
}

func TestProgressMapperInterpolatesWithinBand(t *testing.T) {
	p := NewProgressMapper()
	p.Report(models.StageExtracting, 0, 0)

	// StageExtracting band is [15, 60]: width 45
	assert.Equal(t, 15, p.Report(models.StageExtracting, 0, 4))
	assert.Equal(t, 26, p.Report(models.StageExtracting, 1, 4))
	assert.Equal(t, 37, p.Report(models.StageExtracting, 2, 4))
	assert.Equal(t, 48, p.Report(models.StageExtracting, 3, 4))
	assert.Equal(t, 60, p.Report(models.StageExtracting, 4, 4))
}

func TestProgressMapperClampsOverrunIndex(t *testing.T) {
	p := NewProgressMapper()
	// i greater than n must clamp to n rather than overshoot the band.
	assert.Equal(t, 60, p.Report(models.StageExtracting, 9, 4))
}

func TestProgressMapperNeverRegresses(t *testing.T) {
	p := NewProgressMapper()
	p.Report(models.StageGeneratingEmbeddings, 0, 0)
	last := p.Last()
	assert.Equal(t, 60, last)

	// Reporting an earlier stage afterward must not move progress backward.
	got := p.Report(models.StageExtracting, 0, 0)
	assert.Equal(t, last, got)
	assert.Equal(t, last, p.Last())
}

func TestProgressMapperUnknownStageKeepsLast(t *testing.T) {
	p := NewProgressMapper()
	p.Report(models.StageDownloading, 0, 0)
	got := p.Report("not-a-real-stage", 0, 0)
	assert.Equal(t, p.Last(), got)
}

func TestProgressMapperReportFailedResetsToZero(t *testing.T) {
	p := NewProgressMapper()
	p.Report(models.StageStoring, 0, 0)
	assert.Equal(t, 0, p.ReportFailed())
	assert.Equal(t, 0, p.Last())
}

func TestProgressMapperCompletedReachesHundred(t *testing.T) {
	p := NewProgressMapper()
	p.Report(models.StageStoring, 0, 0)
	assert.Equal(t, 100, p.Report(models.StageCompleted, 0, 0))
}

func TestProgressMapperStoringNeverReachesHundred(t *testing.T) {
	p := NewProgressMapper()
	// A full (1,1) fill of the storing band must stop short of 100; only the
	// completed transition is allowed to report 100.
	got := p.Report(models.StageStoring, 1, 1)
	assert.Less(t, got, 100)
	assert.Equal(t, 100, p.Report(models.StageCompleted, 0, 0))
}
