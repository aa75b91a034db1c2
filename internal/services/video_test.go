package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVideoPipelineWindowsEvenDivision(t *testing.T) {
	v := &VideoPipeline{segmentLenSec: 30}
	windows := v.windows(90)

	if assert.Len(t, windows, 3) {
		assert.Equal(t, videoWindow{0, 30}, windows[0])
		assert.Equal(t, videoWindow{30, 60}, windows[1])
		assert.Equal(t, videoWindow{60, 90}, windows[2])
	}
}

func TestVideoPipelineWindowsTrailingShortWindow(t *testing.T) {
	v := &VideoPipeline{segmentLenSec: 30}
	windows := v.windows(75)

	if assert.Len(t, windows, 3) {
		assert.Equal(t, videoWindow{60, 75}, windows[2])
	}
}

func TestVideoPipelineWindowsCapsAtMaxSegments(t *testing.T) {
	v := &VideoPipeline{segmentLenSec: 10, maxSegments: 2}
	windows := v.windows(100)
	assert.Len(t, windows, 2)
}

func TestVideoPipelineWindowsDefaultsSegmentLength(t *testing.T) {
	v := &VideoPipeline{}
	windows := v.windows(60)
	if assert.Len(t, windows, 2) {
		assert.Equal(t, 30.0, windows[0].endSec-windows[0].startSec)
	}
}

func TestVideoPipelineWindowsZeroDurationProducesNone(t *testing.T) {
	v := &VideoPipeline{segmentLenSec: 30}
	assert.Empty(t, v.windows(0))
}
