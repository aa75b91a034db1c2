package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSemanticChunkerShortTextProducesOneChunk(t *testing.T) {
	c := NewSemanticChunker(1000, 100)
	text := "  a short document that fits in a single chunk.  "
	chunks := c.Chunk(text)

	assert.Len(t, chunks, 1)
	assert.Equal(t, strings.TrimSpace(text), chunks[0].Content)
	assert.Equal(t, text[chunks[0].CharStart:chunks[0].CharEnd], chunks[0].Content)
}

func TestSemanticChunkerEmptyTextProducesNoChunks(t *testing.T) {
	c := NewSemanticChunker(1000, 100)
	assert.Nil(t, c.Chunk(""))
	assert.Nil(t, c.Chunk("   \n\t  "))
}

func TestSemanticChunkerPrefersParagraphBoundary(t *testing.T) {
	c := NewSemanticChunker(40, 5)
	para1 := strings.Repeat("a", 30)
	para2 := strings.Repeat("b", 30)
	text := para1 + "\n\n" + para2

	chunks := c.Chunk(text)
	if assert.NotEmpty(t, chunks) {
		assert.True(t, strings.HasSuffix(chunks[0].Content, para1))
		assert.NotContains(t, chunks[0].Content, "b")
	}
}

func TestSemanticChunkerFallsBackToSentenceBoundary(t *testing.T) {
	c := NewSemanticChunker(40, 5)
	text := strings.Repeat("a", 20) + ". " + strings.Repeat("b", 30)

	chunks := c.Chunk(text)
	if assert.NotEmpty(t, chunks) {
		assert.True(t, strings.HasSuffix(chunks[0].Content, "."))
	}
}

func TestSemanticChunkerHardCutsWhenNoBoundaryFound(t *testing.T) {
	c := NewSemanticChunker(20, 5)
	text := strings.Repeat("x", 100)

	chunks := c.Chunk(text)
	assert.True(t, len(chunks) > 1)
	for _, ch := range chunks {
		assert.NotEmpty(t, ch.Content)
	}
}

func TestSemanticChunkerProducesOverlappingOffsets(t *testing.T) {
	c := NewSemanticChunker(20, 5)
	text := strings.Repeat("x", 100)

	chunks := c.Chunk(text)
	for i := 1; i < len(chunks); i++ {
		assert.True(t, chunks[i].CharStart < chunks[i-1].CharEnd,
			"chunk %d should overlap the tail of chunk %d", i, i-1)
	}
}

func TestSemanticChunkerNeverEmitsBlankChunk(t *testing.T) {
	c := NewSemanticChunker(10, 2)
	text := strings.Repeat("a", 10) + "\n\n\n\n" + strings.Repeat("b", 10)

	chunks := c.Chunk(text)
	for _, ch := range chunks {
		assert.NotEmpty(t, strings.TrimSpace(ch.Content))
	}
}

func TestNewSemanticChunkerAppliesDefaults(t *testing.T) {
	c := NewSemanticChunker(0, 0)
	assert.Equal(t, 1000, c.TargetChars)
	assert.Equal(t, 100, c.OverlapChars)

	c2 := NewSemanticChunker(50, 50)
	assert.Equal(t, 100, c2.OverlapChars, "overlap >= target falls back to default")
}
