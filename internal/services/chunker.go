package services

import (
	"strings"
)

// TextChunk is one semantically-bounded slice of an extracted document,
// carrying the character offsets it was cut from (spec §4.4 "Chunking").
type TextChunk struct {
	Content   string
	CharStart int
	CharEnd   int
}

// SemanticChunker splits extracted document text into overlapping chunks,
// preferring paragraph boundaries, then sentence boundaries, then a hard
// character cut, in that order. It never emits an empty or
// whitespace-only chunk (spec §4.4). Grounded in the pack's legal-document
// chunking service, generalized from a single paragraph-regex pass to a
// three-tier boundary search.
type SemanticChunker struct {
	TargetChars int
	OverlapChars int
}

// NewSemanticChunker builds a chunker targeting targetChars per chunk with
// overlapChars of overlap between consecutive chunks.
func NewSemanticChunker(targetChars, overlapChars int) *SemanticChunker {
	if targetChars <= 0 {
		targetChars = 1000
	}
	if overlapChars <= 0 || overlapChars >= targetChars {
		overlapChars = 100
	}
	return &SemanticChunker{TargetChars: targetChars, OverlapChars: overlapChars}
}

// Chunk splits text into TextChunks. A text shorter than one target chunk
// produces exactly one chunk spanning the whole input (spec §8 boundary
// behavior).
func (c *SemanticChunker) Chunk(text string) []TextChunk {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if len(text) <= c.TargetChars {
		start := strings.Index(text, trimmed)
		if start < 0 {
			start = 0
		}
		return []TextChunk{{Content: trimmed, CharStart: start, CharEnd: start + len(trimmed)}}
	}

	var chunks []TextChunk
	pos := 0
	n := len(text)
	for pos < n {
		end := pos + c.TargetChars
		if end >= n {
			end = n
		} else {
			end = c.findBoundary(text, pos, end)
		}

		piece := strings.TrimSpace(text[pos:end])
		if piece != "" {
			actualStart := pos + strings.Index(text[pos:end], piece)
			chunks = append(chunks, TextChunk{
				Content:   piece,
				CharStart: actualStart,
				CharEnd:   actualStart + len(piece),
			})
		}

		if end >= n {
			break
		}
		next := end - c.OverlapChars
		if next <= pos {
			next = end
		}
		pos = next
	}
	return chunks
}

// findBoundary searches backward from target for a paragraph break, then a
// sentence break, then gives up and cuts hard at target (spec §4.4).
func (c *SemanticChunker) findBoundary(text string, start, target int) int {
	window := text[start:target]

	if idx := strings.LastIndex(window, "\n\n"); idx > 0 {
		return start + idx + 2
	}

	if idx := lastSentenceBoundary(window); idx > 0 {
		return start + idx
	}

	return target
}

// lastSentenceBoundary returns the offset just past the last sentence
// terminator (. ! ?) followed by whitespace within window, or -1 if none.
func lastSentenceBoundary(window string) int {
	best := -1
	for _, terminator := range []string{". ", "! ", "? ", ".\n", "!\n", "?\n"} {
		if idx := strings.LastIndex(window, terminator); idx > best {
			best = idx + len(terminator)
		}
	}
	return best
}
