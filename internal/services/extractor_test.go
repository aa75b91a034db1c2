package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyDocumentFormatByMime(t *testing.T) {
	assert.Equal(t, "pdf", classifyDocumentFormat("application/pdf", "whatever.bin"))
	assert.Equal(t, "docx", classifyDocumentFormat(
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "whatever.bin"))
	assert.Equal(t, "docx", classifyDocumentFormat("application/msword", "whatever.bin"))
	assert.Equal(t, "html", classifyDocumentFormat("text/html; charset=utf-8", "whatever.bin"))
	assert.Equal(t, "txt", classifyDocumentFormat("text/plain", "whatever.bin"))
}

func TestClassifyDocumentFormatFallsBackToExtension(t *testing.T) {
	assert.Equal(t, "pdf", classifyDocumentFormat("application/octet-stream", "report.PDF"))
	assert.Equal(t, "docx", classifyDocumentFormat("application/octet-stream", "report.docx"))
	assert.Equal(t, "docx", classifyDocumentFormat("application/octet-stream", "legacy.doc"))
	assert.Equal(t, "html", classifyDocumentFormat("application/octet-stream", "page.htm"))
	assert.Equal(t, "txt", classifyDocumentFormat("application/octet-stream", "notes.md"))
}

func TestClassifyDocumentFormatUnknown(t *testing.T) {
	assert.Equal(t, "unknown", classifyDocumentFormat("application/octet-stream", "archive.zip"))
}

func TestStripXMLMarkupRemovesTagsAndAddsParagraphBreaks(t *testing.T) {
	xml := `<w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p><w:p><w:r><w:t>Second paragraph.</w:t></w:r></w:p>`
	text := stripXMLMarkup(xml)

	assert.Contains(t, text, "First paragraph.")
	assert.Contains(t, text, "Second paragraph.")
	assert.Contains(t, text, "\n\n")
	assert.NotContains(t, text, "<w:p>")
	assert.NotContains(t, text, "<w:t>")
}

func TestStripXMLMarkupTrimsSurroundingWhitespace(t *testing.T) {
	text := stripXMLMarkup("   <w:p><w:t>content</w:t></w:p>   ")
	assert.Equal(t, "content", text)
}
