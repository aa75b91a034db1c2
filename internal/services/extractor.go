package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	dslipakpdf "github.com/dslipak/pdf"
	ledongthucpdf "github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"go.uber.org/zap"

	"github.com/google/uuid"

	"github.com/ragcore/ingestion-core/internal/config"
	"github.com/ragcore/ingestion-core/internal/logger"
	"github.com/ragcore/ingestion-core/internal/models"
	pkgerrors "github.com/ragcore/ingestion-core/pkg/errors"
)

// DocumentExtractor is the C5 document extractor: heterogeneous text
// extraction from PDF/DOCX/HTML/TXT followed by semantic chunking and
// text embedding. Grounded in the pack's legal-document chunking service
// for the chunking half; the per-format extraction routing is this
// module's own, since no single example library spans all four formats.
type DocumentExtractor struct {
	chunker *SemanticChunker
	ai      *AIServiceClient
	logger  *logger.Logger
}

// NewDocumentExtractor builds a DocumentExtractor from the processor's
// chunk-size configuration.
func NewDocumentExtractor(cfg config.ProcessorConfig, ai *AIServiceClient, log *logger.Logger) *DocumentExtractor {
	return &DocumentExtractor{
		chunker: NewSemanticChunker(cfg.ChunkTargetChars, cfg.ChunkOverlapChars),
		ai:      ai,
		logger:  log.WithService("document_extractor"),
	}
}

// Extract reads path (classified by mimeType/filename), chunks the result,
// and embeds each chunk, returning chunk-ready (content, metadata, vector)
// triples in contiguous chunk_index order. No chunk is empty (spec
// invariant 3); each carries a 768-d text_embedding and
// embedding_type=text (spec §4.4).
func (e *DocumentExtractor) Extract(ctx context.Context, documentID uuid.UUID, userID, path, mimeType, filename string) ([]*models.Chunk, error) {
	text, err := e.extractText(path, mimeType, filename)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, pkgerrors.ExtractionError(fmt.Sprintf("%s: no extractable text", filename), nil)
	}

	pieces := e.chunker.Chunk(text)
	if len(pieces) == 0 {
		return nil, pkgerrors.ExtractionError(fmt.Sprintf("%s: chunking produced no chunks", filename), nil)
	}

	chunks := make([]*models.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		embedding, err := e.ai.EmbedText(ctx, piece.Content)
		if err != nil {
			return nil, err
		}

		meta := models.DocumentChunkMetadata{
			SourceFilename: filename,
			ChunkIndex:     i,
			TotalChunks:    len(pieces),
			CharStart:      piece.CharStart,
			CharEnd:        piece.CharEnd,
		}
		chunk, err := models.NewChunk(documentID, userID, piece.Content, i, models.EmbeddingTypeText, meta)
		if err != nil {
			return nil, fmt.Errorf("build document chunk %d: %w", i, err)
		}
		chunk.TextEmbedding = embedding
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// extractText routes to the per-format extractor. PDF is attempted with
// the primary extractor first and falls back to a secondary PDF text
// extractor on failure (spec §4.4); if both fail the job fails outright
// with no placeholder content emitted.
func (e *DocumentExtractor) extractText(path, mimeType, filename string) (string, error) {
	switch classifyDocumentFormat(mimeType, filename) {
	case "pdf":
		text, err := extractPDFPrimary(path)
		if err == nil {
			return text, nil
		}
		e.logger.Warn("primary PDF extractor failed, falling back to secondary extractor",
			zap.String("file", filename), zap.Error(err))
		text, fallbackErr := extractPDFFallback(path)
		if fallbackErr != nil {
			return "", pkgerrors.ExtractionError(fmt.Sprintf("%s: both PDF extractors failed", filename), fallbackErr)
		}
		return text, nil
	case "docx":
		text, err := extractDOCX(path)
		if err != nil {
			return "", pkgerrors.ExtractionError(fmt.Sprintf("%s: docx extraction failed", filename), err)
		}
		return text, nil
	case "html":
		text, err := extractHTML(path)
		if err != nil {
			return "", pkgerrors.ExtractionError(fmt.Sprintf("%s: html extraction failed", filename), err)
		}
		return text, nil
	case "txt":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", pkgerrors.ExtractionError(fmt.Sprintf("%s: read failed", filename), err)
		}
		return string(data), nil
	default:
		return "", pkgerrors.Validation(fmt.Sprintf("unsupported document format for %s (mime=%s)", filename, mimeType), nil)
	}
}

func classifyDocumentFormat(mimeType, filename string) string {
	switch {
	case strings.Contains(mimeType, "pdf"):
		return "pdf"
	case strings.Contains(mimeType, "wordprocessingml"), strings.Contains(mimeType, "msword"):
		return "docx"
	case strings.Contains(mimeType, "html"):
		return "html"
	case strings.Contains(mimeType, "text/plain"):
		return "txt"
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "pdf"
	case ".docx", ".doc":
		return "docx"
	case ".html", ".htm":
		return "html"
	case ".txt", ".md":
		return "txt"
	}
	return "unknown"
}

// extractPDFPrimary uses dslipak/pdf, the extractor grounded directly in
// the pack (liliang-cn/rago's ingest engine uses the same package).
func extractPDFPrimary(path string) (string, error) {
	r, err := dslipakpdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var buf bytes.Buffer
	totalPages := r.NumPage()
	for i := 1; i <= totalPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		buf.WriteString(content)
		buf.WriteString("\n\n")
	}
	if buf.Len() == 0 {
		return "", fmt.Errorf("no text extracted from %d pages", totalPages)
	}
	return buf.String(), nil
}

// extractPDFFallback uses ledongthuc/pdf, a secondary PDF text extractor
// with an independent parsing implementation, so a bug in the primary
// extractor's content-stream handling doesn't also sink the fallback.
func extractPDFFallback(path string) (string, error) {
	f, r, err := ledongthucpdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf (fallback): %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	b, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("get plain text (fallback): %w", err)
	}
	if _, err := io.Copy(&buf, b); err != nil {
		return "", fmt.Errorf("read plain text (fallback): %w", err)
	}
	return buf.String(), nil
}

// extractDOCX pulls the document body's readable content out of a .docx
// zip package. The main document part (word/document.xml) is OOXML; stripXMLMarkup reduces it to plain
// text since nguyenthenguyen/docx's Editable() surface is oriented around
// template substitution rather than plain-text extraction.
func extractDOCX(path string) (string, error) {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer r.Close()

	content := r.Editable().GetContent()
	return stripXMLMarkup(content), nil
}

var xmlTagPattern = regexp.MustCompile(`<[^>]+>`)
var docxParaBreak = regexp.MustCompile(`</w:p>`)

func stripXMLMarkup(xmlContent string) string {
	withBreaks := docxParaBreak.ReplaceAllString(xmlContent, "</w:p>\n\n")
	text := xmlTagPattern.ReplaceAllString(withBreaks, "")
	return strings.TrimSpace(text)
}

// extractHTML uses goquery to pull the body's text content, preferring
// heading/paragraph-aware traversal over a blanket tag-strip so
// StructureHint-worthy boundaries (headings) stay on their own line.
func extractHTML(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open html: %w", err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var buf bytes.Buffer
	doc.Find("h1, h2, h3, h4, p, li, td").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		buf.WriteString(text)
		buf.WriteString("\n\n")
	})
	if buf.Len() == 0 {
		return strings.TrimSpace(doc.Find("body").Text()), nil
	}
	return buf.String(), nil
}
