package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"context-rag-platform/internal/logger"
	"context-rag-platform/internal/store"
	"context-rag-platform/models"
	"context-rag-platform/utils"
)

// DocumentExtractor reads an ingested file from storage and turns it into
// plain text. Extracted text is cached (compressed) on the document record,
// so a reprocess skips the expensive extraction step.
type DocumentExtractor struct {
	store store.DocumentStore
}

// NewDocumentExtractor creates a new document extractor
func NewDocumentExtractor(st store.DocumentStore) *DocumentExtractor {
	return &DocumentExtractor{store: st}
}

// Extract returns the document's plain text and detected category.
func (de *DocumentExtractor) Extract(ctx context.Context, doc *models.Document) (string, string, error) {
	category := DetectCategory(doc.OriginalName)

	if len(doc.ExtractedText) > 0 {
		text, err := utils.DecompressText(doc.ExtractedText, utils.CompressionAlgorithm(doc.Compression))
		if err == nil {
			return text, category, nil
		}
		logger.Warn("Extraction cache unreadable, re-extracting", "document_id", doc.ID.Hex(), "error", err)
	}

	content, err := os.ReadFile(doc.FilePath)
	if err != nil {
		return "", category, fmt.Errorf("failed to read document file: %w", err)
	}

	var text string
	if category == models.CategoryPDF {
		text, err = extractPDF(content)
		if err != nil {
			return "", category, err
		}
	} else {
		text = string(content)
	}

	de.cacheExtraction(ctx, doc, text)
	return text, category, nil
}

func (de *DocumentExtractor) cacheExtraction(ctx context.Context, doc *models.Document, text string) {
	compressed, algorithm, err := utils.CompressText(text)
	if err != nil {
		logger.Warn("Failed to compress extraction cache", "document_id", doc.ID.Hex(), "error", err)
		return
	}
	if err := de.store.SaveExtractionCache(ctx, doc.ID, compressed, string(algorithm)); err != nil {
		logger.Warn("Failed to save extraction cache", "document_id", doc.ID.Hex(), "error", err)
	}
}

func extractPDF(content []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	var sb strings.Builder
	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			logger.Warn("Failed to extract PDF page", "page", i, "error", err)
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("no text extracted from PDF")
	}
	return sb.String(), nil
}

// DetectCategory classifies a document by filename extension.
func DetectCategory(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return models.CategoryPDF
	case ".md", ".markdown":
		return models.CategoryMarkdown
	case ".go", ".py", ".js", ".ts", ".java", ".rb", ".rs", ".c", ".cpp", ".h",
		".cs", ".php", ".swift", ".kt", ".scala", ".sh", ".sql", ".html", ".css",
		".json", ".yaml", ".yml", ".toml", ".xml":
		return models.CategoryCode
	default:
		return models.CategoryText
	}
}
