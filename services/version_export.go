package services

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"context-rag-platform/internal/logger"
	"context-rag-platform/internal/store"
)

// VersionExportService renders a context's version history as an Excel
// workbook for offline review.
type VersionExportService struct {
	store store.Store
}

// NewVersionExportService creates a new version export service
func NewVersionExportService(st store.Store) *VersionExportService {
	return &VersionExportService{store: st}
}

// ExportHistory builds an .xlsx with one row per version plus a summary
// sheet, returned as an in-memory buffer for the download handler.
func (es *VersionExportService) ExportHistory(ctx context.Context, contextID primitive.ObjectID) (*bytes.Buffer, error) {
	c, err := es.store.GetContext(ctx, contextID)
	if err != nil {
		return nil, err
	}
	versions, err := es.store.ListVersions(ctx, contextID)
	if err != nil {
		return nil, err
	}
	tags, err := es.store.ListTags(ctx, contextID)
	if err != nil {
		return nil, err
	}
	tagsByVersion := make(map[primitive.ObjectID][]string)
	for _, t := range tags {
		tagsByVersion[t.VersionID] = append(tagsByVersion[t.VersionID], t.Name)
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			logger.Warn("Failed to close export workbook", "error", err)
		}
	}()

	sheetName := "Version History"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headers := []string{
		"Version", "Current", "Description", "Chunk Strategy", "Embedding Model",
		"Total Chunks", "Total Tokens", "Total Documents", "Content Hash", "Tags", "Created At",
	}
	for i, header := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(sheetName, cell, header)
	}

	for rowIdx, v := range versions {
		row := rowIdx + 2
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), v.Version)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), v.IsCurrent)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), v.Description)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), v.ChunkStrategy)
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), v.EmbeddingModel)
		f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), v.Stats.TotalChunks)
		f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), v.Stats.TotalTokens)
		f.SetCellValue(sheetName, fmt.Sprintf("H%d", row), v.Stats.TotalDocuments)
		f.SetCellValue(sheetName, fmt.Sprintf("I%d", row), v.ContentHash)
		f.SetCellValue(sheetName, fmt.Sprintf("J%d", row), joinNames(tagsByVersion[v.ID]))
		f.SetCellValue(sheetName, fmt.Sprintf("K%d", row), v.CreatedAt.Format("2006-01-02 15:04:05"))
	}

	summarySheet := "Summary"
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, fmt.Errorf("failed to create summary sheet: %w", err)
	}
	summaryData := [][]interface{}{
		{"Context", c.Name},
		{"Status", c.Status},
		{"Chunk Strategy", c.ChunkStrategy},
		{"Embedding Model", c.EmbeddingModel},
		{"Total Versions", len(versions)},
		{"Total Tags", len(tags)},
		{"Exported At", time.Now().Format("2006-01-02 15:04:05")},
	}
	for i, row := range summaryData {
		for j, cell := range row {
			cellRef := fmt.Sprintf("%c%d", 'A'+j, i+1)
			f.SetCellValue(summarySheet, cellRef, cell)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to render workbook: %w", err)
	}
	return buf, nil
}

func joinNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}
