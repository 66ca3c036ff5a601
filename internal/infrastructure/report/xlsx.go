package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
)

const (
	sheetSummary    = "Summary"
	sheetCategories = "Categories"
	sheetCodes      = "Top Codes"
)

// XLSXExporter renders error analytics as a three-sheet workbook.
type XLSXExporter struct{}

func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

func (e *XLSXExporter) ExportErrorAnalytics(
	w io.Writer,
	analytics domain.ErrorAnalytics,
	stats domain.RecoveryStats,
	trends domain.ErrorTrends,
) error {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return fmt.Errorf("rename summary sheet: %w", err)
	}
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	summary := [][]any{
		{"Metric", "Value"},
		{"Generated at", analytics.GeneratedAt.UTC().Format(time.RFC3339)},
		{"Total errors", analytics.TotalErrors},
		{"Recovery attempts", stats.Attempts},
		{"Recovery successes", stats.Successes},
		{"Recovery failures", stats.Failures},
		{"Recovery success rate (%)", stats.SuccessRate},
		{"Trend window (s)", trends.WindowSeconds},
		{"Errors in window", trends.TotalErrors},
		{"Trend", string(trends.Trend)},
		{"Recommendation", trends.Recommendation},
	}
	for i, hotspot := range trends.Hotspots {
		summary = append(summary, []any{fmt.Sprintf("Hotspot %d", i+1), hotspot})
	}
	if err := writeRows(f, sheetSummary, summary, header); err != nil {
		return err
	}

	if _, err := f.NewSheet(sheetCategories); err != nil {
		return fmt.Errorf("create categories sheet: %w", err)
	}
	categories := make([]string, 0, len(analytics.ErrorsByCategory))
	for category := range analytics.ErrorsByCategory {
		categories = append(categories, string(category))
	}
	sort.Strings(categories)
	categoryRows := [][]any{{"Category", "Errors"}}
	for _, category := range categories {
		categoryRows = append(categoryRows, []any{category, analytics.ErrorsByCategory[domain.ErrorCategory(category)]})
	}
	if err := writeRows(f, sheetCategories, categoryRows, header); err != nil {
		return err
	}

	if _, err := f.NewSheet(sheetCodes); err != nil {
		return fmt.Errorf("create codes sheet: %w", err)
	}
	codeRows := [][]any{{"Code", "Count", "Share (%)"}}
	for _, code := range analytics.TopErrorCodes {
		codeRows = append(codeRows, []any{code.Code, code.Count, code.Percentage})
	}
	if err := writeRows(f, sheetCodes, codeRows, header); err != nil {
		return err
	}

	if err := f.SetColWidth(sheetSummary, "A", "A", 28); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := f.SetColWidth(sheetCodes, "A", "A", 36); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any, headerStyle int) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	if len(rows) == 0 {
		return nil
	}
	last, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}
	return nil
}
