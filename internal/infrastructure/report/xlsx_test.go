package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
)

func TestExportErrorAnalyticsWritesAllSheets(t *testing.T) {
	analytics := domain.ErrorAnalytics{
		TotalErrors: 4,
		ErrorsByCategory: map[domain.ErrorCategory]int{
			domain.CategoryNetwork: 3,
			domain.CategoryStorage: 1,
		},
		TopErrorCodes: []domain.ErrorCodeCount{
			{Code: "network.CONNECTION_TIMEOUT", Count: 3, Percentage: 75},
			{Code: "storage.QUOTA_EXCEEDED", Count: 1, Percentage: 25},
		},
		GeneratedAt: time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC),
	}
	stats := domain.RecoveryStats{Attempts: 2, Successes: 1, Failures: 1, SuccessRate: 50}
	trends := domain.ErrorTrends{
		WindowSeconds: 3600,
		TotalErrors:   4,
		Trend:         domain.TrendIncreasing,
		Hotspots:      []string{"network.CONNECTION_TIMEOUT"},
	}

	var buf bytes.Buffer
	if err := NewXLSXExporter().ExportErrorAnalytics(&buf, analytics, stats, trends); err != nil {
		t.Fatalf("ExportErrorAnalytics() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 3 || sheets[0] != sheetSummary {
		t.Fatalf("unexpected sheets: %v", sheets)
	}

	total, err := f.GetCellValue(sheetSummary, "B3")
	if err != nil || total != "4" {
		t.Fatalf("total errors cell = %q err=%v", total, err)
	}
	hotspot, _ := f.GetCellValue(sheetSummary, "B12")
	if hotspot != "network.CONNECTION_TIMEOUT" {
		t.Fatalf("hotspot cell = %q", hotspot)
	}

	rows, err := f.GetRows(sheetCategories)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 3 || rows[1][0] != "network" || rows[2][0] != "storage" {
		t.Fatalf("categories should be sorted: %v", rows)
	}

	codes, _ := f.GetRows(sheetCodes)
	if len(codes) != 3 || codes[1][1] != "3" {
		t.Fatalf("unexpected code rows: %v", codes)
	}
}
