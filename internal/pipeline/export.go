package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"partsmatch/internal"
	"partsmatch/internal/matcher"
)

const (
	resultsSheet    = "Matches"
	statisticsSheet = "Statistics"
)

// ExportResultsToXLSX writes one row per BOM line plus a statistics sheet.
func ExportResultsToXLSX(rows []internal.MatchExportRow, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), resultsSheet); err != nil {
		return err
	}

	headers := []string{
		"line_no", "source", "reference", "qty",
		"bom_mpn", "bom_value", "parsed_value", "bom_footprint", "canonical_footprint",
		"classification", "confidence",
		"score_mpn", "score_value", "score_footprint", "score_manufacturer", "score_description",
		"part_sku", "part_mpn", "part_manufacturer",
		"unit_price", "extended_price", "warnings",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(resultsSheet, cell, h)
	}

	for i, row := range rows {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(resultsSheet, cell, value)
		}

		set(1, row.LineNo)
		set(2, row.Source)
		set(3, derefString(row.Reference))
		set(4, derefFloat(row.Qty))
		set(5, derefString(row.BOMMPN))
		set(6, derefString(row.BOMValue))
		set(7, derefString(row.ParsedValue))
		set(8, derefString(row.BOMFootprint))
		set(9, derefString(row.Canonical))
		set(10, row.Classification)
		set(11, row.Confidence)
		set(12, derefFloat(row.ScoreMPN))
		set(13, derefFloat(row.ScoreValue))
		set(14, derefFloat(row.ScoreFootprint))
		set(15, derefFloat(row.ScoreMfr))
		set(16, derefFloat(row.ScoreDesc))
		set(17, derefString(row.PartSKU))
		set(18, derefString(row.PartMPN))
		set(19, derefString(row.PartMfr))
		set(20, derefString(row.UnitPrice))
		set(21, derefString(row.ExtendedPrice))
		set(22, row.Warnings)
	}

	if _, err := f.NewSheet(statisticsSheet); err != nil {
		return err
	}
	stats := StatisticsFromRows(rows)
	total, unpriced := totalCost(rows)
	summary := [][]any{
		{"total", stats.Total},
		{"high_confidence", stats.HighConfidence},
		{"medium_confidence", stats.MediumConfidence},
		{"low_confidence", stats.LowConfidence},
		{"no_match", stats.NoMatch},
		{"average_confidence", stats.AverageConfidence},
		{"total_cost", total.StringFixed(2)},
		{"unpriced_lines", unpriced},
	}
	for i, kv := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(statisticsSheet, cell, &kv); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

// StatisticsFromRows recomputes batch statistics from stored export rows.
func StatisticsFromRows(rows []internal.MatchExportRow) matcher.Statistics {
	stats := matcher.Statistics{Total: len(rows)}
	if len(rows) == 0 {
		return stats
	}
	sum := 0.0
	for _, row := range rows {
		sum += row.Confidence
		switch matcher.Classification(row.Classification) {
		case matcher.ClassHigh:
			stats.HighConfidence++
		case matcher.ClassMedium:
			stats.MediumConfidence++
		case matcher.ClassLow:
			stats.LowConfidence++
		default:
			stats.NoMatch++
		}
	}
	stats.AverageConfidence = sum / float64(len(rows))
	return stats
}

func totalCost(rows []internal.MatchExportRow) (decimal.Decimal, int) {
	total := decimal.Zero
	unpriced := 0
	for _, row := range rows {
		if row.ExtendedPrice == nil {
			unpriced++
			continue
		}
		d, err := decimal.NewFromString(*row.ExtendedPrice)
		if err != nil {
			unpriced++
			continue
		}
		total = total.Add(d)
	}
	return total, unpriced
}

// ExportFileName names the workbook of a job.
func ExportFileName(jobID string) string {
	return fmt.Sprintf("bom_%s.xlsx", jobID)
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefFloat(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}

// ExportJob writes the stored results of jobID to outputPath and returns the
// number of rows written.
func (s *Service) ExportJob(jobID, outputPath string) (int, error) {
	rows, err := s.db.GetExportRows(jobID)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if err := ExportResultsToXLSX(rows, outputPath); err != nil {
		return 0, err
	}
	return len(rows), nil
}
