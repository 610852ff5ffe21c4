// Package export flattens processed items into one row per identifier.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/Veraticus/shotscan/internal/model"
	"github.com/Veraticus/shotscan/internal/service"
)

// Header is the CSV header row.
//
//nolint:gochecknoglobals // Fixed column layout
var Header = []string{"item_id", "identifier", "created_at", "category", "pattern"}

// Rows returns one row per identifier occurrence, newest items first.
// Ties are broken by item ID and identifiers keep their detection order.
// Items without identifiers produce no rows.
func Rows(items []model.ProcessedItem) []model.ExportRow {
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b model.ProcessedItem) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ItemID, b.ItemID)
	})

	var rows []model.ExportRow
	for _, item := range sorted {
		for _, id := range item.Identifiers {
			rows = append(rows, model.ExportRow{
				CreatedAt:   item.CreatedAt,
				ItemID:      item.ItemID,
				Value:       id.Value,
				Category:    item.Category,
				PatternName: id.PatternName,
			})
		}
	}
	return rows
}

// Record renders a row in Header column order.
func Record(row model.ExportRow) []string {
	return []string{
		row.ItemID,
		row.Value,
		row.CreatedAt.UTC().Format(time.RFC3339),
		row.Category,
		row.PatternName,
	}
}

// WriteCSV writes the header followed by rows.
func WriteCSV(w io.Writer, rows []model.ExportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write(Record(row)); err != nil {
			return fmt.Errorf("failed to write csv row for %s: %w", row.ItemID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}

// Summarize aggregates items by category and by the pattern that found each
// identifier. Identifiers without a pattern name are counted under "".
func Summarize(items []model.ProcessedItem) *service.ReportSummary {
	summary := &service.ReportSummary{
		ByCategory: make(map[string]service.CategorySummary),
		ByPattern:  make(map[string]int),
	}

	for _, item := range items {
		if summary.TotalItems == 0 || item.CreatedAt.Before(summary.DateRange.Start) {
			summary.DateRange.Start = item.CreatedAt
		}
		if item.CreatedAt.After(summary.DateRange.End) {
			summary.DateRange.End = item.CreatedAt
		}
		summary.TotalItems++
		summary.TotalIdentifiers += len(item.Identifiers)

		cat := summary.ByCategory[item.Category]
		cat.Items++
		cat.Identifiers += len(item.Identifiers)
		summary.ByCategory[item.Category] = cat

		for _, id := range item.Identifiers {
			summary.ByPattern[id.PatternName]++
		}
	}
	return summary
}
