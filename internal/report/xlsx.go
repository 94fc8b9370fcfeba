// Package report renders the post-run outputs of an extraction: a summary
// workbook, an HTML overview chart and a PNG plan view. Everything here
// consumes the finished tower records; a report failure is returned to the
// caller and never alters the extraction result.
package report

import (
	"fmt"

	"gitee.com/gooffice/gooffice/spreadsheet"

	"github.com/gridline-data/corridor.report/internal/towers"
)

var summaryColumns = []string{
	"ID", "X", "Y", "Z", "Height", "Width", "Aspect", "NorthAngleDeg", "Points",
}

// Workbook writes the tower summary as an .xlsx workbook, one row per
// accepted tower.
type Workbook struct {
	Path string
}

var _ towers.SummarySink = Workbook{}

// WriteSummary builds the workbook and saves it, replacing any existing
// file at Path.
func (wb Workbook) WriteSummary(recs []towers.TowerRecord) error {
	ss := spreadsheet.New()
	sheet := ss.AddSheet()
	sheet.SetName("Towers")

	header := sheet.AddRow()
	for _, col := range summaryColumns {
		header.AddCell().SetString(col)
	}

	for _, rec := range recs {
		row := sheet.AddRow()
		row.AddCell().SetString(rec.ID)
		row.AddCell().SetNumber(rec.Box.Center.X)
		row.AddCell().SetNumber(rec.Box.Center.Y)
		row.AddCell().SetNumber(rec.Box.Center.Z)
		row.AddCell().SetNumber(rec.HeightM)
		row.AddCell().SetNumber(rec.WidthM)
		row.AddCell().SetNumber(rec.Aspect)
		row.AddCell().SetNumber(rec.NorthAngleDeg)
		row.AddCell().SetNumber(float64(rec.PointCount))
	}

	if err := ss.Validate(); err != nil {
		return fmt.Errorf("validate workbook: %w", err)
	}
	if err := ss.SaveToFile(wb.Path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}
