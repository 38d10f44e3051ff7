// Package export writes correction snapshots to review-friendly formats.
package export

import (
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/docfix/internal/model"
)

var xlsxHeader = []string{
	"original", "corrected", "field_kind", "usage_count",
	"human_confirms", "confidence", "first_seen", "last_confirmed",
}

// WriteXLSX writes active corrections to an XLSX workbook at path. The
// confidence column uses the given confirmation threshold.
func WriteXLSX(path string, entries []model.CorrectionEntry, confirmThreshold int) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("corrections")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range xlsxHeader {
		header.AddCell().Value = h
	}

	for _, e := range entries {
		row := sheet.AddRow()
		row.AddCell().Value = e.Original
		row.AddCell().Value = e.Corrected
		row.AddCell().Value = string(e.KindHint)
		row.AddCell().Value = strconv.Itoa(e.UsageCount)
		row.AddCell().Value = strconv.Itoa(e.HumanConfirms)
		row.AddCell().Value = strconv.FormatFloat(e.Confidence(confirmThreshold), 'f', 3, 64)
		row.AddCell().Value = e.FirstSeen.UTC().Format(time.RFC3339)
		row.AddCell().Value = e.LastConfirmed.UTC().Format(time.RFC3339)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}
