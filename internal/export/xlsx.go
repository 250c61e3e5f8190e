package export

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/wildfire-exposure/internal/exposure"
)

// Sheet names of the summary workbook.
const (
	SheetSummary  = "Summary"
	SheetSegments = "Segments"
)

// WriteSummaryXLSX writes a two-sheet workbook: run totals and histogram on
// Summary, one row per segment on Segments.
func WriteSummaryXLSX(path string, summary exposure.Summary, ds *exposure.Dataset) error {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet(SheetSummary)
	if err != nil {
		return eris.Wrap(err, "export: add summary sheet")
	}
	addRow(sheet, "metric", "value")
	addIntRow(sheet, "segments", summary.Total)
	addIntRow(sheet, "segments_with_data", summary.WithData)
	addIntRow(sheet, "segments_exposed", summary.Exposed)
	addFloatRow(sheet, "exposed_share", &summary.ExposedShare)
	addFloatRow(sheet, "burn_mean_min", summary.MeanBurnMin)
	addFloatRow(sheet, "burn_mean_max", summary.MeanBurnMax)
	addFloatRow(sheet, "burn_mean_avg", summary.MeanBurnAvg)
	for i, n := range summary.Histogram {
		lo := float64(i) / exposure.HistogramBins
		hi := float64(i+1) / exposure.HistogramBins
		addIntRow(sheet, fmt.Sprintf("burn_norm %.1f-%.1f", lo, hi), n)
	}

	seg, err := f.AddSheet(SheetSegments)
	if err != nil {
		return eris.Wrap(err, "export: add segments sheet")
	}
	header := append([]string{"feature_id"}, ds.Fields...)
	header = append(header, exposure.FieldBurnMean, exposure.FieldBurnMin, exposure.FieldBurnCount,
		exposure.FieldBurnNodata, exposure.FieldBurnExposed, exposure.FieldBurnNorm)
	addRow(seg, header...)

	for _, rec := range ds.Records {
		row := seg.AddRow()
		row.AddCell().SetInt(rec.FeatureID)
		for _, name := range ds.Fields {
			row.AddCell().SetString(rec.Attrs[name])
		}
		setFloat(row.AddCell(), rec.BurnMean)
		setFloat(row.AddCell(), rec.BurnMin)
		row.AddCell().SetInt(rec.BurnCount)
		row.AddCell().SetInt(rec.BurnNodata)
		row.AddCell().SetInt(rec.BurnExposed)
		setFloat(row.AddCell(), rec.BurnNorm)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	zap.L().Info("export: wrote summary workbook", zap.String("path", path), zap.Int("segments", len(ds.Records)))
	return nil
}

func addRow(sheet *xlsx.Sheet, cells ...string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}

func addIntRow(sheet *xlsx.Sheet, name string, v int) {
	row := sheet.AddRow()
	row.AddCell().SetString(name)
	row.AddCell().SetInt(v)
}

func addFloatRow(sheet *xlsx.Sheet, name string, v *float64) {
	row := sheet.AddRow()
	row.AddCell().SetString(name)
	setFloat(row.AddCell(), v)
}

// setFloat leaves the cell blank for null values.
func setFloat(c *xlsx.Cell, v *float64) {
	if v != nil {
		c.SetFloat(*v)
	}
}
