package export

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/wildfire-exposure/internal/exposure"
)

func TestWriteSummaryXLSX(t *testing.T) {
	ds := testDataset(t)
	summary := exposure.Summarize(ds.Records)
	path := filepath.Join(t.TempDir(), "summary.xlsx")
	require.NoError(t, WriteSummaryXLSX(path, summary, ds))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 2)

	sum := f.Sheet[SheetSummary]
	require.NotNil(t, sum)
	assert.Equal(t, "metric", sum.Rows[0].Cells[0].String())
	assert.Equal(t, "segments", sum.Rows[1].Cells[0].String())
	assert.Equal(t, "3", sum.Rows[1].Cells[1].String())
	assert.Equal(t, "segments_exposed", sum.Rows[3].Cells[0].String())
	assert.Equal(t, "1", sum.Rows[3].Cells[1].String())
	assert.Len(t, sum.Rows, 8+exposure.HistogramBins)

	seg := f.Sheet[SheetSegments]
	require.NotNil(t, seg)
	require.Len(t, seg.Rows, 4)
	header := seg.Rows[0].Cells
	assert.Equal(t, "feature_id", header[0].String())
	assert.Equal(t, "LICENCE", header[1].String())
	assert.Equal(t, "burn_norm", header[len(header)-1].String())

	first := seg.Rows[1].Cells
	assert.Equal(t, "00123", first[1].String())
	mean, err := first[3].Float()
	require.NoError(t, err)
	assert.InDelta(t, 2012.5, mean, 0)

	last := seg.Rows[3].Cells
	assert.Equal(t, "", last[3].String(), "null burn_mean stays blank")
}
