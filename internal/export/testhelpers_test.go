package export

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/wildfire-exposure/internal/crs"
	"github.com/sells-group/wildfire-exposure/internal/exposure"
)

func ptr(v float64) *float64 { return &v }

func line(coords ...float64) *geom.MultiLineString {
	mls := geom.NewMultiLineString(geom.XY)
	if err := mls.Push(geom.NewLineStringFlat(geom.XY, coords)); err != nil {
		panic(err)
	}
	return mls
}

// testDataset returns three segments in EPSG:3400: one exposed, one
// unburned, one without data.
func testDataset(t *testing.T) *exposure.Dataset {
	t.Helper()
	c, err := crs.Parse("EPSG:3400")
	require.NoError(t, err)

	buf := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}}})
	return &exposure.Dataset{
		Fields:     []string{"LICENCE", "LENGTH"},
		FieldTypes: map[string]byte{"LICENCE": 'C', "LENGTH": 'N'},
		CRS:        c,
		Records: []exposure.Record{
			{
				FeatureID: 0, Attrs: map[string]string{"LICENCE": "00123", "LENGTH": "1.5"},
				Geom:      line(500000, 6000000, 501000, 6000500), Buffer: buf,
				BurnMean:  ptr(2012.5), BurnMin: ptr(2003), BurnCount: 8, BurnNodata: 2, BurnExposed: 1, BurnNorm: ptr(1),
			},
			{
				FeatureID: 1, Attrs: map[string]string{"LICENCE": "A-7", "LENGTH": "12"},
				Geom:      line(502000, 6001000, 503000, 6001000),
				BurnMean:  ptr(2001), BurnMin: ptr(2001), BurnCount: 1, BurnNodata: 9, BurnNorm: ptr(0),
			},
			{
				FeatureID:  2, Attrs: map[string]string{"LICENCE": "B", "LENGTH": ""},
				Geom:       line(510000, 6010000, 511000, 6011000),
				BurnNodata: 4,
			},
		},
	}
}
