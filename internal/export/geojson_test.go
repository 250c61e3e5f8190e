package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func TestWriteGeoJSON(t *testing.T) {
	ds := testDataset(t)
	path := filepath.Join(t.TempDir(), "out.geojson")
	require.NoError(t, WriteGeoJSON(path, ds, GeoJSONOptions{}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc struct {
		Type string `json:"type"`
		CRS  struct {
			Properties map[string]string `json:"properties"`
		} `json:"crs"`
		Features []struct {
			ID         string          `json:"id"`
			Geometry   json.RawMessage `json:"geometry"`
			Properties map[string]any  `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))

	assert.Equal(t, "FeatureCollection", doc.Type)
	assert.Equal(t, "urn:ogc:def:crs:EPSG::3400", doc.CRS.Properties["name"])
	require.Len(t, doc.Features, 3)

	p0 := doc.Features[0].Properties
	assert.Equal(t, "0", doc.Features[0].ID)
	assert.Equal(t, "00123", p0["LICENCE"], "text fields keep leading zeros")
	assert.InDelta(t, 1.5, p0["LENGTH"], 0)
	assert.InDelta(t, 2012.5, p0["burn_mean"], 0)
	assert.InDelta(t, 1.0, p0["burn_exposed"], 0)
	assert.InDelta(t, 1.0, p0["burn_norm"], 0)
	assert.NotContains(t, p0, FieldBuffer)

	p2 := doc.Features[2].Properties
	assert.Nil(t, p2["burn_mean"])
	assert.Nil(t, p2["burn_norm"])
	assert.Nil(t, p2["LENGTH"])
	assert.InDelta(t, 0.0, p2["burn_exposed"], 0)
	assert.Contains(t, string(doc.Features[2].Geometry), "MultiLineString")
}

func TestWriteGeoJSON_KeepBuffer(t *testing.T) {
	ds := testDataset(t)
	path := filepath.Join(t.TempDir(), "out.geojson")
	require.NoError(t, WriteGeoJSON(path, ds, GeoJSONOptions{KeepBuffer: true}))

	back, err := ReadGeoJSON(path)
	require.NoError(t, err)
	require.NotNil(t, back.Records[0].Buffer)
	_, ok := back.Records[0].Buffer.(*geom.Polygon)
	assert.True(t, ok)
	assert.Nil(t, back.Records[1].Buffer)
}

func TestReadGeoJSON_RoundTrip(t *testing.T) {
	ds := testDataset(t)
	path := filepath.Join(t.TempDir(), "out.geojson")
	require.NoError(t, WriteGeoJSON(path, ds, GeoJSONOptions{}))

	back, err := ReadGeoJSON(path)
	require.NoError(t, err)
	require.NotNil(t, back.CRS)
	assert.Equal(t, 3400, back.CRS.EPSG())
	assert.Equal(t, []string{"LENGTH", "LICENCE"}, back.Fields)
	require.Len(t, back.Records, 3)

	r0 := back.Records[0]
	assert.Equal(t, 0, r0.FeatureID)
	assert.Equal(t, "00123", r0.Attrs["LICENCE"])
	require.NotNil(t, r0.BurnMean)
	assert.InDelta(t, 2012.5, *r0.BurnMean, 0)
	assert.Equal(t, 1, r0.BurnExposed)
	assert.Equal(t, 8, r0.BurnCount)
	assert.Equal(t, 2, r0.BurnNodata)
	assert.Equal(t, ds.Records[0].Geom.FlatCoords(), r0.Geom.FlatCoords())

	r2 := back.Records[2]
	assert.Nil(t, r2.BurnMean)
	assert.Nil(t, r2.BurnNorm)
	assert.Equal(t, 0, r2.BurnExposed)
}

func TestReadGeoJSON_Errors(t *testing.T) {
	_, err := ReadGeoJSON(filepath.Join(t.TempDir(), "missing.geojson"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.geojson")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err = ReadGeoJSON(path)
	assert.Error(t, err)
}

func TestAttrValue(t *testing.T) {
	tests := []struct {
		typ  byte
		in   string
		want any
	}{
		{'C', "00123", "00123"},
		{'N', "42", int64(42)},
		{'N', "4.25", 4.25},
		{'F', "", nil},
		{'N', "n/a", nil},
		{'L', "T", true},
		{'L', "f", false},
		{'L', "?", nil},
		{'D', "20230401", "20230401"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, attrValue(tt.typ, tt.in), "%c %q", tt.typ, tt.in)
	}
}
