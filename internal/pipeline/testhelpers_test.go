package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/wildfire-exposure/internal/config"
	"github.com/sells-group/wildfire-exposure/internal/raster"
)

// Fixture raster: 20x20 cells of 100 m with its top-left corner at
// (500000, 6002000) in EPSG:3400. The west half holds 2000+row, the east
// half is nodata.
const (
	fixtureX0     = 500000.0
	fixtureY0     = 6002000.0
	fixtureCell   = 100.0
	fixtureSize   = 20
	fixtureNodata = 65535.0
)

func writeFireRaster(t *testing.T, dir string, epsg int) string {
	t.Helper()
	vals := make([]float64, fixtureSize*fixtureSize)
	for r := 0; r < fixtureSize; r++ {
		for c := 0; c < fixtureSize; c++ {
			v := fixtureNodata
			if c < fixtureSize/2 {
				v = 2000 + float64(r)
			}
			vals[r*fixtureSize+c] = v
		}
	}
	nd := fixtureNodata
	path := filepath.Join(dir, "fire.tif")
	require.NoError(t, raster.WriteGeoTIFF(path, fixtureSize, fixtureSize, vals, raster.WriteOptions{
		Transform: raster.GeoTransform{OriginX: fixtureX0, OriginY: fixtureY0, PixelWidth: fixtureCell, PixelHeight: fixtureCell},
		EPSG:      epsg,
		Nodata:    &nd,
		DataType:  raster.Uint16,
	}))
	return path
}

type segment struct {
	licence   string
	x0, x1, y float64
}

// fixtureSegments are horizontal lines relative to the raster origin:
// one over burned cells, one over nodata, one off the raster and one
// straddling the burn edge.
var fixtureSegments = []segment{
	{"00101", 250, 650, -950},
	{"00102", 1300, 1700, -950},
	{"00103", 100000, 100500, -950},
	{"00104", 720, 1120, -1450},
}

// writePipelines writes fixtureSegments shifted by dx as a POLYLINE
// shapefile without a .prj.
func writePipelines(t *testing.T, dir string, dx float64) string {
	t.Helper()
	path := filepath.Join(dir, "pipes.shp")
	w, err := shp.Create(path, shp.POLYLINE)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("LICENCE", 10),
		shp.StringField("SUBSTANCE", 20),
	}))
	for _, s := range fixtureSegments {
		y := fixtureY0 + s.y
		line := shp.NewPolyLine([][]shp.Point{{
			{X: fixtureX0 + s.x0 + dx, Y: y},
			{X: fixtureX0 + s.x1 + dx, Y: y},
		}})
		n := w.Write(line)
		require.NoError(t, w.WriteAttribute(int(n), 0, s.licence))
		require.NoError(t, w.WriteAttribute(int(n), 1, "Natural Gas"))
	}
	w.Close()
	return path
}

// writeProvinces writes one square province around the raster with the
// given PRUID.
func writeProvinces(t *testing.T, dir, pruid string) string {
	t.Helper()
	path := filepath.Join(dir, "prov.shp")
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("PRUID", 2)}))

	x0, y0, size := fixtureX0-1000, fixtureY0-3000, 4000.0
	ring := []shp.Point{
		{X: x0, Y: y0},
		{X: x0, Y: y0 + size},
		{X: x0 + size, Y: y0 + size},
		{X: x0 + size, Y: y0},
		{X: x0, Y: y0},
	}
	poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{ring}))
	n := w.Write(&poly)
	require.NoError(t, w.WriteAttribute(int(n), 0, pruid))
	w.Close()
	return path
}

// testConfig returns a run config over fresh fixtures in a temp dir.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Paths: config.PathsConfig{
			DataDir:      dir,
			PipelineFile: writePipelines(t, dir, 0),
			ProvinceFile: writeProvinces(t, dir, "48"),
			FireRaster:   writeFireRaster(t, dir, 3400),
			OutputDir:    filepath.Join(dir, "out"),
			PipelineCRS:  "EPSG:3400",
			ProvinceCRS:  "EPSG:3400",
		},
		Analysis: config.AnalysisConfig{
			BufferMeters:   150,
			BufferQuadSegs: 8,
			ChunkSize:      2,
			Nodata:         fixtureNodata,
			Workers:        2,
			ClipToRaster:   true,
			Normalize:      config.NormalizeMinMax,
		},
		Output: config.OutputConfig{
			GeoJSON:     "exposure.geojson",
			GeoPackage:  "exposure.gpkg",
			SummaryXLSX: "summary.xlsx",
			Manifest:    "run_manifest.yaml",
		},
		Render: config.RenderConfig{
			Enabled:       true,
			File:          "map.png",
			CRS:           "EPSG:3347",
			WidthIn:       4,
			HeightIn:      3,
			DPI:           50,
			ProvinceField: "PRUID",
			ProvinceValue: "48",
		},
		PostGIS: config.PostGISConfig{Schema: "public", Table: "pipeline_wildfire_exposure", Mode: "replace"},
		Metrics: config.MetricsConfig{Textfile: filepath.Join(dir, "out", "wildfire_exposure.prom")},
	}
}

func requireFile(t *testing.T, path string) {
	t.Helper()
	fi, err := os.Stat(path)
	require.NoError(t, err, path)
	require.Positive(t, fi.Size(), path)
}

func recordByLicence(t *testing.T, res *Result, licence string) int {
	t.Helper()
	for i, rec := range res.Dataset.Records {
		if strings.TrimSpace(rec.Attrs["LICENCE"]) == licence {
			return i
		}
	}
	t.Fatalf("no record with LICENCE %s", licence)
	return -1
}
