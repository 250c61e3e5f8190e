package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/wildfire-exposure/internal/config"
	"github.com/sells-group/wildfire-exposure/internal/raster"
)

// writeFixtures writes an 8x8 burn raster of 100 m cells in EPSG:3400 and
// a two-segment pipeline shapefile crossing it. The north half of the
// raster burned in 2010, the south half is nodata.
func writeFixtures(t *testing.T, dir string) (rasterPath, pipesPath string) {
	t.Helper()
	const size = 8
	vals := make([]float64, size*size)
	for i := range vals {
		if i/size < size/2 {
			vals[i] = 2010
		} else {
			vals[i] = 65535
		}
	}
	nd := 65535.0
	rasterPath = filepath.Join(dir, "fire.tif")
	require.NoError(t, raster.WriteGeoTIFF(rasterPath, size, size, vals, raster.WriteOptions{
		Transform: raster.GeoTransform{OriginX: 500000, OriginY: 6001000, PixelWidth: 100, PixelHeight: 100},
		EPSG:      3400,
		Nodata:    &nd,
		DataType:  raster.Uint16,
	}))

	pipesPath = filepath.Join(dir, "pipes.shp")
	w, err := shp.Create(pipesPath, shp.POLYLINE)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("LICENCE", 10)}))
	for i, y := range []float64{6000750, 6000250} {
		line := shp.NewPolyLine([][]shp.Point{{{X: 500150, Y: y}, {X: 500650, Y: y}}})
		n := w.Write(line)
		require.NoError(t, w.WriteAttribute(int(n), 0, []string{"A1", "A2"}[i]))
	}
	w.Close()
	return rasterPath, pipesPath
}

// withConfig swaps the package config for the duration of a test.
func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	old := cfg
	cfg = c
	t.Cleanup(func() { cfg = old })
}

// resetFlags clears the Changed marks and values set by a test.
func resetFlags(t *testing.T, cmd *cobra.Command) {
	t.Helper()
	t.Cleanup(func() {
		for _, name := range []string{"pipelines", "provinces", "raster", "out", "buffer", "chunk-size", "workers", "no-render", "geopackage", "xlsx", "postgis", "input", "output", "format", "crs", "concurrency"} {
			if f := cmd.Flags().Lookup(name); f != nil {
				_ = f.Value.Set(f.DefValue)
				f.Changed = false
			}
		}
	})
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(orig) })
}

func setContext(cmd *cobra.Command) {
	cmd.SetContext(context.Background())
}
