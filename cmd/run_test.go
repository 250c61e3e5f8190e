package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/wildfire-exposure/internal/config"
)

func runTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	rasterPath, pipesPath := writeFixtures(t, dir)
	return &config.Config{
		Paths: config.PathsConfig{
			PipelineFile: pipesPath,
			FireRaster:   rasterPath,
			OutputDir:    filepath.Join(dir, "out"),
			PipelineCRS:  "EPSG:3400",
		},
		Analysis: config.AnalysisConfig{
			BufferMeters:   100,
			BufferQuadSegs: 8,
			ChunkSize:      10,
			Nodata:         65535,
			Workers:        1,
			ClipToRaster:   true,
			Normalize:      config.NormalizeMinMax,
		},
		Output: config.OutputConfig{GeoJSON: "exposure.geojson", Manifest: "run_manifest.yaml"},
		Render: config.RenderConfig{Enabled: true, File: "map.png", CRS: "EPSG:3347", WidthIn: 4, HeightIn: 3, DPI: 50},
	}
}

func TestApplyRunFlags(t *testing.T) {
	resetFlags(t, runCmd)
	c := &config.Config{}
	c.Render.Enabled = true
	c.Analysis.Workers = 1

	require.NoError(t, runCmd.Flags().Set("pipelines", "p.shp"))
	require.NoError(t, runCmd.Flags().Set("raster", "fire.tif"))
	require.NoError(t, runCmd.Flags().Set("buffer", "750"))
	require.NoError(t, runCmd.Flags().Set("chunk-size", "500"))
	require.NoError(t, runCmd.Flags().Set("no-render", "true"))
	require.NoError(t, runCmd.Flags().Set("xlsx", "summary.xlsx"))

	applyRunFlags(runCmd, c)
	assert.Equal(t, "p.shp", c.Paths.PipelineFile)
	assert.Equal(t, "fire.tif", c.Paths.FireRaster)
	assert.InDelta(t, 750.0, c.Analysis.BufferMeters, 0)
	assert.Equal(t, 500, c.Analysis.ChunkSize)
	assert.False(t, c.Render.Enabled)
	assert.Equal(t, "summary.xlsx", c.Output.SummaryXLSX)
	// Unset flags leave the config alone.
	assert.Equal(t, 1, c.Analysis.Workers)
	assert.Empty(t, c.Output.GeoPackage)
	assert.Empty(t, c.PostGIS.DatabaseURL)
}

func TestRunCmd_FailsOnValidation(t *testing.T) {
	resetFlags(t, runCmd)
	withConfig(t, &config.Config{})
	setContext(runCmd)

	err := runCmd.RunE(runCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analysis.buffer_meters must be > 0")
}

func TestRunCmd_NoRender(t *testing.T) {
	resetFlags(t, runCmd)
	c := runTestConfig(t)
	withConfig(t, c)
	setContext(runCmd)
	require.NoError(t, runCmd.Flags().Set("no-render", "true"))

	var out bytes.Buffer
	runCmd.SetOut(&out)
	defer runCmd.SetOut(nil)

	require.NoError(t, runCmd.RunE(runCmd, nil))

	var report runReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, "complete", report.Status)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, filepath.Join(c.Paths.OutputDir, "exposure.geojson"), report.Outputs["geojson"])
	assert.Equal(t, filepath.Join(c.Paths.OutputDir, "run_manifest.yaml"), report.Outputs["manifest"])
	assert.NotContains(t, report.Outputs, "map")
}

func TestRunCmd_MissingRaster(t *testing.T) {
	resetFlags(t, runCmd)
	c := runTestConfig(t)
	withConfig(t, c)
	setContext(runCmd)
	require.NoError(t, runCmd.Flags().Set("raster", filepath.Join(t.TempDir(), "missing.tif")))
	require.NoError(t, runCmd.Flags().Set("no-render", "true"))

	var out bytes.Buffer
	runCmd.SetOut(&out)
	defer runCmd.SetOut(nil)

	err := runCmd.RunE(runCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "phase load")

	var report runReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, "failed", report.Status)
}

func TestRunCmd_Flags(t *testing.T) {
	for _, name := range []string{"pipelines", "provinces", "raster", "out", "buffer", "chunk-size", "workers", "no-render", "geopackage", "xlsx", "postgis"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), "run should have --%s", name)
	}
}
