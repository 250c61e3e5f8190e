package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/wildfire-exposure/internal/config"
	"github.com/sells-group/wildfire-exposure/internal/raster"
)

func TestRasterInfoCmd(t *testing.T) {
	rasterPath, _ := writeFixtures(t, t.TempDir())

	tests := []struct {
		format string
		decode func([]byte, any) error
	}{
		{"yaml", yaml.Unmarshal},
		{"json", json.Unmarshal},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			resetFlags(t, rasterInfoCmd)
			withConfig(t, &config.Config{})
			require.NoError(t, rasterInfoCmd.Flags().Set("format", tt.format))

			var out bytes.Buffer
			rasterInfoCmd.SetOut(&out)
			defer rasterInfoCmd.SetOut(nil)

			require.NoError(t, rasterInfoCmd.RunE(rasterInfoCmd, []string{rasterPath}))

			var info raster.Info
			require.NoError(t, tt.decode(out.Bytes(), &info))
			assert.Equal(t, 8, info.Width)
			assert.Equal(t, 8, info.Height)
			assert.Equal(t, "UInt16", info.DataType)
			assert.Equal(t, "EPSG:3400", info.CRS)
			require.NotNil(t, info.Nodata)
			assert.InDelta(t, 65535.0, *info.Nodata, 0)
		})
	}
}

func TestRasterInfoCmd_DefaultsToConfiguredRaster(t *testing.T) {
	rasterPath, _ := writeFixtures(t, t.TempDir())
	resetFlags(t, rasterInfoCmd)
	withConfig(t, &config.Config{Paths: config.PathsConfig{FireRaster: rasterPath}})

	var out bytes.Buffer
	rasterInfoCmd.SetOut(&out)
	defer rasterInfoCmd.SetOut(nil)

	require.NoError(t, rasterInfoCmd.RunE(rasterInfoCmd, nil))
	assert.Contains(t, out.String(), "crs: EPSG:3400")
}

func TestRasterInfoCmd_BadFormat(t *testing.T) {
	rasterPath, _ := writeFixtures(t, t.TempDir())
	resetFlags(t, rasterInfoCmd)
	withConfig(t, &config.Config{})
	require.NoError(t, rasterInfoCmd.Flags().Set("format", "toml"))

	err := rasterInfoCmd.RunE(rasterInfoCmd, []string{rasterPath})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}
