package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/wildfire-exposure/internal/export"
	"github.com/sells-group/wildfire-exposure/internal/pipeline"
)

var (
	renderInput     string
	renderOutput    string
	renderProvinces string
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render the exposure map from an existing exposure GeoJSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if renderProvinces != "" {
			cfg.Paths.ProvinceFile = renderProvinces
		}
		if err := cfg.Validate("render"); err != nil {
			return err
		}

		in := renderInput
		if in == "" {
			in = lastGeoJSON()
		}
		out := renderOutput
		if out == "" {
			out = filepath.Join(cfg.Paths.OutputDir, cfg.Render.File)
		}

		ds, err := export.ReadGeoJSON(in)
		if err != nil {
			return err
		}
		if err := pipeline.New(cfg).Render(ctx, ds, out); err != nil {
			return err
		}
		zap.L().Info("map rendered", zap.String("input", in), zap.String("map", out))
		_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
		return err
	},
}

// lastGeoJSON is the GeoJSON named by the last run's manifest, falling
// back to the configured output path.
func lastGeoJSON() string {
	in := filepath.Join(cfg.Paths.OutputDir, cfg.Output.GeoJSON)
	m, err := export.ReadManifest(filepath.Join(cfg.Paths.OutputDir, cfg.Output.Manifest))
	if err != nil {
		return in
	}
	if p, ok := m.Outputs["geojson"]; ok && p != "" {
		return p
	}
	return in
}

func init() {
	renderCmd.Flags().StringVar(&renderInput, "input", "", "exposure GeoJSON (default: the last run's manifest, then output_dir/output.geojson)")
	renderCmd.Flags().StringVar(&renderOutput, "output", "", "PNG path (default: output_dir/render.file)")
	renderCmd.Flags().StringVar(&renderProvinces, "provinces", "", "province boundary shapefile (overrides paths.province_file)")
	rootCmd.AddCommand(renderCmd)
}
