package main

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/wildfire-exposure/internal/raster"
)

var (
	rasterInfoFormat string
	rasterInfoCRS    string
)

var rasterInfoCmd = &cobra.Command{
	Use:   "raster-info [path]",
	Short: "Print burn raster metadata",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Paths.FireRaster
		if len(args) == 1 {
			path = args[0]
		}
		crsOverride := rasterInfoCRS
		if crsOverride == "" {
			crsOverride = cfg.Analysis.RasterCRS
		}

		r, err := raster.Open(path, raster.Options{CRS: crsOverride})
		if err != nil {
			return err
		}
		defer r.Close() //nolint:errcheck

		info := r.Info()
		w := cmd.OutOrStdout()
		switch rasterInfoFormat {
		case "yaml":
			enc := yaml.NewEncoder(w)
			enc.SetIndent(2)
			if err := enc.Encode(info); err != nil {
				return eris.Wrap(err, "raster-info: encode yaml")
			}
			return enc.Close()
		case "json":
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		default:
			return eris.Errorf("raster-info: unknown format %q (want yaml or json)", rasterInfoFormat)
		}
	},
}

func init() {
	rasterInfoCmd.Flags().StringVar(&rasterInfoFormat, "format", "yaml", "output format: yaml or json")
	rasterInfoCmd.Flags().StringVar(&rasterInfoCRS, "crs", "", "CRS override when the GeoTIFF has no GeoKeys")
	rootCmd.AddCommand(rasterInfoCmd)
}
