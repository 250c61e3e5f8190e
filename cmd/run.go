package main

import (
	"encoding/json"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/wildfire-exposure/internal/config"
	"github.com/sells-group/wildfire-exposure/internal/db"
	"github.com/sells-group/wildfire-exposure/internal/monitoring"
	"github.com/sells-group/wildfire-exposure/internal/pipeline"
)

var (
	runPipelines  string
	runProvinces  string
	runRaster     string
	runOut        string
	runBuffer     float64
	runChunkSize  int
	runWorkers    int
	runNoRender   bool
	runGeoPackage string
	runXLSX       string
	runPostGIS    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full exposure pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyRunFlags(cmd, cfg)
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		opts := []pipeline.Option{pipeline.WithMetrics(monitoring.NewMetrics())}
		if cfg.Alerts.WebhookURL != "" {
			opts = append(opts, pipeline.WithAlerter(monitoring.NewAlerter(cfg.Alerts)))
		}
		if cfg.PostGIS.DatabaseURL != "" {
			pool, err := db.Connect(ctx, cfg.PostGIS.DatabaseURL, cfg.PostGIS.MaxConns)
			if err != nil {
				return eris.Wrap(err, "run: connect postgis")
			}
			defer pool.Close()
			opts = append(opts, pipeline.WithPool(pool))
		}

		res, err := pipeline.New(cfg, opts...).Run(ctx)
		if res != nil {
			zap.L().Info("exposure run finished",
				zap.String("run_id", res.RunID),
				zap.String("status", string(res.Status)),
				zap.Int("segments", res.Summary.Total),
				zap.Int("exposed", res.Summary.Exposed),
			)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(runReport{
				RunID:   res.RunID,
				Status:  string(res.Status),
				Outputs: res.Outputs,
			}); encErr != nil && err == nil {
				err = encErr
			}
		}
		return err
	},
}

type runReport struct {
	RunID   string            `json:"run_id"`
	Status  string            `json:"status"`
	Outputs map[string]string `json:"outputs"`
}

// applyRunFlags overrides c with the flags set on the command line.
func applyRunFlags(cmd *cobra.Command, c *config.Config) {
	f := cmd.Flags()
	if f.Changed("pipelines") {
		c.Paths.PipelineFile = runPipelines
	}
	if f.Changed("provinces") {
		c.Paths.ProvinceFile = runProvinces
	}
	if f.Changed("raster") {
		c.Paths.FireRaster = runRaster
	}
	if f.Changed("out") {
		c.Paths.OutputDir = runOut
	}
	if f.Changed("buffer") {
		c.Analysis.BufferMeters = runBuffer
	}
	if f.Changed("chunk-size") {
		c.Analysis.ChunkSize = runChunkSize
	}
	if f.Changed("workers") {
		c.Analysis.Workers = runWorkers
	}
	if runNoRender {
		c.Render.Enabled = false
	}
	if f.Changed("geopackage") {
		c.Output.GeoPackage = runGeoPackage
	}
	if f.Changed("xlsx") {
		c.Output.SummaryXLSX = runXLSX
	}
	if f.Changed("postgis") {
		c.PostGIS.DatabaseURL = runPostGIS
	}
}

func init() {
	runCmd.Flags().StringVar(&runPipelines, "pipelines", "", "pipeline shapefile (overrides paths.pipeline_file)")
	runCmd.Flags().StringVar(&runProvinces, "provinces", "", "province boundary shapefile (overrides paths.province_file)")
	runCmd.Flags().StringVar(&runRaster, "raster", "", "burn raster GeoTIFF (overrides paths.fire_raster)")
	runCmd.Flags().StringVar(&runOut, "out", "", "output directory (overrides paths.output_dir)")
	runCmd.Flags().Float64Var(&runBuffer, "buffer", 0, "buffer distance in metres")
	runCmd.Flags().IntVar(&runChunkSize, "chunk-size", 0, "segments per zonal statistics chunk")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "chunks processed concurrently")
	runCmd.Flags().BoolVar(&runNoRender, "no-render", false, "skip the map")
	runCmd.Flags().StringVar(&runGeoPackage, "geopackage", "", "also write a GeoPackage with this file name")
	runCmd.Flags().StringVar(&runXLSX, "xlsx", "", "also write a summary workbook with this file name")
	runCmd.Flags().StringVar(&runPostGIS, "postgis", "", "PostgreSQL URL to load results into")
	rootCmd.AddCommand(runCmd)
}
