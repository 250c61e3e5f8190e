package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Normalization modes for burn exposure.
const (
	NormalizeMinMax = "minmax"
	NormalizeMax    = "max"
)

// Config holds the full application configuration.
type Config struct {
	Paths    PathsConfig    `yaml:"paths" mapstructure:"paths"`
	Analysis AnalysisConfig `yaml:"analysis" mapstructure:"analysis"`
	Output   OutputConfig   `yaml:"output" mapstructure:"output"`
	Render   RenderConfig   `yaml:"render" mapstructure:"render"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	PostGIS  PostGISConfig  `yaml:"postgis" mapstructure:"postgis"`
	Metrics  MetricsConfig  `yaml:"metrics" mapstructure:"metrics"`
	Alerts   AlertsConfig   `yaml:"alerts" mapstructure:"alerts"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// PathsConfig locates the input datasets and the output directory.
type PathsConfig struct {
	DataDir      string `yaml:"data_dir" mapstructure:"data_dir"`
	PipelineFile string `yaml:"pipeline_file" mapstructure:"pipeline_file"`
	ProvinceFile string `yaml:"province_file" mapstructure:"province_file"`
	FireRaster   string `yaml:"fire_raster" mapstructure:"fire_raster"`
	OutputDir    string `yaml:"output_dir" mapstructure:"output_dir"`
	// PipelineCRS is used when the pipeline shapefile has no .prj sidecar.
	PipelineCRS string `yaml:"pipeline_crs" mapstructure:"pipeline_crs"`
	// ProvinceCRS is used when the province shapefile has no .prj sidecar.
	ProvinceCRS string `yaml:"province_crs" mapstructure:"province_crs"`
}

// AnalysisConfig controls buffering and zonal statistics.
type AnalysisConfig struct {
	BufferMeters   float64 `yaml:"buffer_meters" mapstructure:"buffer_meters"`
	BufferQuadSegs int     `yaml:"buffer_quad_segs" mapstructure:"buffer_quad_segs"`
	ChunkSize      int     `yaml:"chunk_size" mapstructure:"chunk_size"`
	Nodata         float64 `yaml:"nodata" mapstructure:"nodata"`
	Workers        int     `yaml:"workers" mapstructure:"workers"`
	ClipToRaster   bool    `yaml:"clip_to_raster" mapstructure:"clip_to_raster"`
	AllTouched     bool    `yaml:"all_touched" mapstructure:"all_touched"`
	Normalize      string  `yaml:"normalize" mapstructure:"normalize"`
	// RasterCRS overrides the CRS read from the GeoTIFF GeoKeys.
	RasterCRS string `yaml:"raster_crs" mapstructure:"raster_crs"`
}

// OutputConfig names the files written into Paths.OutputDir.
type OutputConfig struct {
	GeoJSON     string `yaml:"geojson" mapstructure:"geojson"`
	GeoPackage  string `yaml:"geopackage" mapstructure:"geopackage"`
	SummaryXLSX string `yaml:"summary_xlsx" mapstructure:"summary_xlsx"`
	Manifest    string `yaml:"manifest" mapstructure:"manifest"`
	KeepBuffer  bool   `yaml:"keep_buffer" mapstructure:"keep_buffer"`
}

// RenderConfig configures the exposure map.
type RenderConfig struct {
	Enabled        bool    `yaml:"enabled" mapstructure:"enabled"`
	File           string  `yaml:"file" mapstructure:"file"`
	CRS            string  `yaml:"crs" mapstructure:"crs"`
	WidthIn        float64 `yaml:"width_in" mapstructure:"width_in"`
	HeightIn       float64 `yaml:"height_in" mapstructure:"height_in"`
	DPI            float64 `yaml:"dpi" mapstructure:"dpi"`
	ProvinceField  string  `yaml:"province_field" mapstructure:"province_field"`
	ProvinceValue  string  `yaml:"province_value" mapstructure:"province_value"`
	LineWidth      float64 `yaml:"line_width" mapstructure:"line_width"`
	Title          string  `yaml:"title" mapstructure:"title"`
	ColorbarLabel  string  `yaml:"colorbar_label" mapstructure:"colorbar_label"`
	ScaleBarMeters float64 `yaml:"scale_bar_meters" mapstructure:"scale_bar_meters"`
	ScaleBarLabel  string  `yaml:"scale_bar_label" mapstructure:"scale_bar_label"`
}

// FetchConfig lists the remote datasets the fetch command downloads.
type FetchConfig struct {
	TimeoutSecs int             `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int             `yaml:"max_retries" mapstructure:"max_retries"`
	RatePerSec  float64         `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Datasets    []DatasetConfig `yaml:"datasets" mapstructure:"datasets"`
}

// DatasetConfig is a single downloadable input.
type DatasetConfig struct {
	Name string `yaml:"name" mapstructure:"name"`
	URL  string `yaml:"url" mapstructure:"url"`
	File string `yaml:"file" mapstructure:"file"`
}

// PostGISConfig configures the optional PostGIS results sink.
type PostGISConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Schema      string `yaml:"schema" mapstructure:"schema"`
	Table       string `yaml:"table" mapstructure:"table"`
	// Mode is "replace" (drop and reload) or "upsert" (keyed on feature_id).
	Mode     string `yaml:"mode" mapstructure:"mode"`
	MaxConns int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// MetricsConfig configures the Prometheus textfile output.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

// AlertsConfig configures the end-of-run webhook alerts. No webhook URL
// disables alerting.
type AlertsConfig struct {
	WebhookURL        string `yaml:"webhook_url" mapstructure:"webhook_url"`
	MaxBufferFailures int    `yaml:"max_buffer_failures" mapstructure:"max_buffer_failures"`
	// ExposedShareThreshold alerts when a larger share of segments is
	// exposed; 0 disables the check.
	ExposedShareThreshold float64 `yaml:"exposed_share_threshold" mapstructure:"exposed_share_threshold"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// LoadFile reads configuration from path and the environment. An empty
// path falls back to ./config.yaml when present; a named file must exist.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("WILDFIRE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("paths.data_dir", "data")
	v.SetDefault("paths.output_dir", "outputs")
	v.SetDefault("paths.pipeline_file", "data/Pipelines_NAD83_10TM_AEPForest.shp")
	v.SetDefault("paths.province_file", "data/lpr_000b21a_e.shp")
	v.SetDefault("paths.fire_raster", "data/NBAC_MRB_1972to2024_30m.tif")
	v.SetDefault("paths.pipeline_crs", "EPSG:3400")
	v.SetDefault("paths.province_crs", "EPSG:3347")
	v.SetDefault("analysis.buffer_meters", 500.0)
	v.SetDefault("analysis.buffer_quad_segs", 8)
	v.SetDefault("analysis.chunk_size", 10000)
	v.SetDefault("analysis.nodata", 65535.0)
	v.SetDefault("analysis.workers", 1)
	v.SetDefault("analysis.clip_to_raster", true)
	v.SetDefault("analysis.all_touched", false)
	v.SetDefault("analysis.normalize", NormalizeMinMax)
	v.SetDefault("output.geojson", "pipeline_wildfire_exposure_v02.geojson")
	v.SetDefault("output.manifest", "run_manifest.yaml")
	v.SetDefault("render.enabled", true)
	v.SetDefault("render.file", "wildfire_pipeline_map_lcc.png")
	v.SetDefault("render.crs", "EPSG:3347")
	v.SetDefault("render.width_in", 14.0)
	v.SetDefault("render.height_in", 10.0)
	v.SetDefault("render.dpi", 300.0)
	v.SetDefault("render.province_field", "PRUID")
	v.SetDefault("render.province_value", "48")
	v.SetDefault("render.line_width", 0.75)
	v.SetDefault("render.title", "Alberta Pipelines by Wildfire Exposure (2001–2023, LCC Projection)")
	v.SetDefault("render.colorbar_label", "Normalized Burn Exposure")
	v.SetDefault("render.scale_bar_meters", 100000.0)
	v.SetDefault("render.scale_bar_label", "100 km")
	v.SetDefault("fetch.timeout_secs", 600)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.rate_per_sec", 2.0)
	v.SetDefault("postgis.schema", "public")
	v.SetDefault("postgis.table", "pipeline_wildfire_exposure")
	v.SetDefault("postgis.mode", "replace")
	v.SetDefault("postgis.max_conns", 4)
	v.SetDefault("alerts.max_buffer_failures", 0)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the configuration for the given command mode
// ("run", "render", "fetch"). All problems are reported together.
func (c *Config) Validate(mode string) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch mode {
	case "run":
		if c.Analysis.BufferMeters <= 0 {
			add("analysis.buffer_meters must be > 0, got %v", c.Analysis.BufferMeters)
		}
		if c.Analysis.BufferQuadSegs <= 0 {
			add("analysis.buffer_quad_segs must be > 0, got %d", c.Analysis.BufferQuadSegs)
		}
		if c.Analysis.ChunkSize <= 0 {
			add("analysis.chunk_size must be > 0, got %d", c.Analysis.ChunkSize)
		}
		if c.Analysis.Workers < 1 || c.Analysis.Workers > 64 {
			add("analysis.workers must be between 1 and 64, got %d", c.Analysis.Workers)
		}
		switch c.Analysis.Normalize {
		case NormalizeMinMax, NormalizeMax:
		default:
			add("analysis.normalize must be %q or %q, got %q", NormalizeMinMax, NormalizeMax, c.Analysis.Normalize)
		}
		if c.Paths.PipelineFile == "" {
			add("paths.pipeline_file is required")
		}
		if c.Paths.FireRaster == "" {
			add("paths.fire_raster is required")
		}
		if c.Paths.OutputDir == "" {
			add("paths.output_dir is required")
		}
		if c.Output.GeoJSON == "" {
			add("output.geojson is required")
		}
		if c.Render.Enabled {
			c.validateRender(add)
		}
		if c.PostGIS.DatabaseURL != "" && c.PostGIS.Mode != "replace" && c.PostGIS.Mode != "upsert" {
			add("postgis.mode must be \"replace\" or \"upsert\", got %q", c.PostGIS.Mode)
		}
	case "render":
		if c.Paths.OutputDir == "" {
			add("paths.output_dir is required")
		}
		c.validateRender(add)
	case "fetch":
		if c.Paths.DataDir == "" {
			add("paths.data_dir is required")
		}
		for i, ds := range c.Fetch.Datasets {
			if ds.URL == "" {
				add("fetch.datasets[%d].url is required", i)
			}
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateRender(add func(string, ...any)) {
	if c.Paths.ProvinceFile == "" {
		add("paths.province_file is required when rendering")
	}
	if c.Render.WidthIn <= 0 || c.Render.HeightIn <= 0 || c.Render.DPI <= 0 {
		add("render.width_in, render.height_in and render.dpi must be > 0")
	}
	if c.Render.CRS == "" {
		add("render.crs is required")
	}
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
