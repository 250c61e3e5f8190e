// Package pipeline runs the wildfire exposure batch: load the pipeline
// segments and the burn raster, buffer each segment, compute zonal burn
// statistics, normalize, export and render.
package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/wildfire-exposure/internal/config"
	"github.com/sells-group/wildfire-exposure/internal/crs"
	"github.com/sells-group/wildfire-exposure/internal/db"
	"github.com/sells-group/wildfire-exposure/internal/export"
	"github.com/sells-group/wildfire-exposure/internal/exposure"
	"github.com/sells-group/wildfire-exposure/internal/model"
	"github.com/sells-group/wildfire-exposure/internal/monitoring"
	"github.com/sells-group/wildfire-exposure/internal/raster"
	"github.com/sells-group/wildfire-exposure/internal/vector"
)

// Phase names in run order.
const (
	PhaseLoad      = "load"
	PhaseReproject = "reproject"
	PhaseClip      = "clip"
	PhaseBuffer    = "buffer"
	PhaseZonal     = "zonal"
	PhaseNormalize = "normalize"
	PhaseExport    = "export"
	PhaseRender    = "render"
)

var (
	// ErrGeographicCRS is returned when the raster CRS is in degrees, which
	// makes a buffer distance in metres meaningless.
	ErrGeographicCRS = errors.New("pipeline: raster CRS is geographic; buffer distance needs a projected CRS")
	// ErrNoSegments is returned when no segment overlaps the raster.
	ErrNoSegments = errors.New("pipeline: no pipeline segments intersect the raster")

	errSkipped = errors.New("skipped")
)

// Pipeline orchestrates one exposure run.
type Pipeline struct {
	cfg     *config.Config
	clock   clockwork.Clock
	metrics *monitoring.Metrics
	alerter *monitoring.Alerter
	pool    db.Pool
	newID   func() string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock sets the clock used for phase timings.
func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithMetrics records run metrics into m.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithAlerter sends end-of-run alerts through a.
func WithAlerter(a *monitoring.Alerter) Option {
	return func(p *Pipeline) { p.alerter = a }
}

// WithPool enables the PostGIS sink.
func WithPool(pool db.Pool) Option {
	return func(p *Pipeline) { p.pool = pool }
}

// WithRunID fixes the run ID instead of generating a UUID.
func WithRunID(id string) Option {
	return func(p *Pipeline) { p.newID = func() string { return id } }
}

// New creates a Pipeline for cfg.
func New(cfg *config.Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:   cfg,
		clock: clockwork.NewRealClock(),
		newID: func() string { return uuid.NewString() },
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Result is the outcome of a run. It is returned even when a phase fails.
type Result struct {
	RunID   string
	Status  model.RunStatus
	Phases  []model.PhaseResult
	Dataset *exposure.Dataset
	Summary exposure.Summary
	// Outputs maps output kind (geojson, geopackage, xlsx, map, manifest,
	// postgis) to its location.
	Outputs map[string]string
}

// state carries data between phases.
type state struct {
	raster    *raster.Raster
	rasterCRS *crs.CRS
	layer     *vector.Layer
	sourceCRS string
	buffers   []geom.T
	bufFailed int
	ds        *exposure.Dataset
	summary   exposure.Summary
}

type phase struct {
	name string
	fn   func(ctx context.Context, st *state) (map[string]any, error)
}

// Run executes every phase in order and writes the run manifest. A failed
// render leaves the exported files in place; the run status is then
// "partial" and the render error is returned with the result.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	started := p.clock.Now()
	res := &Result{RunID: p.newID(), Outputs: make(map[string]string)}
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("run_id", res.RunID))
	log.Info("pipeline: starting run")

	if err := os.MkdirAll(p.cfg.Paths.OutputDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "pipeline: create output dir %s", p.cfg.Paths.OutputDir)
	}

	st := &state{}
	defer func() {
		if st.raster != nil {
			_ = st.raster.Close()
		}
	}()

	// Phase tracking helper. Skips are not errors.
	trackPhase := func(name string, fn func() (map[string]any, error)) error {
		start := p.clock.Now()
		meta, fnErr := fn()
		duration := p.clock.Since(start)

		pr := model.PhaseResult{Name: name, Duration: duration, Metadata: meta}
		switch {
		case errors.Is(fnErr, errSkipped):
			pr.Status = model.PhaseStatusSkipped
			fnErr = nil
			log.Info("pipeline: phase skipped", zap.String("phase", name))
		case fnErr != nil:
			pr.Status = model.PhaseStatusFailed
			pr.Error = fnErr.Error()
			log.Error("pipeline: phase failed",
				zap.String("phase", name),
				zap.Duration("duration", duration),
				zap.Error(fnErr),
			)
		default:
			pr.Status = model.PhaseStatusComplete
			log.Info("pipeline: phase complete",
				zap.String("phase", name),
				zap.Duration("duration", duration),
			)
		}
		if p.metrics != nil {
			p.metrics.ObservePhase(name, duration, pr.Failed())
		}
		res.Phases = append(res.Phases, pr)
		return fnErr
	}

	phases := []phase{
		{PhaseLoad, p.load},
		{PhaseReproject, p.reproject},
		{PhaseClip, p.clip},
		{PhaseBuffer, p.buffer},
		{PhaseZonal, p.zonal},
		{PhaseNormalize, p.normalize},
		{PhaseExport, func(ctx context.Context, st *state) (map[string]any, error) { return p.export(ctx, st, res) }},
		{PhaseRender, func(ctx context.Context, st *state) (map[string]any, error) { return p.render(ctx, st, res) }},
	}

	var runErr error
	for _, ph := range phases {
		if err := ctx.Err(); err != nil {
			runErr = eris.Wrap(err, "pipeline: cancelled")
			break
		}
		if err := trackPhase(ph.name, func() (map[string]any, error) { return ph.fn(ctx, st) }); err != nil {
			runErr = eris.Wrapf(err, "pipeline: phase %s", ph.name)
			break
		}
	}

	res.Dataset = st.ds
	res.Summary = st.summary
	res.Status = model.StatusOf(res.Phases)
	if runErr != nil && res.Status == model.RunStatusComplete {
		res.Status = model.RunStatusFailed
	}

	finished := p.clock.Now()
	if err := p.writeManifest(st, res, started, finished); err != nil {
		log.Warn("pipeline: manifest not written", zap.Error(err))
	}
	if p.metrics != nil {
		p.metrics.Finish(finished, res.Status == model.RunStatusComplete)
		if path := p.cfg.Metrics.Textfile; path != "" {
			if err := p.metrics.WriteTextfile(path); err != nil {
				log.Warn("pipeline: metrics textfile not written", zap.Error(err))
			}
		}
	}

	if p.alerter != nil {
		p.alert(ctx, st, res, finished)
	}

	log.Info("pipeline: run finished",
		zap.String("status", string(res.Status)),
		zap.Duration("elapsed", finished.Sub(started)),
	)
	return res, runErr
}

func (p *Pipeline) writeManifest(st *state, res *Result, started, finished time.Time) error {
	name := p.cfg.Output.Manifest
	if name == "" {
		return nil
	}
	path := filepath.Join(p.cfg.Paths.OutputDir, name)

	m := &export.Manifest{
		RunID:      res.RunID,
		StartedAt:  started.UTC(),
		FinishedAt: finished.UTC(),
		Status:     res.Status,
		Inputs: export.ManifestInputs{
			Pipelines:   p.cfg.Paths.PipelineFile,
			PipelineCRS: st.sourceCRS,
		},
		Parameters: p.parameters(),
		Phases:     res.Phases,
		Outputs:    res.Outputs,
	}
	if p.cfg.Render.Enabled {
		m.Inputs.Provinces = p.cfg.Paths.ProvinceFile
	}
	if st.raster != nil {
		info := st.raster.Info()
		m.Inputs.Raster = &info
	}
	if st.ds != nil {
		summary := st.summary
		m.Summary = &summary
	}

	if err := export.WriteManifest(path, m); err != nil {
		return err
	}
	res.Outputs["manifest"] = path
	return nil
}

func (p *Pipeline) alert(ctx context.Context, st *state, res *Result, finished time.Time) {
	snap := &monitoring.RunSnapshot{
		RunID:          res.RunID,
		Status:         res.Status,
		Segments:       res.Summary.Total,
		BufferFailures: st.bufFailed,
		Exposed:        res.Summary.Exposed,
		ExposedShare:   res.Summary.ExposedShare,
		FinishedAt:     finished,
	}
	for _, pr := range res.Phases {
		if pr.Failed() {
			snap.FailedPhase = pr.Name
			snap.Error = pr.Error
		}
	}
	if snap.Status == model.RunStatusFailed && snap.FailedPhase == "" && ctx.Err() != nil {
		snap.Error = ctx.Err().Error()
	}
	// The run context may already be cancelled.
	p.alerter.Notify(context.WithoutCancel(ctx), snap)
}

func (p *Pipeline) parameters() map[string]any {
	a := p.cfg.Analysis
	return map[string]any{
		"buffer_meters":    a.BufferMeters,
		"buffer_quad_segs": a.BufferQuadSegs,
		"chunk_size":       a.ChunkSize,
		"nodata":           a.Nodata,
		"workers":          a.Workers,
		"clip_to_raster":   a.ClipToRaster,
		"all_touched":      a.AllTouched,
		"normalize":        a.Normalize,
	}
}
