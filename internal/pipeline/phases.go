package pipeline

import (
	"context"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/wildfire-exposure/internal/crs"
	"github.com/sells-group/wildfire-exposure/internal/export"
	"github.com/sells-group/wildfire-exposure/internal/exposure"
	"github.com/sells-group/wildfire-exposure/internal/raster"
	"github.com/sells-group/wildfire-exposure/internal/vector"
	"github.com/sells-group/wildfire-exposure/internal/zonal"
)

func (p *Pipeline) load(_ context.Context, st *state) (map[string]any, error) {
	layer, err := vector.ReadShapefile(p.cfg.Paths.PipelineFile, vector.ReadOptions{DefaultCRS: p.cfg.Paths.PipelineCRS})
	if err != nil {
		return nil, err
	}
	st.layer = layer
	st.sourceCRS = layer.CRS.String()

	r, err := raster.Open(p.cfg.Paths.FireRaster, raster.Options{CRS: p.cfg.Analysis.RasterCRS})
	if err != nil {
		return nil, err
	}
	st.raster = r

	rc, err := r.CRS()
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: raster CRS (set analysis.raster_crs to override)")
	}
	if rc.IsGeographic() {
		return nil, eris.Wrapf(ErrGeographicCRS, "pipeline: %s is %s", p.cfg.Paths.FireRaster, rc)
	}
	st.rasterCRS = rc

	if p.metrics != nil {
		p.metrics.SegmentsLoaded.Set(float64(layer.Len()))
	}
	return map[string]any{
		"segments":     layer.Len(),
		"pipeline_crs": st.sourceCRS,
		"raster_crs":   rc.String(),
		"raster_size":  []int{r.Width(), r.Height()},
		"raster_type":  r.DataType().String(),
	}, nil
}

func (p *Pipeline) reproject(_ context.Context, st *state) (map[string]any, error) {
	if st.layer.CRS.Equal(st.rasterCRS) {
		return map[string]any{"crs": st.rasterCRS.String()}, errSkipped
	}
	from := st.layer.CRS.String()
	layer, err := st.layer.Reproject(st.rasterCRS)
	if err != nil {
		return nil, err
	}
	st.layer = layer
	return map[string]any{"from": from, "to": st.rasterCRS.String()}, nil
}

func (p *Pipeline) clip(_ context.Context, st *state) (map[string]any, error) {
	if !p.cfg.Analysis.ClipToRaster {
		return nil, errSkipped
	}
	rb := st.raster.Bounds()
	b := geom.NewBounds(geom.XY).Set(rb.Left, rb.Bottom, rb.Right, rb.Top)

	before := st.layer.Len()
	st.layer = st.layer.ClipToBounds(b)
	if p.metrics != nil {
		p.metrics.SegmentsClipped.Set(float64(st.layer.Len()))
	}
	meta := map[string]any{"kept": st.layer.Len(), "dropped": before - st.layer.Len()}
	if ext, err := lonLatExtent(st.rasterCRS, b); err == nil {
		meta["raster_extent_lonlat"] = ext
	} else {
		zap.L().Debug("pipeline: raster extent in lon/lat", zap.String("component", "pipeline"), zap.Error(err))
	}
	if st.layer.Len() == 0 {
		return meta, ErrNoSegments
	}
	return meta, nil
}

// lonLatExtent is the footprint of b, in the src CRS, as
// [min lon, min lat, max lon, max lat].
func lonLatExtent(src *crs.CRS, b *geom.Bounds) ([]float64, error) {
	wgs, err := crs.Parse(crs.WGS84)
	if err != nil {
		return nil, err
	}
	tr, err := crs.NewTransform(src, wgs)
	if err != nil {
		return nil, err
	}
	ll, err := tr.Bounds(b.Min(0), b.Min(1), b.Max(0), b.Max(1))
	if err != nil {
		return nil, err
	}
	return []float64{ll.Min(0), ll.Min(1), ll.Max(0), ll.Max(1)}, nil
}

func (p *Pipeline) buffer(ctx context.Context, st *state) (map[string]any, error) {
	a := p.cfg.Analysis
	buffers, err := vector.BufferAll(ctx, st.layer.Geoms(), a.BufferMeters, a.BufferQuadSegs, a.Workers)
	if err != nil {
		return nil, err
	}
	st.buffers = buffers

	var ok int
	for _, b := range buffers {
		if b != nil {
			ok++
		}
	}
	st.bufFailed = len(buffers) - ok
	if p.metrics != nil {
		p.metrics.SegmentsBuffered.Set(float64(ok))
		p.metrics.BufferFailures.Set(float64(len(buffers) - ok))
	}
	return map[string]any{"buffered": ok, "failed": len(buffers) - ok, "distance_m": a.BufferMeters}, nil
}

func (p *Pipeline) zonal(ctx context.Context, st *state) (map[string]any, error) {
	a := p.cfg.Analysis
	nodata := a.Nodata
	var chunks int
	opts := zonal.Options{
		Nodata:     &nodata,
		AllTouched: a.AllTouched,
		ChunkSize:  a.ChunkSize,
		Workers:    a.Workers,
		Clock:      p.clock,
		OnChunk: func(ci zonal.ChunkInfo) {
			chunks++
			if p.metrics != nil {
				p.metrics.ObserveChunk(ci.Duration)
			}
		},
	}
	stats, err := zonal.RunChunked(ctx, st.raster, st.buffers, opts)
	if err != nil {
		return map[string]any{"chunks": chunks}, err
	}

	ds, err := exposure.AssessAll(st.layer, st.buffers, stats, nodata)
	if err != nil {
		return nil, err
	}
	st.ds = ds

	var withData int
	for _, s := range stats {
		if s.Valid {
			withData++
		}
	}
	return map[string]any{"chunks": chunks, "with_data": withData, "without_data": len(stats) - withData}, nil
}

func (p *Pipeline) normalize(_ context.Context, st *state) (map[string]any, error) {
	if err := exposure.Normalize(st.ds.Records, p.cfg.Analysis.Normalize); err != nil {
		return nil, err
	}
	st.summary = exposure.Summarize(st.ds.Records)
	if p.metrics != nil {
		p.metrics.ExposedSegments.Set(float64(st.summary.Exposed))
	}
	return map[string]any{
		"mode":          p.cfg.Analysis.Normalize,
		"exposed":       st.summary.Exposed,
		"exposed_share": st.summary.ExposedShare,
	}, nil
}

func (p *Pipeline) export(ctx context.Context, st *state, res *Result) (map[string]any, error) {
	out := p.cfg.Output
	dir := p.cfg.Paths.OutputDir

	path := filepath.Join(dir, out.GeoJSON)
	if err := export.WriteGeoJSON(path, st.ds, export.GeoJSONOptions{KeepBuffer: out.KeepBuffer}); err != nil {
		return nil, err
	}
	res.Outputs["geojson"] = path

	if out.GeoPackage != "" {
		path := filepath.Join(dir, out.GeoPackage)
		if err := export.WriteGeoPackage(ctx, path, st.ds, export.GeoPackageOptions{}); err != nil {
			return nil, err
		}
		res.Outputs["geopackage"] = path
	}

	if out.SummaryXLSX != "" {
		path := filepath.Join(dir, out.SummaryXLSX)
		if err := export.WriteSummaryXLSX(path, st.summary, st.ds); err != nil {
			return nil, err
		}
		res.Outputs["xlsx"] = path
	}

	meta := map[string]any{"files": len(res.Outputs)}
	if p.pool != nil {
		pg := p.cfg.PostGIS
		n, err := export.CopyExposure(ctx, p.pool, st.ds, export.PostGISOptions{Schema: pg.Schema, Table: pg.Table, Mode: pg.Mode})
		if err != nil {
			return meta, err
		}
		res.Outputs["postgis"] = pg.Schema + "." + pg.Table
		meta["postgis_rows"] = n
	}
	return meta, nil
}

func (p *Pipeline) render(ctx context.Context, st *state, res *Result) (map[string]any, error) {
	if !p.cfg.Render.Enabled {
		return nil, errSkipped
	}
	path := filepath.Join(p.cfg.Paths.OutputDir, p.cfg.Render.File)
	if err := p.Render(ctx, st.ds, path); err != nil {
		return nil, err
	}
	res.Outputs["map"] = path
	return map[string]any{"crs": p.cfg.Render.CRS, "dpi": p.cfg.Render.DPI}, nil
}
