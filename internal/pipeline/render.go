package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/wildfire-exposure/internal/config"
	"github.com/sells-group/wildfire-exposure/internal/crs"
	"github.com/sells-group/wildfire-exposure/internal/exposure"
	"github.com/sells-group/wildfire-exposure/internal/render"
	"github.com/sells-group/wildfire-exposure/internal/vector"
)

// Render draws the exposure map of ds to path. The province layer is
// filtered to the configured province and both layers are projected into
// the map CRS.
func (p *Pipeline) Render(ctx context.Context, ds *exposure.Dataset, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rc := p.cfg.Render
	mapCRS, err := crs.Parse(rc.CRS)
	if err != nil {
		return eris.Wrap(err, "pipeline: render CRS")
	}

	prov, err := vector.ReadShapefile(p.cfg.Paths.ProvinceFile, vector.ReadOptions{DefaultCRS: p.cfg.Paths.ProvinceCRS})
	if err != nil {
		return err
	}
	if rc.ProvinceField != "" {
		prov = prov.Filter(rc.ProvinceField, rc.ProvinceValue)
		if prov.Len() == 0 {
			return eris.Errorf("pipeline: no province with %s = %q in %s", rc.ProvinceField, rc.ProvinceValue, p.cfg.Paths.ProvinceFile)
		}
	}
	if prov, err = prov.Reproject(mapCRS); err != nil {
		return err
	}

	mapped, err := ReprojectDataset(ds, mapCRS)
	if err != nil {
		return err
	}

	zap.L().Debug("pipeline: rendering map",
		zap.String("path", path),
		zap.Int("province_parts", prov.Len()),
		zap.Int("segments", len(mapped.Records)),
	)
	return render.RenderMap(path, RenderOptions(rc), prov.Geoms(), mapped)
}

// RenderOptions maps the render config onto render.Options, keeping the
// defaults for unset values.
func RenderOptions(rc config.RenderConfig) render.Options {
	opts := render.DefaultOptions()
	if rc.WidthIn > 0 {
		opts.WidthIn = rc.WidthIn
	}
	if rc.HeightIn > 0 {
		opts.HeightIn = rc.HeightIn
	}
	if rc.DPI > 0 {
		opts.DPI = rc.DPI
	}
	if rc.LineWidth > 0 {
		opts.LineWidth = rc.LineWidth
	}
	if rc.Title != "" {
		opts.Title = rc.Title
	}
	if rc.ColorbarLabel != "" {
		opts.ColorbarLabel = rc.ColorbarLabel
	}
	if rc.ScaleBarMeters > 0 {
		opts.ScaleBarMeters = rc.ScaleBarMeters
	}
	if rc.ScaleBarLabel != "" {
		opts.ScaleBarLabel = rc.ScaleBarLabel
	}
	return opts
}

// ReprojectDataset returns a copy of ds with segment geometries in dst.
// Buffers are dropped. A dataset without a CRS is taken as WGS84, the
// GeoJSON default.
func ReprojectDataset(ds *exposure.Dataset, dst *crs.CRS) (*exposure.Dataset, error) {
	src := ds.CRS
	if src == nil {
		src = crs.MustParse(crs.WGS84)
	}
	t, err := crs.NewTransform(src, dst)
	if err != nil {
		return nil, err
	}

	out := &exposure.Dataset{
		Fields:     ds.Fields,
		FieldTypes: ds.FieldTypes,
		CRS:        dst,
		Records:    make([]exposure.Record, len(ds.Records)),
	}
	for i, rec := range ds.Records {
		rec.Buffer = nil
		if rec.Geom != nil && !t.Identity() {
			if rec.Geom, err = t.Geom(rec.Geom); err != nil {
				return nil, eris.Wrapf(err, "pipeline: reproject segment %d", rec.FeatureID)
			}
		}
		out.Records[i] = rec
	}
	return out, nil
}
