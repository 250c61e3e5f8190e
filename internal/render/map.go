// Package render draws the exposure choropleth map.
package render

import (
	"image/color"
	"math"
	"sort"

	"github.com/fogleman/gg"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/wildfire-exposure/internal/exposure"
)

// Options configures RenderMap. Sizes in points scale with DPI.
type Options struct {
	WidthIn        float64
	HeightIn       float64
	DPI            float64
	Title          string
	ColorbarLabel  string
	LineWidth      float64
	ScaleBarMeters float64
	ScaleBarLabel  string
	Colormap       Colormap
	// MissingColor strokes segments without a burn_norm; nil skips them.
	MissingColor color.Color
}

// DefaultOptions matches the published figure.
func DefaultOptions() Options {
	return Options{
		WidthIn:        14,
		HeightIn:       10,
		DPI:            300,
		Title:          "Alberta Pipelines by Wildfire Exposure (2001–2023, LCC Projection)",
		ColorbarLabel:  "Normalized Burn Exposure",
		LineWidth:      0.75,
		ScaleBarMeters: 100000,
		ScaleBarLabel:  "100 km",
		Colormap:       OrRd,
		MissingColor:   color.RGBA{0xd0, 0xd0, 0xd0, 0xff},
	}
}

// Font sizes and figure layout in points or axes fractions.
const (
	titlePt        = 16
	colorbarPt     = 12
	tickPt         = 10
	scaleBarPt     = 10
	northPt        = 14
	provincePt     = 1
	colorbarShrink = 0.7
)

// frame is the pixel layout of the figure and the world-to-pixel mapping.
type frame struct {
	pt                 float64
	axX, axY, axW, axH float64
	scale              float64
	offX, offY         float64
	minX, maxY         float64
}

func (f *frame) px(x, y float64) (float64, float64) {
	return f.offX + (x-f.minX)*f.scale, f.offY + (f.maxY-y)*f.scale
}

// RenderMap draws province outlines and exposure-coloured segments and
// saves the figure as PNG. All geometries must share one projected CRS.
func RenderMap(path string, opts Options, province []geom.T, ds *exposure.Dataset) error {
	if opts.WidthIn <= 0 || opts.HeightIn <= 0 || opts.DPI <= 0 {
		return eris.New("render: figure size and dpi must be > 0")
	}
	if len(opts.Colormap) == 0 {
		opts.Colormap = OrRd
	}

	extent := geom.NewBounds(geom.XY)
	var n int
	for _, g := range province {
		if g != nil && !g.Empty() {
			extent.Extend(g)
			n++
		}
	}
	for _, r := range ds.Records {
		if r.Geom != nil && !r.Geom.Empty() {
			extent.Extend(r.Geom)
			n++
		}
	}
	if n == 0 || extent.IsEmpty() {
		return eris.New("render: nothing to draw")
	}

	w := int(math.Round(opts.WidthIn * opts.DPI))
	h := int(math.Round(opts.HeightIn * opts.DPI))
	f := layout(float64(w), float64(h), opts.DPI, extent)

	dc := gg.NewContext(w, h)
	dc.SetColor(color.White)
	dc.Clear()

	tol := 0.5 / f.scale
	dc.SetColor(color.Black)
	dc.SetLineWidth(provincePt * f.pt)
	for _, g := range province {
		strokeGeom(dc, f, g, tol)
	}

	order := make([]int, 0, len(ds.Records))
	for i := range ds.Records {
		order = append(order, i)
	}
	// Nulls first, then ascending exposure so hot segments sit on top.
	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := ds.Records[order[a]].BurnNorm, ds.Records[order[b]].BurnNorm
		if ra == nil || rb == nil {
			return ra == nil && rb != nil
		}
		return *ra < *rb
	})

	dc.SetLineWidth(opts.LineWidth * f.pt)
	dc.SetLineCap(gg.LineCapRound)
	var drawn, skipped int
	for _, i := range order {
		r := ds.Records[i]
		switch {
		case r.BurnNorm != nil:
			dc.SetColor(opts.Colormap.At(*r.BurnNorm))
		case opts.MissingColor != nil:
			dc.SetColor(opts.MissingColor)
		default:
			skipped++
			continue
		}
		strokeGeom(dc, f, r.Geom, tol)
		drawn++
	}

	if err := drawDecorations(dc, f, opts); err != nil {
		return err
	}
	if err := dc.SavePNG(path); err != nil {
		return eris.Wrapf(err, "render: save %s", path)
	}

	zap.L().Info("render: saved map",
		zap.String("path", path),
		zap.Int("width_px", w),
		zap.Int("height_px", h),
		zap.Int("segments", drawn),
		zap.Int("skipped", skipped),
	)
	return nil
}

// layout reserves room for the title and colorbar and fits the extent
// into the remaining axes with equal x/y scale.
func layout(w, h, dpi float64, b *geom.Bounds) *frame {
	f := &frame{pt: dpi / 72}
	f.axX = 0.03 * w
	f.axY = 0.08 * h
	f.axW = 0.80 * w
	f.axH = 0.88 * h

	dx := b.Max(0) - b.Min(0)
	dy := b.Max(1) - b.Min(1)
	if dx <= 0 {
		dx = 1
	}
	if dy <= 0 {
		dy = 1
	}
	f.scale = math.Min(f.axW/dx, f.axH/dy)
	f.minX, f.maxY = b.Min(0), b.Max(1)
	f.offX = f.axX + (f.axW-dx*f.scale)/2
	f.offY = f.axY + (f.axH-dy*f.scale)/2
	return f
}

// strokeGeom simplifies each line or ring below pixel size and strokes it.
func strokeGeom(dc *gg.Context, f *frame, g geom.T, tol float64) {
	if g == nil {
		return
	}
	dp := simplify.DouglasPeucker(tol)
	for _, ls := range lines(g) {
		if s, ok := dp.Simplify(ls).(orb.LineString); ok {
			ls = s
		}
		if len(ls) < 2 {
			continue
		}
		dc.NewSubPath()
		for i, p := range ls {
			x, y := f.px(p[0], p[1])
			if i == 0 {
				dc.MoveTo(x, y)
			} else {
				dc.LineTo(x, y)
			}
		}
	}
	dc.Stroke()
}

// lines returns every line string and polygon ring of g.
func lines(g geom.T) []orb.LineString {
	var out []orb.LineString
	add := func(flat []float64, stride int) {
		ls := make(orb.LineString, 0, len(flat)/stride)
		for i := 0; i+1 < len(flat); i += stride {
			ls = append(ls, orb.Point{flat[i], flat[i+1]})
		}
		out = append(out, ls)
	}
	switch t := g.(type) {
	case *geom.LineString:
		add(t.FlatCoords(), t.Stride())
	case *geom.MultiLineString:
		for i := 0; i < t.NumLineStrings(); i++ {
			add(t.LineString(i).FlatCoords(), t.Stride())
		}
	case *geom.Polygon:
		for i := 0; i < t.NumLinearRings(); i++ {
			add(t.LinearRing(i).FlatCoords(), t.Stride())
		}
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			p := t.Polygon(i)
			for j := 0; j < p.NumLinearRings(); j++ {
				add(p.LinearRing(j).FlatCoords(), t.Stride())
			}
		}
	}
	return out
}
