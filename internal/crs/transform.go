package crs

import (
	"math"

	"github.com/ctessum/geom/proj"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Transform converts coordinates from one CRS to another.
type Transform struct {
	src, dst *CRS
	fn       proj.Transformer
}

// NewTransform builds a transform from src to dst. Identical systems yield
// an identity transform.
func NewTransform(src, dst *CRS) (*Transform, error) {
	if src == nil || dst == nil {
		return nil, eris.New("crs: transform needs both source and destination")
	}
	t := &Transform{src: src, dst: dst}
	if src.Equal(dst) {
		return t, nil
	}
	fn, err := src.sr.NewTransform(dst.sr)
	if err != nil {
		return nil, eris.Wrapf(err, "crs: transform %s -> %s", src, dst)
	}
	t.fn = fn
	return t, nil
}

// Identity reports whether the transform leaves coordinates unchanged.
func (t *Transform) Identity() bool { return t.fn == nil }

// Source returns the source CRS.
func (t *Transform) Source() *CRS { return t.src }

// Target returns the destination CRS.
func (t *Transform) Target() *CRS { return t.dst }

// Point transforms a single coordinate.
func (t *Transform) Point(x, y float64) (float64, float64, error) {
	if t.fn == nil {
		return x, y, nil
	}
	tx, ty, err := t.fn(x, y)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "crs: transform point (%g, %g)", x, y)
	}
	if math.IsNaN(tx) || math.IsNaN(ty) || math.IsInf(tx, 0) || math.IsInf(ty, 0) {
		return 0, 0, eris.Errorf("crs: point (%g, %g) has no image in %s", x, y, t.dst)
	}
	return tx, ty, nil
}

// Geom returns a reprojected copy of g. Supported types are the ones a
// shapefile can produce.
func (t *Transform) Geom(g geom.T) (geom.T, error) {
	if g == nil {
		return nil, nil
	}
	var out geom.T
	switch v := g.(type) {
	case *geom.Point:
		out = v.Clone()
	case *geom.MultiPoint:
		out = v.Clone()
	case *geom.LineString:
		out = v.Clone()
	case *geom.MultiLineString:
		out = v.Clone()
	case *geom.Polygon:
		out = v.Clone()
	case *geom.MultiPolygon:
		out = v.Clone()
	default:
		return nil, eris.Errorf("crs: unsupported geometry %T", g)
	}
	if t.fn == nil {
		return out, nil
	}

	// FlatCoords exposes the backing slice, so the clone is updated in place.
	flat := out.FlatCoords()
	stride := out.Stride()
	for i := 0; i+1 < len(flat); i += stride {
		x, y, err := t.Point(flat[i], flat[i+1])
		if err != nil {
			return nil, err
		}
		flat[i], flat[i+1] = x, y
	}
	return out, nil
}

// Bounds transforms a box by densifying its edges, which keeps curved
// edges of the projected box inside the result.
func (t *Transform) Bounds(minX, minY, maxX, maxY float64) (*geom.Bounds, error) {
	const steps = 20
	b := geom.NewBounds(geom.XY)
	first := true
	for i := 0; i <= steps; i++ {
		f := float64(i) / steps
		for _, p := range [][2]float64{
			{minX + f*(maxX-minX), minY},
			{minX + f*(maxX-minX), maxY},
			{minX, minY + f*(maxY-minY)},
			{maxX, minY + f*(maxY-minY)},
		} {
			x, y, err := t.Point(p[0], p[1])
			if err != nil {
				return nil, err
			}
			if first {
				b = geom.NewBounds(geom.XY).Set(x, y, x, y)
				first = false
				continue
			}
			b.Extend(geom.NewPointFlat(geom.XY, []float64{x, y}))
		}
	}
	return b, nil
}

// samplePoints (lon, lat) are spread over Canada; used to compare definitions.
var samplePoints = [][2]float64{{-115, 55}, {-110, 50}, {-95, 60}, {-75, 46}}

func sameSR(a, b *proj.SR) bool {
	if a.Name != b.Name {
		return false
	}
	wgs, err := proj.Parse(registry[WGS84])
	if err != nil {
		return false
	}
	ta, err := wgs.NewTransform(a)
	if err != nil {
		return false
	}
	tb, err := wgs.NewTransform(b)
	if err != nil {
		return false
	}
	for _, p := range samplePoints {
		ax, ay, errA := ta(p[0], p[1])
		bx, by, errB := tb(p[0], p[1])
		if errA != nil || errB != nil {
			return false
		}
		if math.Abs(ax-bx) > 1e-3 || math.Abs(ay-by) > 1e-3 {
			return false
		}
	}
	return true
}
