// Package zonal computes raster statistics under polygons, one polygon at a
// time and in bounded chunks.
package zonal

import (
	"context"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/planar"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/wildfire-exposure/internal/raster"
)

// Source is the raster surface zonal statistics read from.
type Source interface {
	Transform() raster.GeoTransform
	Nodata() (float64, bool)
	ReadWindow(ctx context.Context, w raster.Window) (*raster.Block, error)
}

// Stats are the statistics of the cells under one polygon.
type Stats struct {
	Count       int     `json:"count"`
	NodataCount int     `json:"nodata"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Mean        float64 `json:"mean"`
	Sum         float64 `json:"sum"`
	// Valid is false when no valid cell lies under the polygon; Min, Max and
	// Mean are meaningless then.
	Valid bool `json:"valid"`
}

// Compute returns the statistics of src under g, which must be a Polygon or
// MultiPolygon in the raster CRS. A nil geometry yields zero Stats.
func Compute(ctx context.Context, src Source, g geom.T, opts Options) (Stats, error) {
	var st Stats
	if g == nil || g.Empty() {
		return st, nil
	}
	mp, err := toOrb(g)
	if err != nil {
		return st, err
	}

	gt := src.Transform()
	b := g.Bounds()
	w := gt.WindowFor(b.Min(0), b.Min(1), b.Max(0), b.Max(1))
	blk, err := src.ReadWindow(ctx, w)
	if err != nil {
		return st, eris.Wrap(err, "zonal: read window")
	}

	nodata, hasNodata := src.Nodata()
	if opts.Nodata != nil {
		nodata, hasNodata = *opts.Nodata, true
	}

	mask := cellMask(gt, w, mp, opts.AllTouched)
	for i, in := range mask {
		if !in {
			continue
		}
		v := blk.Data[i]
		if math.IsNaN(v) || (hasNodata && v == nodata) {
			st.NodataCount++
			continue
		}
		if st.Count == 0 || v < st.Min {
			st.Min = v
		}
		if st.Count == 0 || v > st.Max {
			st.Max = v
		}
		st.Sum += v
		st.Count++
	}
	if st.Count > 0 {
		st.Valid = true
		st.Mean = st.Sum / float64(st.Count)
	}
	return st, nil
}

// cellMask marks the cells of w that participate: centre inside the
// polygon, plus, with allTouched, every cell a polygon edge passes through.
func cellMask(gt raster.GeoTransform, w raster.Window, mp orb.MultiPolygon, allTouched bool) []bool {
	mask := make([]bool, w.Size())
	for r := 0; r < w.Height; r++ {
		for c := 0; c < w.Width; c++ {
			x, y := gt.CellCenter(w.Col+c, w.Row+r)
			if planar.MultiPolygonContains(mp, orb.Point{x, y}) {
				mask[r*w.Width+c] = true
			}
		}
	}
	if !allTouched {
		return mask
	}

	for _, poly := range mp {
		for _, ring := range poly {
			for i := 1; i < len(ring); i++ {
				markSegment(mask, gt, w, ring[i-1], ring[i])
			}
		}
	}
	return mask
}

// markSegment marks the cells of w whose box the segment a-b crosses.
func markSegment(mask []bool, gt raster.GeoTransform, w raster.Window, a, b orb.Point) {
	c0, r0 := gt.ToPixel(math.Min(a[0], b[0]), math.Max(a[1], b[1]))
	c1, r1 := gt.ToPixel(math.Max(a[0], b[0]), math.Min(a[1], b[1]))
	col0 := max(int(math.Floor(c0)), w.Col)
	row0 := max(int(math.Floor(r0)), w.Row)
	col1 := min(int(math.Floor(c1)), w.Col+w.Width-1)
	row1 := min(int(math.Floor(r1)), w.Row+w.Height-1)

	for row := row0; row <= row1; row++ {
		for col := col0; col <= col1; col++ {
			idx := (row-w.Row)*w.Width + (col - w.Col)
			if mask[idx] {
				continue
			}
			left, top := gt.ToWorld(float64(col), float64(row))
			right, bottom := gt.ToWorld(float64(col+1), float64(row+1))
			if segmentHitsBox(a, b, left, bottom, right, top) {
				mask[idx] = true
			}
		}
	}
}

// segmentHitsBox reports whether any part of segment a-b lies in the box.
func segmentHitsBox(a, b orb.Point, minX, minY, maxX, maxY float64) bool {
	box := orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}
	return len(clip.LineString(box, orb.LineString{a, b})) > 0
}

// toOrb converts a go-geom polygonal geometry for planar containment tests.
func toOrb(g geom.T) (orb.MultiPolygon, error) {
	switch t := g.(type) {
	case *geom.Polygon:
		return orb.MultiPolygon{polygonToOrb(t)}, nil
	case *geom.MultiPolygon:
		mp := make(orb.MultiPolygon, 0, t.NumPolygons())
		for i := 0; i < t.NumPolygons(); i++ {
			mp = append(mp, polygonToOrb(t.Polygon(i)))
		}
		return mp, nil
	default:
		return nil, eris.Errorf("zonal: geometry %T is not polygonal", g)
	}
}

func polygonToOrb(p *geom.Polygon) orb.Polygon {
	out := make(orb.Polygon, 0, p.NumLinearRings())
	stride := p.Stride()
	for i := 0; i < p.NumLinearRings(); i++ {
		flat := p.LinearRing(i).FlatCoords()
		ring := make(orb.Ring, 0, len(flat)/stride)
		for j := 0; j+1 < len(flat); j += stride {
			ring = append(ring, orb.Point{flat[j], flat[j+1]})
		}
		out = append(out, ring)
	}
	return out
}
