package vector

import (
	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// ShapeToGeom converts a go-shp shape to a go-geom geometry. Z and M values
// are dropped. Returns nil for unsupported, null, or empty shapes.
func ShapeToGeom(shape shp.Shape) geom.T {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y})
	case *shp.PointZ:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y})
	case *shp.PointM:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y})
	case *shp.PolyLine:
		return partsToMultiLineString(s.Parts, s.Points)
	case *shp.PolyLineZ:
		return partsToMultiLineString(s.Parts, s.Points)
	case *shp.PolyLineM:
		return partsToMultiLineString(s.Parts, s.Points)
	case *shp.Polygon:
		return partsToMultiPolygon(s.Parts, s.Points)
	case *shp.PolygonZ:
		return partsToMultiPolygon(s.Parts, s.Points)
	case *shp.PolygonM:
		return partsToMultiPolygon(s.Parts, s.Points)
	default:
		return nil
	}
}

// splitParts slices the point array of a multi-part shape into flat XY
// coordinate runs.
func splitParts(parts []int32, points []shp.Point) [][]float64 {
	out := make([][]float64, 0, len(parts))
	for i := range parts {
		start := parts[i]
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || end > int32(len(points)) || start >= end {
			continue
		}
		flat := make([]float64, 0, 2*(end-start))
		for j := start; j < end; j++ {
			flat = append(flat, points[j].X, points[j].Y)
		}
		out = append(out, flat)
	}
	return out
}

func partsToMultiLineString(parts []int32, points []shp.Point) geom.T {
	if len(parts) == 0 || len(points) == 0 {
		return nil
	}

	mls := geom.NewMultiLineString(geom.XY)
	for i, flat := range splitParts(parts, points) {
		if len(flat) < 4 {
			continue
		}
		if err := mls.Push(geom.NewLineStringFlat(geom.XY, flat)); err != nil {
			zap.L().Debug("vector: skipping malformed linestring part", zap.Int("part", i), zap.Error(err))
		}
	}

	if mls.NumLineStrings() == 0 {
		return nil
	}
	return mls
}

// partsToMultiPolygon groups shapefile rings into polygons. Clockwise rings
// are shells; counter-clockwise rings are holes of the shell containing them.
func partsToMultiPolygon(parts []int32, points []shp.Point) geom.T {
	if len(parts) == 0 || len(points) == 0 {
		return nil
	}

	var shells [][][]float64
	var holes [][]float64
	for _, flat := range splitParts(parts, points) {
		if len(flat) < 8 {
			continue
		}
		if orbRing(flat).Orientation() != orb.CCW {
			shells = append(shells, [][]float64{flat})
		} else {
			holes = append(holes, flat)
		}
	}
	// A file with only counter-clockwise rings is treated as shells.
	if len(shells) == 0 {
		for _, h := range holes {
			shells = append(shells, [][]float64{h})
		}
		holes = nil
	}

	for _, h := range holes {
		owner := len(shells) - 1
		for i, s := range shells {
			if ringContains(s[0], h[0], h[1]) {
				owner = i
				break
			}
		}
		shells[owner] = append(shells[owner], h)
	}

	mp := geom.NewMultiPolygon(geom.XY)
	for i, rings := range shells {
		var flat []float64
		ends := make([]int, 0, len(rings))
		for _, r := range rings {
			flat = append(flat, r...)
			ends = append(ends, len(flat))
		}
		if err := mp.Push(geom.NewPolygonFlat(geom.XY, flat, ends)); err != nil {
			zap.L().Debug("vector: skipping malformed polygon part", zap.Int("part", i), zap.Error(err))
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

func orbRing(flat []float64) orb.Ring {
	ring := make(orb.Ring, 0, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		ring = append(ring, orb.Point{flat[i], flat[i+1]})
	}
	return ring
}

// ringContains tests a point against a flat XY ring.
func ringContains(flat []float64, x, y float64) bool {
	return planar.RingContains(orbRing(flat), orb.Point{x, y})
}
