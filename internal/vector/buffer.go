package vector

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	"github.com/twpayne/go-geos"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Buffer returns the polygonal buffer of g at distance (CRS units) using
// GEOS. quadSegs is the number of segments per quarter circle. Returns nil
// when the buffer is empty.
func Buffer(gctx *geos.Context, g geom.T, distance float64, quadSegs int) (geom.T, error) {
	if g == nil {
		return nil, nil
	}
	in, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "vector: encode WKB")
	}

	gg, err := gctx.NewGeomFromWKB(in)
	if err != nil {
		return nil, eris.Wrap(err, "vector: decode WKB into GEOS")
	}
	buf := gg.Buffer(distance, quadSegs)
	if buf == nil || buf.IsEmpty() {
		return nil, nil
	}

	out, err := wkb.Unmarshal(buf.ToWKB())
	if err != nil {
		return nil, eris.Wrap(err, "vector: decode buffered WKB")
	}
	switch out.(type) {
	case *geom.Polygon, *geom.MultiPolygon:
		return out, nil
	default:
		return nil, eris.Errorf("vector: buffer produced %T", out)
	}
}

// BufferAll buffers geoms with up to workers goroutines, each owning its
// GEOS context. Output order matches input order; failed or empty buffers
// are nil.
func BufferAll(ctx context.Context, geoms []geom.T, distance float64, quadSegs, workers int) ([]geom.T, error) {
	if workers < 1 {
		workers = 1
	}
	if workers > len(geoms) {
		workers = len(geoms)
	}
	out := make([]geom.T, len(geoms))
	if len(geoms) == 0 {
		return out, nil
	}

	per := (len(geoms) + workers - 1) / workers
	g, gCtx := errgroup.WithContext(ctx)
	failed := make([]int, workers)

	for w := 0; w < workers; w++ {
		start := w * per
		end := min(start+per, len(geoms))
		if start >= end {
			continue
		}
		w := w
		g.Go(func() error {
			gctx := geos.NewContext()
			for i := start; i < end; i++ {
				if err := gCtx.Err(); err != nil {
					return err
				}
				b, err := Buffer(gctx, geoms[i], distance, quadSegs)
				if err != nil {
					zap.L().Debug("vector: buffer failed", zap.Int("index", i), zap.Error(err))
					failed[w]++
					continue
				}
				out[i] = b
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "vector: buffer")
	}

	var total int
	for _, n := range failed {
		total += n
	}
	if total > 0 {
		zap.L().Warn("vector: some geometries could not be buffered", zap.Int("failed", total))
	}
	return out, nil
}
