package zonal

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultChunkSize matches the batch size of the legacy exposure run.
const DefaultChunkSize = 10000

// Options configures Compute and RunChunked.
type Options struct {
	// Nodata overrides the raster's own nodata value.
	Nodata     *float64
	AllTouched bool
	ChunkSize  int
	Workers    int
	// OnChunk is called after each chunk completes.
	OnChunk func(ChunkInfo)
	Clock   clockwork.Clock
}

// ChunkInfo describes one completed chunk.
type ChunkInfo struct {
	Index    int
	Start    int
	End      int
	Duration time.Duration
	// CachedBlocks is the raster block cache size when the chunk finished,
	// just before the cache is dropped.
	CachedBlocks int
}

// Size returns the number of polygons in the chunk.
func (c ChunkInfo) Size() int { return c.End - c.Start }

// blockCache is implemented by sources that keep decoded blocks between
// reads, such as *raster.Raster.
type blockCache interface {
	CachedBlocks() int
	ResetCache()
}

// RunChunked computes Stats for every geometry, chunkSize at a time.
// Result i belongs to geoms[i]; nil geometries get zero Stats.
func RunChunked(ctx context.Context, src Source, geoms []geom.T, opts Options) ([]Stats, error) {
	size := opts.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	log := zap.L().With(zap.String("component", "zonal"))
	p := message.NewPrinter(language.English)

	out := make([]Stats, len(geoms))
	for idx, start := 0, 0; start < len(geoms); idx, start = idx+1, start+size {
		end := min(start+size, len(geoms))
		log.Info(p.Sprintf("processing rows %d to %d", start, end-1))

		began := clock.Now()
		if err := computeRange(ctx, src, geoms, out, start, end, workers, opts); err != nil {
			return nil, eris.Wrapf(err, "zonal: chunk %d (rows %d to %d)", idx, start, end-1)
		}
		info := ChunkInfo{Index: idx, Start: start, End: end, Duration: clock.Since(began)}
		if bc, ok := src.(blockCache); ok {
			info.CachedBlocks = bc.CachedBlocks()
			bc.ResetCache()
		}
		log.Debug("zonal: chunk done",
			zap.Int("chunk", idx),
			zap.Int("size", info.Size()),
			zap.Duration("duration", info.Duration),
			zap.Int("cached_blocks", info.CachedBlocks),
		)
		if opts.OnChunk != nil {
			opts.OnChunk(info)
		}
	}
	return out, nil
}

func computeRange(ctx context.Context, src Source, geoms []geom.T, out []Stats, start, end, workers int, opts Options) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := start; i < end; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			st, err := Compute(gctx, src, geoms[i], opts)
			if err != nil {
				return eris.Wrapf(err, "zonal: feature %d", i)
			}
			out[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
