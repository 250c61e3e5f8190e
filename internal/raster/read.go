package raster

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
)

// Block is a window of band-1 values. Cells outside the raster are NaN.
type Block struct {
	Window Window
	Data   []float64
}

// At returns the value at absolute pixel (col, row), NaN outside the block.
func (b *Block) At(col, row int) float64 {
	c, r := col-b.Window.Col, row-b.Window.Row
	if c < 0 || r < 0 || c >= b.Window.Width || r >= b.Window.Height {
		return math.NaN()
	}
	return b.Data[r*b.Window.Width+c]
}

// ReadWindow reads band 1 over w. The window may extend past the raster;
// uncovered cells come back as NaN.
func (r *Raster) ReadWindow(ctx context.Context, w Window) (*Block, error) {
	if w.Empty() {
		return &Block{Window: w}, nil
	}
	out := &Block{Window: w, Data: make([]float64, w.Size())}
	for i := range out.Data {
		out.Data[i] = math.NaN()
	}

	in := w.Intersect(r.Extent())
	if in.Empty() {
		return out, nil
	}

	bx0, by0 := in.Col/r.blockW, in.Row/r.blockH
	bx1, by1 := (in.Col+in.Width-1)/r.blockW, (in.Row+in.Height-1)/r.blockH
	for by := by0; by <= by1; by++ {
		for bx := bx0; bx <= bx1; bx++ {
			if err := ctx.Err(); err != nil {
				return nil, eris.Wrap(err, "raster: read window")
			}
			idx := by*r.blocksAcross + bx
			buf, err := r.block(idx)
			if err != nil {
				return nil, err
			}
			r.copyBlock(out, in, buf, bx, by)
		}
	}
	return out, nil
}

// copyBlock copies the part of block (bx, by) that falls inside in.
func (r *Raster) copyBlock(out *Block, in Window, buf []byte, bx, by int) {
	blk := Window{Col: bx * r.blockW, Row: by * r.blockH, Width: r.blockW, Height: r.blockH}
	part := in.Intersect(blk)
	size := r.dtype.Size()
	for row := part.Row; row < part.Row+part.Height; row++ {
		for col := part.Col; col < part.Col+part.Width; col++ {
			si := ((row-blk.Row)*r.blockW + (col - blk.Col)) * r.spp
			if (si+1)*size > len(buf) {
				continue
			}
			out.Data[(row-out.Window.Row)*out.Window.Width+(col-out.Window.Col)] = sample(buf, si, r.order, r.dtype)
		}
	}
}

// block returns the decoded bytes of strip or tile idx, using the cache.
func (r *Raster) block(idx int) ([]byte, error) {
	if buf, ok := r.cache.get(idx); ok {
		return buf, nil
	}

	rows := r.blockH
	if !r.tiled {
		if rem := r.height - idx*r.blockH; rem < rows {
			rows = rem
		}
	}
	want := r.blockW * rows * r.spp * r.dtype.Size()

	raw := make([]byte, r.counts[idx])
	if len(raw) > 0 {
		r.mu.Lock()
		f := r.f
		r.mu.Unlock()
		if f == nil {
			return nil, eris.New("raster: read from closed raster")
		}
		if _, err := f.ReadAt(raw, int64(r.offsets[idx])); err != nil {
			return nil, eris.Wrapf(err, "raster: read block %d", idx)
		}
	}

	buf, err := decompress(r.compression, raw, want)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: decode block %d", idx)
	}
	if r.predictor == PredictorHorizontal {
		undoHorizontalPredictor(buf, r.order, r.dtype, r.blockW, r.spp)
	}

	r.cache.put(idx, buf)
	return buf, nil
}

// ResetCache drops every decoded block.
func (r *Raster) ResetCache() {
	r.cache.reset()
}

// CachedBlocks returns the number of blocks currently cached.
func (r *Raster) CachedBlocks() int {
	return r.cache.len()
}
