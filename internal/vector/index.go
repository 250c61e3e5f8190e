package vector

import (
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/twpayne/go-geom"
)

// minExtent keeps degenerate envelopes (points, axis-aligned lines) valid
// for the R-tree, which requires positive side lengths.
const minExtent = 1e-9

// Index is an R-tree over feature envelopes.
type Index struct {
	tree *rtreego.Rtree
}

// indexedFeature wraps a feature position for R-tree storage.
type indexedFeature struct {
	pos  int
	rect rtreego.Rect
}

// Bounds implements rtreego.Spatial.
func (f *indexedFeature) Bounds() rtreego.Rect { return f.rect }

// NewIndex builds an index over the envelopes of feats.
func NewIndex(feats []Feature) *Index {
	objs := make([]rtreego.Spatial, 0, len(feats))
	for i, f := range feats {
		rect, ok := toRect(f.Geom.Bounds())
		if !ok {
			continue
		}
		objs = append(objs, &indexedFeature{pos: i, rect: rect})
	}
	return &Index{tree: rtreego.NewTree(2, 25, 50, objs...)}
}

// Search returns the positions of features whose envelope intersects b,
// in ascending order.
func (ix *Index) Search(b *geom.Bounds) []int {
	q, ok := toRect(b)
	if !ok {
		return nil
	}
	hits := ix.tree.SearchIntersect(q)
	out := make([]int, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.(*indexedFeature).pos)
	}
	sort.Ints(out)
	return out
}

// Size returns the number of indexed envelopes.
func (ix *Index) Size() int { return ix.tree.Size() }

func toRect(b *geom.Bounds) (rtreego.Rect, bool) {
	if b == nil || b.IsEmpty() {
		return rtreego.Rect{}, false
	}
	w := b.Max(0) - b.Min(0)
	h := b.Max(1) - b.Min(1)
	if w < minExtent {
		w = minExtent
	}
	if h < minExtent {
		h = minExtent
	}
	rect, err := rtreego.NewRect(rtreego.Point{b.Min(0), b.Min(1)}, []float64{w, h})
	if err != nil {
		return rtreego.Rect{}, false
	}
	return rect, true
}
