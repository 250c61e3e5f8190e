package vector

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/wildfire-exposure/internal/crs"
)

// Len returns the number of features.
func (l *Layer) Len() int { return len(l.Features) }

// Geoms returns the feature geometries in layer order.
func (l *Layer) Geoms() []geom.T {
	out := make([]geom.T, len(l.Features))
	for i, f := range l.Features {
		out[i] = f.Geom
	}
	return out
}

// Bounds returns the envelope of all features.
func (l *Layer) Bounds() *geom.Bounds {
	b := geom.NewBounds(geom.XY)
	for _, f := range l.Features {
		b.Extend(f.Geom)
	}
	return b
}

// Reproject returns a copy of the layer in dst.
func (l *Layer) Reproject(dst *crs.CRS) (*Layer, error) {
	t, err := crs.NewTransform(l.CRS, dst)
	if err != nil {
		return nil, err
	}
	out := l.derive(make([]Feature, 0, len(l.Features)))
	out.CRS = dst
	for _, f := range l.Features {
		g, err := t.Geom(f.Geom)
		if err != nil {
			return nil, eris.Wrapf(err, "vector: reproject %s feature %d", l.Name, f.ID)
		}
		out.Features = append(out.Features, Feature{ID: f.ID, Geom: g, Attrs: f.Attrs})
	}
	return out, nil
}

// Filter keeps features whose attribute field equals value.
func (l *Layer) Filter(field, value string) *Layer {
	out := l.derive(nil)
	for _, f := range l.Features {
		if f.Attrs[field] == value {
			out.Features = append(out.Features, f)
		}
	}
	return out
}

// ClipToBounds keeps features whose envelope intersects b, in layer order.
// Geometries are not cut.
func (l *Layer) ClipToBounds(b *geom.Bounds) *Layer {
	idx := NewIndex(l.Features)
	hits := idx.Search(b)
	out := l.derive(make([]Feature, 0, len(hits)))
	for _, i := range hits {
		out.Features = append(out.Features, l.Features[i])
	}
	return out
}

func (l *Layer) derive(feats []Feature) *Layer {
	return &Layer{Name: l.Name, CRS: l.CRS, Fields: l.Fields, FieldTypes: l.FieldTypes, Features: feats}
}
