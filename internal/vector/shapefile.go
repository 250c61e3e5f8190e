// Package vector loads shapefile layers into go-geom geometries and
// prepares them for zonal statistics: reprojection, bounding-box clipping
// and buffering.
package vector

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/wildfire-exposure/internal/crs"
)

// ErrNoFeatures is returned when a layer holds no usable geometry.
var ErrNoFeatures = errors.New("vector: no features")

// Feature is one shapefile record.
type Feature struct {
	// ID is the zero-based record number in the source file.
	ID    int
	Geom  geom.T
	Attrs map[string]string
}

// Layer is an ordered set of features sharing a CRS.
type Layer struct {
	Name   string
	CRS    *crs.CRS
	Fields []string
	// FieldTypes maps field name to its dBase type ('C', 'N', 'F', 'L', 'D').
	FieldTypes map[string]byte
	Features   []Feature
}

// ReadOptions configures ReadShapefile.
type ReadOptions struct {
	// DefaultCRS is used when the shapefile has no .prj sidecar.
	DefaultCRS string
	// Fields restricts the attributes kept; nil keeps all.
	Fields []string
}

// ReadShapefile reads every record of a shapefile. Records with null or
// malformed geometry are skipped.
func ReadShapefile(path string, opts ReadOptions) (*Layer, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "vector: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	layerCRS, err := crs.FromPRJ(strings.TrimSuffix(path, filepath.Ext(path)) + ".prj")
	if err != nil {
		return nil, err
	}
	if layerCRS == nil {
		if opts.DefaultCRS == "" {
			return nil, eris.Errorf("vector: %s has no .prj and no default CRS", path)
		}
		if layerCRS, err = crs.Parse(opts.DefaultCRS); err != nil {
			return nil, err
		}
	}

	// Build field name → index map.
	fields := reader.Fields()
	names := make([]string, 0, len(fields))
	fieldIdx := make(map[string]int, len(fields))
	types := make(map[string]byte, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[name] = i
		types[name] = f.Fieldtype
		names = append(names, name)
	}
	keep := names
	if opts.Fields != nil {
		keep = make([]string, 0, len(opts.Fields))
		for _, f := range opts.Fields {
			if _, ok := fieldIdx[f]; !ok {
				return nil, eris.Errorf("vector: %s has no field %q", path, f)
			}
			keep = append(keep, f)
		}
	}

	layer := &Layer{
		Name:       strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		CRS:        layerCRS,
		Fields:     keep,
		FieldTypes: make(map[string]byte, len(keep)),
	}
	for _, name := range keep {
		layer.FieldTypes[name] = types[name]
	}
	var skipped int

	for reader.Next() {
		n, shape := reader.Shape()

		g := ShapeToGeom(shape)
		if g == nil {
			skipped++
			continue
		}

		attrs := make(map[string]string, len(keep))
		for _, name := range keep {
			val := strings.TrimRight(reader.Attribute(fieldIdx[name]), "\x00")
			attrs[name] = strings.TrimSpace(val)
		}

		layer.Features = append(layer.Features, Feature{ID: n, Geom: g, Attrs: attrs})
	}

	if skipped > 0 {
		zap.L().Debug("vector: skipped shapefile records",
			zap.String("layer", layer.Name),
			zap.Int("skipped", skipped),
		)
	}
	if len(layer.Features) == 0 {
		return nil, eris.Wrapf(ErrNoFeatures, "vector: %s", path)
	}

	zap.L().Info("vector: loaded layer",
		zap.String("layer", layer.Name),
		zap.Int("features", len(layer.Features)),
		zap.Stringer("crs", layer.CRS),
	)
	return layer, nil
}
