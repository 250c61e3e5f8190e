package export

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/sells-group/wildfire-exposure/internal/db"
	"github.com/sells-group/wildfire-exposure/internal/exposure"
)

// PostGIS load modes.
const (
	PostGISReplace = "replace"
	PostGISUpsert  = "upsert"
)

// PostGISOptions configures CopyExposure.
type PostGISOptions struct {
	Schema string
	// Table may be "schema.name" when Schema is empty.
	Table string
	Mode  string
}

var postgisColumns = []string{
	"feature_id", "attrs", "geom",
	exposure.FieldBurnMean, exposure.FieldBurnMin, exposure.FieldBurnCount,
	exposure.FieldBurnNodata, exposure.FieldBurnExposed, exposure.FieldBurnNorm,
}

// CopyExposure loads ds into a PostGIS table, creating it when missing.
// Replace mode swaps the table contents atomically; upsert mode merges on
// feature_id.
func CopyExposure(ctx context.Context, pool db.Pool, ds *exposure.Dataset, opts PostGISOptions) (int64, error) {
	if opts.Table == "" {
		return 0, eris.New("export: postgis table is required")
	}
	mode := opts.Mode
	if mode == "" {
		mode = PostGISReplace
	}
	srid := 0
	if ds.CRS != nil {
		srid = ds.CRS.EPSG()
	}

	table := db.Table{Schema: opts.Schema, Name: opts.Table}
	if opts.Schema == "" {
		table = db.ParseTable(opts.Table)
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	feature_id   integer PRIMARY KEY,
	attrs        jsonb,
	geom         geometry(Geometry, %d),
	burn_mean    double precision,
	burn_min     double precision,
	burn_count   integer,
	burn_nodata  integer,
	burn_exposed smallint,
	burn_norm    double precision
)`, table.Quoted(), srid)
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return 0, eris.Wrapf(err, "export: create %s", table)
	}

	rows, err := exposureRows(ds, srid)
	if err != nil {
		return 0, err
	}

	var n int64
	switch mode {
	case PostGISReplace:
		n, err = db.Replace(ctx, pool, table, postgisColumns, rows)
	case PostGISUpsert:
		n, err = db.Merge(ctx, pool, table, "feature_id", postgisColumns, rows)
	default:
		return 0, eris.Errorf("export: unknown postgis mode %q", mode)
	}
	if err != nil {
		return 0, eris.Wrap(err, "export: load postgis")
	}

	zap.L().Info("export: loaded postgis",
		zap.Stringer("table", table),
		zap.String("mode", mode),
		zap.Int64("rows", n),
	)
	return n, nil
}

func exposureRows(ds *exposure.Dataset, srid int) ([][]any, error) {
	rows := make([][]any, 0, len(ds.Records))
	for _, rec := range ds.Records {
		attrs := make(map[string]any, len(ds.Fields))
		for _, name := range ds.Fields {
			attrs[name] = attrValue(ds.FieldTypes[name], rec.Attrs[name])
		}
		attrJSON, err := json.Marshal(attrs)
		if err != nil {
			return nil, eris.Wrapf(err, "export: attrs of feature %d", rec.FeatureID)
		}
		g, err := EncodeEWKB(rec.Geom, srid)
		if err != nil {
			return nil, eris.Wrapf(err, "export: feature %d", rec.FeatureID)
		}
		rows = append(rows, []any{
			rec.FeatureID, attrJSON, g,
			rec.BurnMean, rec.BurnMin, rec.BurnCount,
			rec.BurnNodata, int16(rec.BurnExposed), rec.BurnNorm,
		})
	}
	return rows, nil
}

// EncodeEWKB encodes g as little-endian EWKB carrying srid. Nil geometry
// encodes as nil.
func EncodeEWKB(g geom.T, srid int) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	var tagged geom.T
	switch t := g.(type) {
	case *geom.Point:
		tagged = t.Clone().SetSRID(srid)
	case *geom.MultiPoint:
		tagged = t.Clone().SetSRID(srid)
	case *geom.LineString:
		tagged = t.Clone().SetSRID(srid)
	case *geom.MultiLineString:
		tagged = t.Clone().SetSRID(srid)
	case *geom.Polygon:
		tagged = t.Clone().SetSRID(srid)
	case *geom.MultiPolygon:
		tagged = t.Clone().SetSRID(srid)
	default:
		return nil, eris.Errorf("export: unsupported geometry %T", g)
	}
	data, err := ewkb.Marshal(tagged, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "export: encode EWKB")
	}
	return data, nil
}
