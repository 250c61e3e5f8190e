package export

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/wildfire-exposure/internal/exposure"
)

// GeoPackage constants (OGC 12-128r18).
const (
	gpkgApplicationID = 0x47504B47
	gpkgUserVersion   = 10300
	// gpkgCustomSRS is the srs_id used when the CRS has no EPSG code.
	gpkgCustomSRS = 100000
)

// DefaultGeoPackageTable is the feature table name used when none is given.
const DefaultGeoPackageTable = "pipeline_wildfire_exposure"

const gpkgCore = `
CREATE TABLE gpkg_spatial_ref_sys (
	srs_name                 TEXT NOT NULL,
	srs_id                   INTEGER PRIMARY KEY,
	organization             TEXT NOT NULL,
	organization_coordsys_id INTEGER NOT NULL,
	definition               TEXT NOT NULL,
	description              TEXT
);

CREATE TABLE gpkg_contents (
	table_name  TEXT NOT NULL PRIMARY KEY,
	data_type   TEXT NOT NULL,
	identifier  TEXT UNIQUE,
	description TEXT DEFAULT '',
	last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	min_x       DOUBLE,
	min_y       DOUBLE,
	max_x       DOUBLE,
	max_y       DOUBLE,
	srs_id      INTEGER,
	CONSTRAINT fk_gc_r_srs_id FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
);

CREATE TABLE gpkg_geometry_columns (
	table_name         TEXT NOT NULL,
	column_name        TEXT NOT NULL,
	geometry_type_name TEXT NOT NULL,
	srs_id             INTEGER NOT NULL,
	z                  TINYINT NOT NULL,
	m                  TINYINT NOT NULL,
	CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name),
	CONSTRAINT fk_gc_tn FOREIGN KEY (table_name) REFERENCES gpkg_contents(table_name),
	CONSTRAINT fk_gc_srs FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
);

INSERT INTO gpkg_spatial_ref_sys VALUES
	('Undefined cartesian SRS', -1, 'NONE', -1, 'undefined', 'undefined cartesian coordinate reference system'),
	('Undefined geographic SRS', 0, 'NONE', 0, 'undefined', 'undefined geographic coordinate reference system'),
	('WGS 84 geodetic', 4326, 'EPSG', 4326,
	 'GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]]',
	 'longitude/latitude coordinates in decimal degrees on the WGS 84 spheroid');
`

// GeoPackageOptions configures WriteGeoPackage.
type GeoPackageOptions struct {
	Table string
}

// WriteGeoPackage writes ds as a single feature table. An existing file at
// path is replaced.
func WriteGeoPackage(ctx context.Context, path string, ds *exposure.Dataset, opts GeoPackageOptions) error {
	table := opts.Table
	if table == "" {
		table = DefaultGeoPackageTable
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return eris.Wrapf(err, "export: remove old %s", path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return eris.Wrapf(err, "export: open geopackage %s", path)
	}
	defer db.Close() //nolint:errcheck

	for _, stmt := range []string{
		fmt.Sprintf("PRAGMA application_id = %d", gpkgApplicationID),
		fmt.Sprintf("PRAGMA user_version = %d", gpkgUserVersion),
		gpkgCore,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return eris.Wrap(err, "export: geopackage schema")
		}
	}

	srsID, err := registerSRS(ctx, db, ds)
	if err != nil {
		return err
	}

	cols := attributeColumns(ds)
	if err := createFeatureTable(ctx, db, table, cols, srsID); err != nil {
		return err
	}
	env, err := insertFeatures(ctx, db, table, cols, ds, srsID)
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx,
		`INSERT INTO gpkg_contents (table_name, data_type, identifier, min_x, min_y, max_x, max_y, srs_id)
		 VALUES (?, 'features', ?, ?, ?, ?, ?, ?)`,
		table, table, nullFloat(env, 0), nullFloat(env, 1), nullFloat(env, 2), nullFloat(env, 3), srsID,
	); err != nil {
		return eris.Wrap(err, "export: geopackage contents")
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO gpkg_geometry_columns VALUES (?, 'geom', 'GEOMETRY', ?, 0, 0)`, table, srsID,
	); err != nil {
		return eris.Wrap(err, "export: geopackage geometry columns")
	}

	zap.L().Info("export: wrote geopackage",
		zap.String("path", path),
		zap.String("table", table),
		zap.Int("features", len(ds.Records)),
	)
	return nil
}

func registerSRS(ctx context.Context, db *sql.DB, ds *exposure.Dataset) (int, error) {
	if ds.CRS == nil {
		return -1, nil
	}
	code := ds.CRS.EPSG()
	if code == 4326 {
		return code, nil
	}
	srsID, org, orgID := code, "EPSG", code
	if code == 0 {
		srsID, org, orgID = gpkgCustomSRS, "NONE", gpkgCustomSRS
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO gpkg_spatial_ref_sys VALUES (?, ?, ?, ?, ?, ?)`,
		ds.CRS.String(), srsID, org, orgID, ds.CRS.Def, "",
	); err != nil {
		return 0, eris.Wrap(err, "export: geopackage srs")
	}
	return srsID, nil
}

type column struct {
	field string
	name  string
	sql   string
}

var reservedColumns = []string{
	"fid", "geom",
	exposure.FieldBurnMean, exposure.FieldBurnMin, exposure.FieldBurnCount,
	exposure.FieldBurnNodata, exposure.FieldBurnExposed, exposure.FieldBurnNorm,
}

func attributeColumns(ds *exposure.Dataset) []column {
	cols := make([]column, 0, len(ds.Fields))
	for _, f := range ds.Fields {
		if slices.Contains(reservedColumns, strings.ToLower(f)) {
			zap.L().Warn("export: attribute shadows an output column, skipped", zap.String("field", f))
			continue
		}
		typ := "TEXT"
		switch ds.FieldTypes[f] {
		case 'N', 'F':
			typ = "REAL"
		case 'L':
			typ = "BOOLEAN"
		}
		cols = append(cols, column{field: f, name: quoteIdent(f), sql: typ})
	}
	return cols
}

func createFeatureTable(ctx context.Context, db *sql.DB, table string, cols []column, srsID int) error {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n\tfid INTEGER PRIMARY KEY AUTOINCREMENT,\n\tgeom GEOMETRY", quoteIdent(table))
	for _, c := range cols {
		fmt.Fprintf(&b, ",\n\t%s %s", c.name, c.sql)
	}
	fmt.Fprintf(&b, ",\n\t%s REAL,\n\t%s REAL,\n\t%s INTEGER,\n\t%s INTEGER,\n\t%s INTEGER,\n\t%s REAL\n)",
		exposure.FieldBurnMean, exposure.FieldBurnMin, exposure.FieldBurnCount,
		exposure.FieldBurnNodata, exposure.FieldBurnExposed, exposure.FieldBurnNorm)

	if _, err := db.ExecContext(ctx, b.String()); err != nil {
		return eris.Wrapf(err, "export: create table %s (srs %d)", table, srsID)
	}
	return nil
}

func insertFeatures(ctx context.Context, db *sql.DB, table string, cols []column, ds *exposure.Dataset, srsID int) (*geom.Bounds, error) {
	names := []string{"fid", "geom"}
	for _, c := range cols {
		names = append(names, c.name)
	}
	names = append(names, exposure.FieldBurnMean, exposure.FieldBurnMin, exposure.FieldBurnCount,
		exposure.FieldBurnNodata, exposure.FieldBurnExposed, exposure.FieldBurnNorm)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "export: begin geopackage tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(names, ", "), placeholders))
	if err != nil {
		return nil, eris.Wrap(err, "export: prepare geopackage insert")
	}
	defer stmt.Close() //nolint:errcheck

	var env *geom.Bounds
	for _, rec := range ds.Records {
		blob, err := gpkgBlob(rec.Geom, int32(srsID))
		if err != nil {
			return nil, eris.Wrapf(err, "export: feature %d", rec.FeatureID)
		}
		if rec.Geom != nil && !rec.Geom.Empty() {
			if env == nil {
				env = geom.NewBounds(geom.XY)
			}
			env.Extend(rec.Geom)
		}

		var geomArg any
		if blob != nil {
			geomArg = blob
		}
		args := make([]any, 0, len(names))
		args = append(args, rec.FeatureID+1, geomArg)
		for _, c := range cols {
			args = append(args, sqlAttr(ds.FieldTypes[c.field], rec.Attrs[c.field]))
		}
		args = append(args, ptrValue(rec.BurnMean), ptrValue(rec.BurnMin), rec.BurnCount,
			rec.BurnNodata, rec.BurnExposed, ptrValue(rec.BurnNorm))
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return nil, eris.Wrapf(err, "export: insert feature %d", rec.FeatureID)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "export: commit geopackage")
	}
	return env, nil
}

// gpkgBlob encodes g as a GeoPackage binary: GP header with an XY
// envelope, then little-endian WKB. Nil geometries are stored as NULL.
func gpkgBlob(g geom.T, srsID int32) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	flags := byte(0x01)
	empty := g.Empty()
	if empty {
		flags |= 0x10
	} else {
		flags |= 0x02
	}
	buf.Write([]byte{'G', 'P', 0, flags})
	_ = binary.Write(&buf, binary.LittleEndian, srsID)
	if !empty {
		b := g.Bounds()
		for _, v := range []float64{b.Min(0), b.Max(0), b.Min(1), b.Max(1)} {
			_ = binary.Write(&buf, binary.LittleEndian, v)
		}
	}
	data, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "export: encode WKB")
	}
	buf.Write(data)
	return buf.Bytes(), nil
}

func sqlAttr(typ byte, s string) any {
	switch v := attrValue(typ, s).(type) {
	case int64:
		return float64(v)
	default:
		return v
	}
}

func ptrValue(p *float64) any {
	if p == nil || math.IsNaN(*p) {
		return nil
	}
	return *p
}

func nullFloat(b *geom.Bounds, i int) any {
	if b == nil {
		return nil
	}
	switch i {
	case 0:
		return b.Min(0)
	case 1:
		return b.Min(1)
	case 2:
		return b.Max(0)
	default:
		return b.Max(1)
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
