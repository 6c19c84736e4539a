package vector

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strings"
	"time"

	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/wkb"
	_ "modernc.org/sqlite"

	"github.com/sells-group/tract-apportion/internal/geometry"
	"github.com/sells-group/tract-apportion/internal/layer"
)

// GeoPackage container constants (OGC 12-128r18).
const (
	gpkgApplicationID = 0x47504B47 // "GPKG"
	gpkgUserVersion   = 10300
	gpkgGeomColumn    = "geom"

	// customSRSBase numbers spatial reference rows that have no EPSG code.
	customSRSBase = 100000
)

const gpkgMigration = `
CREATE TABLE IF NOT EXISTS gpkg_spatial_ref_sys (
	srs_name                 TEXT NOT NULL,
	srs_id                   INTEGER NOT NULL PRIMARY KEY,
	organization             TEXT NOT NULL,
	organization_coordsys_id INTEGER NOT NULL,
	definition               TEXT NOT NULL,
	description              TEXT
);

CREATE TABLE IF NOT EXISTS gpkg_contents (
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

CREATE TABLE IF NOT EXISTS gpkg_geometry_columns (
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

INSERT OR IGNORE INTO gpkg_spatial_ref_sys VALUES
	('Undefined cartesian SRS', -1, 'NONE', -1, 'undefined', 'undefined cartesian coordinate reference system'),
	('Undefined geographic SRS', 0, 'NONE', 0, 'undefined', 'undefined geographic coordinate reference system');
`

// writeGeoPackage writes l as the single feature table of a new GeoPackage.
func writeGeoPackage(ctx context.Context, path string, l *layer.Layer, opts WriteOptions) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return eris.Wrapf(err, "vector: replace %s", path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return eris.Wrap(err, "vector: open geopackage")
	}
	defer db.Close() //nolint:errcheck
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		fmt.Sprintf("PRAGMA application_id = %d", gpkgApplicationID),
		fmt.Sprintf("PRAGMA user_version = %d", gpkgUserVersion),
		gpkgMigration,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return eris.Wrap(err, "vector: initialise geopackage")
		}
	}

	srsID, err := ensureSRS(ctx, db, l.CRS)
	if err != nil {
		return err
	}

	table := opts.Table
	if table == "" {
		table = l.Name
	}
	if table == "" {
		table = "features"
	}

	cols := make([]string, 0, l.Schema.Len()+2)
	cols = append(cols, `"fid" INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL`)
	cols = append(cols, fmt.Sprintf("%s %s", quoteIdent(gpkgGeomColumn), gpkgGeometryType(l)))
	for _, f := range l.Schema.Fields() {
		cols = append(cols, fmt.Sprintf("%s %s", quoteIdent(f.Name), sqliteType(f.Type)))
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(table), strings.Join(cols, ", "))); err != nil {
		return eris.Wrapf(err, "vector: create table %s", table)
	}

	var minX, minY, maxX, maxY any
	if b := l.Bounds(); b != nil {
		minX, minY, maxX, maxY = b.Min.X, b.Min.Y, b.Max.X, b.Max.Y
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO gpkg_contents (table_name, data_type, identifier, description, min_x, min_y, max_x, max_y, srs_id)
		 VALUES (?, 'features', ?, ?, ?, ?, ?, ?, ?)`,
		table, table, opts.Description, minX, minY, maxX, maxY, srsID,
	); err != nil {
		return eris.Wrap(err, "vector: register contents")
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO gpkg_geometry_columns (table_name, column_name, geometry_type_name, srs_id, z, m) VALUES (?, ?, ?, ?, 0, 0)`,
		table, gpkgGeomColumn, gpkgGeometryType(l), srsID,
	); err != nil {
		return eris.Wrap(err, "vector: register geometry column")
	}

	return insertFeatures(ctx, db, table, l, srsID)
}

func insertFeatures(ctx context.Context, db *sql.DB, table string, l *layer.Layer, srsID int) error {
	names := make([]string, 0, l.Schema.Len()+1)
	names = append(names, quoteIdent(gpkgGeomColumn))
	for _, n := range l.Schema.Names() {
		names = append(names, quoteIdent(n))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "vector: begin insert")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(names, ", "), placeholders))
	if err != nil {
		return eris.Wrap(err, "vector: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	args := make([]any, len(names))
	for _, f := range l.Features {
		blob, err := encodeGeometry(f.Geometry, srsID)
		if err != nil {
			return eris.Wrapf(err, "vector: encode feature %d", f.ID)
		}
		args[0] = blob
		for i := range l.Schema.Len() {
			args[i+1] = nil
			if i < len(f.Values) {
				args[i+1] = f.Values[i]
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return eris.Wrapf(err, "vector: insert feature %d", f.ID)
		}
	}

	return eris.Wrap(tx.Commit(), "vector: commit features")
}

// ensureSRS registers crs and returns its srs_id. An unset CRS maps to the
// undefined cartesian system.
func ensureSRS(ctx context.Context, db *sql.DB, crs geometry.CRS) (int, error) {
	if crs.IsZero() {
		return -1, nil
	}

	srsID, org, orgID := crs.SRID, "EPSG", crs.SRID
	if srsID == 0 {
		srsID, org, orgID = customSRSBase, "NONE", customSRSBase
	}
	def := crs.WKT()
	if def == "" {
		def = crs.Def
	}

	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO gpkg_spatial_ref_sys (srs_name, srs_id, organization, organization_coordsys_id, definition, description)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		crs.Name(), srsID, org, orgID, def, crs.Def,
	)
	if err != nil {
		return 0, eris.Wrap(err, "vector: register spatial reference")
	}
	return srsID, nil
}

func gpkgGeometryType(l *layer.Layer) string {
	for _, f := range l.Features {
		switch f.Geometry.(type) {
		case geom.Point:
			return "POINT"
		case geom.MultiPoint:
			return "MULTIPOINT"
		case geom.Polygon, geom.MultiPolygon:
			return "MULTIPOLYGON"
		}
	}
	return "GEOMETRY"
}

func sqliteType(t layer.FieldType) string {
	switch t {
	case layer.FieldInteger:
		return "INTEGER"
	case layer.FieldFloat:
		return "REAL"
	case layer.FieldBoolean:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

func fieldTypeOf(decl string) layer.FieldType {
	d := strings.ToUpper(decl)
	switch {
	case d == "BOOLEAN":
		return layer.FieldBoolean
	case strings.Contains(d, "INT"):
		return layer.FieldInteger
	case strings.Contains(d, "REAL"), strings.Contains(d, "FLOA"), strings.Contains(d, "DOUB"):
		return layer.FieldFloat
	default:
		return layer.FieldString
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// encodeGeometry builds a GeoPackage geometry blob: the "GP" header with an
// XY envelope followed by little-endian WKB.
func encodeGeometry(g geom.Geom, srsID int) ([]byte, error) {
	if g == nil {
		return nil, nil
	}

	t, err := geometry.ToT(g, srsID)
	if err != nil {
		return nil, err
	}
	body, err := wkb.Marshal(t, wkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "vector: encode WKB")
	}

	b := g.Bounds()
	buf := make([]byte, 8, 8+32+len(body))
	buf[0], buf[1] = 'G', 'P'
	buf[2] = 0    // version 1
	buf[3] = 0x03 // little endian, [minx, maxx, miny, maxy] envelope
	binary.LittleEndian.PutUint32(buf[4:8], uint32(int32(srsID)))
	for _, v := range []float64{b.Min.X, b.Max.X, b.Min.Y, b.Max.Y} {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
	}
	return append(buf, body...), nil
}

// decodeGeometry parses a GeoPackage geometry blob.
func decodeGeometry(blob []byte) (geom.Geom, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	if len(blob) < 8 || blob[0] != 'G' || blob[1] != 'P' {
		return nil, eris.New("vector: not a geopackage geometry")
	}

	flags := blob[3]
	if flags&0x10 != 0 {
		return nil, nil
	}

	var envelope int
	switch (flags >> 1) & 0x07 {
	case 0:
	case 1:
		envelope = 32
	case 2, 3:
		envelope = 48
	case 4:
		envelope = 64
	default:
		return nil, eris.Errorf("vector: invalid envelope flag in 0x%02x", flags)
	}
	if len(blob) < 8+envelope {
		return nil, eris.New("vector: truncated geopackage geometry")
	}

	t, err := wkb.Unmarshal(blob[8+envelope:])
	if err != nil {
		return nil, eris.Wrap(err, "vector: decode WKB")
	}
	return geometry.FromT(t)
}

// readGeoPackage loads one feature table. An empty table name picks the
// first feature table listed in gpkg_contents.
func readGeoPackage(ctx context.Context, path, table string) (*layer.Layer, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, eris.Wrapf(err, "vector: open geopackage %s", path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "vector: open geopackage")
	}
	defer db.Close() //nolint:errcheck

	if table == "" {
		err := db.QueryRowContext(ctx,
			`SELECT table_name FROM gpkg_contents WHERE data_type = 'features' ORDER BY table_name LIMIT 1`,
		).Scan(&table)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Errorf("vector: %s has no feature tables", path)
		}
		if err != nil {
			return nil, eris.Wrap(err, "vector: list feature tables")
		}
	}

	var geomCol, srsDef string
	var srsID int
	err = db.QueryRowContext(ctx,
		`SELECT c.column_name, c.srs_id, COALESCE(s.definition, '')
		 FROM gpkg_geometry_columns c
		 LEFT JOIN gpkg_spatial_ref_sys s ON s.srs_id = c.srs_id
		 WHERE c.table_name = ?`, table,
	).Scan(&geomCol, &srsID, &srsDef)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Errorf("vector: table %q is not a feature table", table)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "vector: geometry column of %s", table)
	}

	fidCol, fields, err := tableColumns(ctx, db, table, geomCol)
	if err != nil {
		return nil, err
	}
	schema, err := layer.NewSchema(fields...)
	if err != nil {
		return nil, eris.Wrapf(err, "vector: schema of %s", table)
	}

	sel := []string{quoteIdent(fidCol), quoteIdent(geomCol)}
	for _, f := range fields {
		sel = append(sel, quoteIdent(f.Name))
	}
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(sel, ", "), quoteIdent(table), quoteIdent(fidCol)))
	if err != nil {
		return nil, eris.Wrapf(err, "vector: query %s", table)
	}
	defer rows.Close() //nolint:errcheck

	var features []*layer.Feature
	for rows.Next() {
		var fid int64
		var blob []byte
		raw := make([]any, len(fields))
		dest := make([]any, 0, len(fields)+2)
		dest = append(dest, &fid, &blob)
		for i := range raw {
			dest = append(dest, &raw[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, eris.Wrapf(err, "vector: scan %s row", table)
		}

		g, err := decodeGeometry(blob)
		if err != nil {
			return nil, eris.Wrapf(err, "vector: feature %d", fid)
		}
		vals := make([]any, len(fields))
		for i, f := range fields {
			v, err := layer.CoerceValue(f.Type, normalizeDBValue(raw[i]))
			if err != nil {
				return nil, eris.Wrapf(err, "vector: feature %d field %s", fid, f.Name)
			}
			vals[i] = v
		}
		features = append(features, &layer.Feature{ID: fid, Geometry: g, Values: vals})
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "vector: iterate %s", table)
	}

	var crs geometry.CRS
	switch {
	case srsID >= customSRSBase:
		crs = geometry.CRSFromWKT(srsDef, 0)
	case srsID > 0:
		crs = geometry.CRSFromWKT(srsDef, srsID)
	}
	return layer.New(table, schema, crs, features), nil
}

// tableColumns returns the primary key column and the attribute fields of
// table, skipping the geometry column.
func tableColumns(ctx context.Context, db *sql.DB, table, geomCol string) (string, []layer.Field, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return "", nil, eris.Wrapf(err, "vector: describe %s", table)
	}
	defer rows.Close() //nolint:errcheck

	fidCol := ""
	var fields []layer.Field
	for rows.Next() {
		var cid, notNull, pk int
		var name, decl string
		var dflt any
		if err := rows.Scan(&cid, &name, &decl, &notNull, &dflt, &pk); err != nil {
			return "", nil, eris.Wrap(err, "vector: scan column info")
		}
		switch {
		case pk == 1 && fidCol == "":
			fidCol = name
		case strings.EqualFold(name, geomCol):
		default:
			fields = append(fields, layer.Field{Name: name, Type: fieldTypeOf(decl)})
		}
	}
	if err := rows.Err(); err != nil {
		return "", nil, eris.Wrap(err, "vector: iterate column info")
	}
	if fidCol == "" {
		fidCol = "rowid"
	}
	return fidCol, fields, nil
}

func normalizeDBValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case int:
		return int64(x)
	case float32:
		return float64(x)
	default:
		return v
	}
}
