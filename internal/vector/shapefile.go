package vector

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tract-apportion/internal/geometry"
	"github.com/sells-group/tract-apportion/internal/layer"
)

// dbfNameLen is the longest field name a DBF header can hold.
const dbfNameLen = 10

// readShapefile loads a shapefile and its sibling .prj, if any.
func readShapefile(ctx context.Context, path string) (*layer.Layer, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "vector: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	dbf := reader.Fields()
	fields := make([]layer.Field, len(dbf))
	for i, f := range dbf {
		fields[i] = layer.Field{
			Name:      strings.TrimRight(f.String(), "\x00"),
			Type:      dbfFieldType(f),
			Width:     int(f.Size),
			Precision: int(f.Precision),
		}
	}
	schema, err := layer.NewSchema(fields...)
	if err != nil {
		return nil, eris.Wrapf(err, "vector: schema of %s", path)
	}

	var features []*layer.Feature
	var skipped, badValues int

	for reader.Next() {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "vector: read shapefile")
		}

		n, shape := reader.Shape()
		g, err := geometry.FromShape(shape)
		if err != nil {
			skipped++
			continue
		}

		vals := make([]any, len(fields))
		for i, f := range fields {
			v, err := layer.ParseValue(f.Type, reader.Attribute(i))
			if err != nil {
				badValues++
				continue
			}
			vals[i] = v
		}

		features = append(features, &layer.Feature{ID: int64(n) + 1, Geometry: g, Values: vals})
	}

	if skipped > 0 || badValues > 0 {
		zap.L().Debug("vector: skipped shapefile content",
			zap.String("path", path),
			zap.Int("skipped_shapes", skipped),
			zap.Int("bad_values", badValues),
		)
	}

	crs, err := readPrj(path)
	if err != nil {
		return nil, err
	}

	return layer.New("", schema, crs, features), nil
}

func dbfFieldType(f shp.Field) layer.FieldType {
	switch f.Fieldtype {
	case 'N':
		if f.Precision > 0 {
			return layer.FieldFloat
		}
		return layer.FieldInteger
	case 'F':
		return layer.FieldFloat
	case 'L':
		return layer.FieldBoolean
	default:
		return layer.FieldString
	}
}

func prjPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".prj"
}

func readPrj(path string) (geometry.CRS, error) {
	data, err := os.ReadFile(prjPath(path))
	if errors.Is(err, fs.ErrNotExist) {
		return geometry.CRS{}, nil
	}
	if err != nil {
		return geometry.CRS{}, eris.Wrap(err, "vector: read .prj")
	}
	return geometry.CRSFromWKT(string(data), 0), nil
}

// writeShapefile writes l as a shapefile. Field names longer than the DBF
// limit are truncated and made unique.
func writeShapefile(ctx context.Context, path string, l *layer.Layer) error {
	st, err := layerShapeType(l)
	if err != nil {
		return err
	}

	w, err := shp.Create(path, st)
	if err != nil {
		return eris.Wrapf(err, "vector: create shapefile %s", path)
	}
	defer w.Close()

	if err := w.SetFields(dbfFields(l.Name, l.Schema)); err != nil {
		return eris.Wrap(err, "vector: set shapefile fields")
	}

	for _, f := range l.Features {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "vector: write shapefile")
		}

		s, err := geometry.ToShape(f.Geometry)
		if err != nil {
			return eris.Wrapf(err, "vector: feature %d", f.ID)
		}
		row := int(w.Write(s))

		for i, v := range f.Values {
			if v == nil {
				continue
			}
			if err := w.WriteAttribute(row, i, dbfValue(v)); err != nil {
				return eris.Wrapf(err, "vector: write attribute %s of feature %d", l.Schema.Field(i).Name, f.ID)
			}
		}
	}

	if wkt := l.CRS.WKT(); wkt != "" {
		if err := os.WriteFile(prjPath(path), []byte(wkt), 0o644); err != nil {
			return eris.Wrap(err, "vector: write .prj")
		}
	}
	return nil
}

func layerShapeType(l *layer.Layer) (shp.ShapeType, error) {
	for _, f := range l.Features {
		if f.Geometry != nil {
			return geometry.ShapeType(f.Geometry)
		}
	}
	return shp.NULL, eris.Errorf("vector: layer %q has no geometry to write", l.Name)
}

func dbfFields(layerName string, s *layer.Schema) []shp.Field {
	used := make(map[string]bool, s.Len())
	fields := make([]shp.Field, s.Len())

	for i, f := range s.Fields() {
		name := dbfName(f.Name, used)
		if name != f.Name {
			zap.L().Warn("vector: shapefile field name shortened",
				zap.String("layer", layerName),
				zap.String("field", f.Name),
				zap.String("dbf_name", name),
			)
		}

		switch f.Type {
		case layer.FieldInteger:
			fields[i] = shp.NumberField(name, 18)
		case layer.FieldFloat:
			prec := f.Precision
			if prec <= 0 || prec > 15 {
				prec = 8
			}
			fields[i] = shp.FloatField(name, 24, uint8(prec))
		case layer.FieldBoolean:
			fields[i] = shp.Field{Fieldtype: 'L', Size: 1}
			copy(fields[i].Name[:], name)
		default:
			width := f.Width
			if width <= 0 || width > 254 {
				width = 254
			}
			fields[i] = shp.StringField(name, uint8(width))
		}
	}
	return fields
}

// dbfName truncates name to the DBF limit, adding a numeric suffix when the
// truncated name is already taken.
func dbfName(name string, used map[string]bool) string {
	base := name
	if len(base) > dbfNameLen {
		base = base[:dbfNameLen]
	}
	candidate := base
	for n := 1; used[strings.ToUpper(candidate)]; n++ {
		suffix := "_" + strconv.Itoa(n)
		candidate = base
		if len(candidate)+len(suffix) > dbfNameLen {
			candidate = candidate[:dbfNameLen-len(suffix)]
		}
		candidate += suffix
	}
	used[strings.ToUpper(candidate)] = true
	return candidate
}

func dbfValue(v any) any {
	switch x := v.(type) {
	case int64:
		return int(x)
	case bool:
		if x {
			return "T"
		}
		return "F"
	default:
		return v
	}
}
