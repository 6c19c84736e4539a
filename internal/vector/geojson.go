package vector

import (
	"encoding/json"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	tgeom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/tract-apportion/internal/geometry"
	"github.com/sells-group/tract-apportion/internal/layer"
)

// rawFeature defers geometry decoding to go-geom so feature ids may be
// either strings or numbers.
type rawFeature struct {
	ID         json.RawMessage `json:"id"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

type rawCollection struct {
	Type     string       `json:"type"`
	Features []rawFeature `json:"features"`
}

// readGeoJSON loads a FeatureCollection. The schema is inferred from the
// property values; coordinates are WGS 84 as RFC 7946 requires.
func readGeoJSON(path string) (*layer.Layer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "vector: read %s", path)
	}

	var fc rawCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrapf(err, "vector: parse %s", path)
	}
	if fc.Type != "FeatureCollection" {
		return nil, eris.Errorf("vector: %s is not a FeatureCollection", path)
	}

	props := make([]map[string]any, len(fc.Features))
	for i, f := range fc.Features {
		props[i] = f.Properties
	}
	fields := inferFields(props)
	schema, err := layer.NewSchema(fields...)
	if err != nil {
		return nil, eris.Wrapf(err, "vector: schema of %s", path)
	}

	features := make([]*layer.Feature, 0, len(fc.Features))
	for i, f := range fc.Features {
		var g geom.Geom
		if len(f.Geometry) > 0 && string(f.Geometry) != "null" {
			var t tgeom.T
			if err := geojson.Unmarshal(f.Geometry, &t); err != nil {
				return nil, eris.Wrapf(err, "vector: geometry of feature %d", i)
			}
			if g, err = geometry.FromT(t); err != nil {
				return nil, eris.Wrapf(err, "vector: feature %d", i)
			}
		}

		id := int64(i + 1)
		if n, err := strconv.ParseInt(strings.Trim(string(f.ID), `"`), 10, 64); err == nil {
			id = n
		}

		vals := make([]any, len(fields))
		for j, fd := range fields {
			raw := f.Properties[fd.Name]
			switch raw.(type) {
			case map[string]any, []any:
				b, _ := json.Marshal(raw)
				raw = string(b)
			}
			if v, err := layer.CoerceValue(fd.Type, raw); err == nil {
				vals[j] = v
			}
		}
		features = append(features, &layer.Feature{ID: id, Geometry: g, Values: vals})
	}

	return layer.New("", schema, geometry.CRS{Def: "EPSG:4326", SRID: 4326}, features), nil
}

// inferFields builds a field per property key in sorted order. A key whose
// values are all integral numbers is an integer, all numbers a float, all
// booleans a boolean; anything mixed is a string.
func inferFields(rows []map[string]any) []layer.Field {
	types := make(map[string]layer.FieldType)
	for _, row := range rows {
		for k, v := range row {
			var t layer.FieldType
			switch x := v.(type) {
			case nil:
				if _, seen := types[k]; !seen {
					types[k] = layer.FieldInteger
				}
				continue
			case float64:
				t = layer.FieldFloat
				if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
					t = layer.FieldInteger
				}
			case bool:
				t = layer.FieldBoolean
			default:
				t = layer.FieldString
			}

			prev, seen := types[k]
			switch {
			case !seen:
				types[k] = t
			case prev == t:
			case prev.Numeric() && t.Numeric():
				types[k] = layer.FieldFloat
			default:
				types[k] = layer.FieldString
			}
		}
	}

	names := make([]string, 0, len(types))
	for k := range types {
		names = append(names, k)
	}
	sort.Strings(names)

	fields := make([]layer.Field, len(names))
	for i, n := range names {
		fields[i] = layer.Field{Name: n, Type: types[n]}
	}
	return fields
}

// writeGeoJSON writes l as a FeatureCollection in the layer's coordinates.
func writeGeoJSON(path string, l *layer.Layer) error {
	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(l.Features))}
	names := l.Schema.Names()

	for _, f := range l.Features {
		g, err := geometry.ToT(f.Geometry, l.CRS.SRID)
		if err != nil {
			return eris.Wrapf(err, "vector: feature %d", f.ID)
		}
		props := make(map[string]any, len(names))
		for i, n := range names {
			if i < len(f.Values) {
				props[n] = f.Values[i]
			}
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         strconv.FormatInt(f.ID, 10),
			Geometry:   g,
			Properties: props,
		})
	}

	data, err := json.Marshal(&fc)
	if err != nil {
		return eris.Wrap(err, "vector: encode geojson")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "vector: write %s", path)
	}
	return nil
}
