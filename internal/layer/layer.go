package layer

import (
	"github.com/ctessum/geom"

	"github.com/sells-group/tract-apportion/internal/geometry"
)

// Feature is one geometry with its attribute values, ordered by the
// owning layer's schema.
type Feature struct {
	ID       int64
	Geometry geom.Geom
	Values   []any
}

// Float returns the i-th value as a float64. ok is false for nil and
// non-numeric values.
func (f *Feature) Float(i int) (float64, bool) {
	if i < 0 || i >= len(f.Values) {
		return 0, false
	}
	switch v := f.Values[i].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Layer is a named, immutable collection of features sharing a schema.
type Layer struct {
	Name     string
	Schema   *Schema
	CRS      geometry.CRS
	Features []*Feature
}

// New creates a layer.
func New(name string, schema *Schema, crs geometry.CRS, features []*Feature) *Layer {
	return &Layer{Name: name, Schema: schema, CRS: crs, Features: features}
}

// Len returns the feature count.
func (l *Layer) Len() int { return len(l.Features) }

// Bounds returns the extent of all feature geometries, or nil for a layer
// without geometry.
func (l *Layer) Bounds() *geom.Bounds {
	var b *geom.Bounds
	for _, f := range l.Features {
		if f.Geometry == nil {
			continue
		}
		if b == nil {
			b = geom.NewBounds()
		}
		b.Extend(f.Geometry.Bounds())
	}
	return b
}

// Filter returns a layer holding the features for which keep is true. The
// features themselves are shared, not copied.
func (l *Layer) Filter(keep func(*Feature) bool) *Layer {
	out := make([]*Feature, 0, len(l.Features))
	for _, f := range l.Features {
		if keep(f) {
			out = append(out, f)
		}
	}
	return New(l.Name, l.Schema, l.CRS, out)
}

// Reproject returns a copy of the layer with every geometry transformed.
func (l *Layer) Reproject(r *geometry.Reprojector, crs geometry.CRS) (*Layer, error) {
	if r == nil {
		return l, nil
	}
	out := make([]*Feature, len(l.Features))
	for i, f := range l.Features {
		g, err := r.Apply(f.Geometry)
		if err != nil {
			return nil, err
		}
		out[i] = &Feature{ID: f.ID, Geometry: g, Values: f.Values}
	}
	return New(l.Name, l.Schema, crs, out), nil
}

// Conform maps the layer's features onto schema s by field name. Fields
// missing from this layer become nil; values are coerced to the target type
// and left nil when they cannot be.
func (l *Layer) Conform(s *Schema) *Layer {
	if l.Schema == s {
		return l
	}

	src := make([]int, s.Len())
	for i := range src {
		src[i] = -1
		if j, ok := l.Schema.Index(s.Field(i).Name); ok {
			src[i] = j
		}
	}

	out := make([]*Feature, len(l.Features))
	for k, f := range l.Features {
		vals := make([]any, s.Len())
		for i, j := range src {
			if j < 0 || j >= len(f.Values) {
				continue
			}
			if v, err := CoerceValue(s.Field(i).Type, f.Values[j]); err == nil {
				vals[i] = v
			}
		}
		out[k] = &Feature{ID: f.ID, Geometry: f.Geometry, Values: vals}
	}
	return New(l.Name, s, l.CRS, out)
}
