// Package layer holds the in-memory feature model: typed schemas, features
// and named layers.
package layer

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// FieldType is the storage type of an attribute.
type FieldType int

// Attribute types. Values held in a Feature are nil or one of string,
// int64, float64 or bool, matching the field type.
const (
	FieldString FieldType = iota
	FieldInteger
	FieldFloat
	FieldBoolean
)

func (t FieldType) String() string {
	switch t {
	case FieldInteger:
		return "integer"
	case FieldFloat:
		return "float"
	case FieldBoolean:
		return "boolean"
	default:
		return "string"
	}
}

// Numeric reports whether values of this type can be scaled.
func (t FieldType) Numeric() bool {
	return t == FieldInteger || t == FieldFloat
}

// Field describes one attribute column.
type Field struct {
	Name      string
	Type      FieldType
	Width     int
	Precision int
}

// Schema is an ordered, immutable set of fields with unique names.
type Schema struct {
	fields []Field
	index  map[string]int
}

// NewSchema validates and builds a schema. Names must be non-empty and
// unique.
func NewSchema(fields ...Field) (*Schema, error) {
	s := &Schema{
		fields: make([]Field, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		if strings.TrimSpace(f.Name) == "" {
			return nil, eris.Errorf("layer: field %d has an empty name", i)
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, eris.Errorf("layer: duplicate field %q", f.Name)
		}
		s.fields[i] = f
		s.index[f.Name] = i
	}
	return s, nil
}

// Len returns the number of fields.
func (s *Schema) Len() int { return len(s.fields) }

// Field returns the i-th field.
func (s *Schema) Field(i int) Field { return s.fields[i] }

// Fields returns a copy of the field list.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Names returns the field names in order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Name
	}
	return out
}

// Index returns the position of the named field.
func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Extend returns a new schema with fields appended.
func (s *Schema) Extend(fields ...Field) (*Schema, error) {
	all := append(s.Fields(), fields...)
	return NewSchema(all...)
}

// ParseValue converts a raw text attribute (shapefile DBF, SQLite TEXT) to
// the Go value for t. Blank input is nil.
func ParseValue(t FieldType, raw string) (any, error) {
	raw = strings.TrimSpace(strings.TrimRight(raw, "\x00"))
	if raw == "" {
		return nil, nil
	}

	switch t {
	case FieldInteger:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			// DBF numeric columns sometimes carry decimals despite zero
			// precision; those round to the nearest integer.
			f, ferr := strconv.ParseFloat(raw, 64)
			if ferr != nil {
				return nil, eris.Wrapf(err, "layer: parse integer %q", raw)
			}
			return int64(math.Round(f)), nil
		}
		return n, nil

	case FieldFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "layer: parse float %q", raw)
		}
		return f, nil

	case FieldBoolean:
		switch strings.ToUpper(raw) {
		case "T", "Y", "TRUE", "1":
			return true, nil
		case "F", "N", "FALSE", "0":
			return false, nil
		case "?":
			return nil, nil
		}
		return nil, eris.Errorf("layer: parse boolean %q", raw)

	default:
		return raw, nil
	}
}

// CoerceValue converts v to the Go type for t, returning an error when the
// value cannot represent the type.
func CoerceValue(t FieldType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch t {
	case FieldString:
		switch x := v.(type) {
		case string:
			return x, nil
		case int64:
			return strconv.FormatInt(x, 10), nil
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64), nil
		case bool:
			return strconv.FormatBool(x), nil
		}
	case FieldInteger:
		switch x := v.(type) {
		case int64:
			return x, nil
		case float64:
			return int64(math.Round(x)), nil
		case string:
			return ParseValue(t, x)
		}
	case FieldFloat:
		switch x := v.(type) {
		case float64:
			return x, nil
		case int64:
			return float64(x), nil
		case string:
			return ParseValue(t, x)
		}
	case FieldBoolean:
		switch x := v.(type) {
		case bool:
			return x, nil
		case int64:
			return x != 0, nil
		case string:
			return ParseValue(t, x)
		}
	}
	return nil, eris.Errorf("layer: cannot store %T as %s", v, t)
}
