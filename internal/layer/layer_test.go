package layer

import (
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tract-apportion/internal/geometry"
)

func TestNewSchema_RejectsDuplicates(t *testing.T) {
	_, err := NewSchema(Field{Name: "GEOID"}, Field{Name: "GEOID"})
	assert.Error(t, err)
}

func TestNewSchema_RejectsEmptyName(t *testing.T) {
	_, err := NewSchema(Field{Name: " "})
	assert.Error(t, err)
}

func TestSchema_IndexAndExtend(t *testing.T) {
	s, err := NewSchema(
		Field{Name: "GEOID", Type: FieldString},
		Field{Name: "Population", Type: FieldInteger},
	)
	require.NoError(t, err)

	i, ok := s.Index("Population")
	require.True(t, ok)
	assert.Equal(t, 1, i)

	_, ok = s.Index("population")
	assert.False(t, ok, "lookups are case sensitive")

	ext, err := s.Extend(Field{Name: "Population_recalculated", Type: FieldFloat})
	require.NoError(t, err)
	assert.Equal(t, 3, ext.Len())
	assert.Equal(t, 2, s.Len(), "original schema untouched")
	assert.Equal(t, []string{"GEOID", "Population", "Population_recalculated"}, ext.Names())

	_, err = s.Extend(Field{Name: "GEOID"})
	assert.Error(t, err)
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		name    string
		typ     FieldType
		raw     string
		want    any
		wantErr bool
	}{
		{name: "blank is nil", typ: FieldInteger, raw: "   ", want: nil},
		{name: "padded integer", typ: FieldInteger, raw: "  1234", want: int64(1234)},
		{name: "integer with decimals", typ: FieldInteger, raw: "12.0", want: int64(12)},
		{name: "integer with fraction rounds", typ: FieldInteger, raw: "12.7", want: int64(13)},
		{name: "negative integer with fraction rounds", typ: FieldInteger, raw: "-12.5", want: int64(-13)},
		{name: "bad integer", typ: FieldInteger, raw: "12a", wantErr: true},
		{name: "float", typ: FieldFloat, raw: "0.25", want: 0.25},
		{name: "string trims nul", typ: FieldString, raw: "IL\x00\x00", want: "IL"},
		{name: "logical true", typ: FieldBoolean, raw: "T", want: true},
		{name: "logical unknown", typ: FieldBoolean, raw: "?", want: nil},
		{name: "bad float", typ: FieldFloat, raw: "abc", wantErr: true},
		{name: "bad bool", typ: FieldBoolean, raw: "maybe", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseValue(tt.typ, tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoerceValue(t *testing.T) {
	v, err := CoerceValue(FieldFloat, int64(3))
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)

	v, err = CoerceValue(FieldString, 2.5)
	require.NoError(t, err)
	assert.Equal(t, "2.5", v)

	v, err = CoerceValue(FieldInteger, 41.6)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	v, err = CoerceValue(FieldInteger, nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = CoerceValue(FieldInteger, true)
	assert.Error(t, err)
}

func TestFeature_Float(t *testing.T) {
	f := &Feature{Values: []any{"x", int64(4), 2.5, nil}}

	_, ok := f.Float(0)
	assert.False(t, ok)

	v, ok := f.Float(1)
	assert.True(t, ok)
	assert.Equal(t, 4.0, v)

	v, ok = f.Float(2)
	assert.True(t, ok)
	assert.Equal(t, 2.5, v)

	_, ok = f.Float(3)
	assert.False(t, ok)

	_, ok = f.Float(9)
	assert.False(t, ok)
}

func testLayer(t *testing.T) *Layer {
	t.Helper()
	s, err := NewSchema(
		Field{Name: "GEOID", Type: FieldString},
		Field{Name: "Population", Type: FieldInteger},
	)
	require.NoError(t, err)

	return New("tracts", s, geometry.CRS{}, []*Feature{
		{ID: 1, Geometry: geom.Point{X: 0, Y: 0}, Values: []any{"a", int64(10)}},
		{ID: 2, Geometry: geom.Point{X: 5, Y: -2}, Values: []any{"b", int64(20)}},
		{ID: 3, Geometry: nil, Values: []any{"c", nil}},
	})
}

func TestLayer_Bounds(t *testing.T) {
	b := testLayer(t).Bounds()
	require.NotNil(t, b)
	assert.Equal(t, geom.Point{X: 0, Y: -2}, b.Min)
	assert.Equal(t, geom.Point{X: 5, Y: 0}, b.Max)

	empty := New("empty", testLayer(t).Schema, geometry.CRS{}, nil)
	assert.Nil(t, empty.Bounds())
}

func TestLayer_Filter(t *testing.T) {
	l := testLayer(t)
	out := l.Filter(func(f *Feature) bool { return f.ID != 2 })
	assert.Equal(t, 2, out.Len())
	assert.Equal(t, 3, l.Len())
	assert.Same(t, l.Features[0], out.Features[0])
}

func TestLayer_Conform(t *testing.T) {
	l := testLayer(t)
	target, err := NewSchema(
		Field{Name: "Population", Type: FieldFloat},
		Field{Name: "STATE", Type: FieldString},
		Field{Name: "GEOID", Type: FieldString},
	)
	require.NoError(t, err)

	out := l.Conform(target)
	require.Equal(t, 3, out.Len())
	assert.Equal(t, []any{10.0, nil, "a"}, out.Features[0].Values)
	assert.Equal(t, []any{nil, nil, "c"}, out.Features[2].Values)
	assert.Same(t, target, out.Schema)

	assert.Same(t, l, l.Conform(l.Schema))
}

func TestLayer_ReprojectNilIsIdentity(t *testing.T) {
	l := testLayer(t)
	out, err := l.Reproject(nil, geometry.CRS{Def: "EPSG:3857", SRID: 3857})
	require.NoError(t, err)
	assert.Same(t, l, out)
}
