package geometry

import (
	"testing"

	"github.com/ctessum/geom"
	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromShape_Point(t *testing.T) {
	g, err := FromShape(&shp.Point{X: -80.19, Y: 25.77})
	require.NoError(t, err)
	assert.Equal(t, geom.Point{X: -80.19, Y: 25.77}, g)
}

func TestFromShape_MultiPartPolygon(t *testing.T) {
	poly := &shp.Polygon{
		NumParts: 2,
		Parts:    []int32{0, 5},
		Points: []shp.Point{
			// Ring 1
			{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 0}, {X: 0, Y: 0},
			// Ring 2
			{X: 20, Y: 0}, {X: 20, Y: 10}, {X: 30, Y: 10}, {X: 30, Y: 0}, {X: 20, Y: 0},
		},
	}

	g, err := FromShape(poly)
	require.NoError(t, err)

	p, ok := g.(geom.Polygon)
	require.True(t, ok)
	require.Len(t, p, 2)
	assert.Len(t, p[0], 5)
	assert.InDelta(t, 200.0, p.Area(), 1e-9)
}

func TestFromShape_NilAndNull(t *testing.T) {
	g, err := FromShape(nil)
	require.NoError(t, err)
	assert.Nil(t, g)

	g, err = FromShape(&shp.Null{})
	require.NoError(t, err)
	assert.Nil(t, g)
}

func TestFromShape_EmptyPolygon(t *testing.T) {
	g, err := FromShape(&shp.Polygon{})
	require.NoError(t, err)
	assert.Nil(t, g)
}

func TestFromShape_Unsupported(t *testing.T) {
	_, err := FromShape(&shp.PolyLine{})
	assert.Error(t, err)
}

func TestToShape_ClosesRings(t *testing.T) {
	open := geom.Polygon{{{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 0}}}

	s, err := ToShape(open)
	require.NoError(t, err)

	poly, ok := s.(*shp.Polygon)
	require.True(t, ok)
	assert.Equal(t, int32(1), poly.NumParts)
	require.Len(t, poly.Points, 5)
	assert.Equal(t, poly.Points[0], poly.Points[4])
}

func TestToShape_RoundTripsThroughFromShape(t *testing.T) {
	orig := geom.Polygon{
		{{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 0}, {X: 0, Y: 0}},
		{{X: 2, Y: 2}, {X: 4, Y: 2}, {X: 4, Y: 4}, {X: 2, Y: 4}, {X: 2, Y: 2}},
	}

	s, err := ToShape(orig)
	require.NoError(t, err)
	back, err := FromShape(s)
	require.NoError(t, err)

	assert.Equal(t, orig, back)
	assert.InDelta(t, 96.0, back.(geom.Polygon).Area(), 1e-9)
}

func TestToShape_DegeneratePolygonIsNull(t *testing.T) {
	s, err := ToShape(geom.Polygon{{{X: 0, Y: 0}, {X: 1, Y: 1}}})
	require.NoError(t, err)
	_, ok := s.(*shp.Null)
	assert.True(t, ok)
}

func TestShapeType(t *testing.T) {
	st, err := ShapeType(geom.Point{})
	require.NoError(t, err)
	assert.Equal(t, shp.POINT, st)

	st, err = ShapeType(geom.Polygon{})
	require.NoError(t, err)
	assert.Equal(t, shp.POLYGON, st)

	_, err = ShapeType(geom.LineString{})
	assert.Error(t, err)
}
