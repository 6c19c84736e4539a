package geometry

import (
	"math"
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircle(t *testing.T) {
	c := Circle(geom.Point{X: 100, Y: 200}, 10, DefaultCircleSegments)

	require.Len(t, c, 1)
	require.Len(t, c[0], DefaultCircleSegments+1)
	assert.Equal(t, c[0][0], c[0][DefaultCircleSegments])

	for _, p := range c[0] {
		assert.InDelta(t, 10.0, math.Hypot(p.X-100, p.Y-200), 1e-9)
	}

	// Inscribed polygon area approaches pi*r^2 from below.
	area := c.Area()
	assert.Less(t, area, math.Pi*100)
	assert.InDelta(t, math.Pi*100, area, math.Pi)
}

func TestCircle_MinimumSegments(t *testing.T) {
	c := Circle(geom.Point{}, 1, 1)
	assert.Len(t, c[0], 4)
}

func TestCircle_MilesToMeters(t *testing.T) {
	assert.InDelta(t, 16093.44, 10*MetersPerMile, 1e-9)
}

func TestGeodesicCircle(t *testing.T) {
	center := geom.Point{X: -87.63, Y: 41.88}
	radius := 10 * MetersPerMile
	c := GeodesicCircle(center, radius, 36)

	require.Len(t, c, 1)
	require.Len(t, c[0], 37)
	assert.Equal(t, c[0][0], c[0][36])
	for _, p := range c[0] {
		assert.InDelta(t, radius, GreatCircleDistance(center, p), 0.01)
	}

	// First vertex due north, quarter turn due east.
	assert.InDelta(t, center.X, c[0][0].X, 1e-9)
	assert.Greater(t, c[0][0].Y, center.Y)
	assert.Greater(t, c[0][9].X, center.X)
	assert.InDelta(t, center.Y, c[0][9].Y, 0.01)

	// East-west extent widens with latitude.
	b := c.Bounds()
	assert.Greater(t, b.Max.X-b.Min.X, b.Max.Y-b.Min.Y)
}

func TestGreatCircleDistance(t *testing.T) {
	assert.InDelta(t, 0.0, GreatCircleDistance(geom.Point{X: 10, Y: 10}, geom.Point{X: 10, Y: 10}), 1e-9)
	// One degree of longitude on the equator.
	assert.InDelta(t, EarthRadius*math.Pi/180, GreatCircleDistance(geom.Point{}, geom.Point{X: 1}), 1e-6)
}
