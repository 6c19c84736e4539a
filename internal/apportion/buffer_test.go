package apportion

import (
	"math"
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tract-apportion/internal/geometry"
	"github.com/sells-group/tract-apportion/internal/layer"
)

func pointLayer(t *testing.T, crs geometry.CRS) *layer.Layer {
	t.Helper()
	s, err := layer.NewSchema(
		layer.Field{Name: "LocationID", Type: layer.FieldInteger},
		layer.Field{Name: "LocationNa", Type: layer.FieldString},
	)
	require.NoError(t, err)
	return layer.New("sample-FH-locations", s, crs, []*layer.Feature{
		{ID: 1, Geometry: geom.Point{X: 1000, Y: 2000}, Values: []any{int64(11), "North"}},
		{ID: 2, Geometry: geom.MultiPoint{{X: 0, Y: 0}}, Values: []any{int64(12), "South"}},
		{ID: 3, Geometry: nil, Values: []any{int64(13), "Nowhere"}},
	})
}

func TestServiceAreas(t *testing.T) {
	radius := 10 * geometry.MetersPerMile
	circles, err := ServiceAreas(pointLayer(t, geometry.CRS{Def: "EPSG:3857", SRID: 3857}), "10mi", radius, 64)
	require.NoError(t, err)

	assert.Equal(t, "10mi", circles.Name)
	assert.Equal(t, 3857, circles.CRS.SRID)
	require.Equal(t, 2, circles.Len())

	c := circles.Features[0]
	assert.Equal(t, int64(1), c.ID)
	assert.Equal(t, []any{int64(11), "North"}, c.Values)

	poly, ok := c.Geometry.(geom.Polygon)
	require.True(t, ok)
	// Near the equator Web Mercator distances are almost true.
	assert.InEpsilon(t, math.Pi*radius*radius, poly.Area(), 0.01)

	b := poly.Bounds()
	assert.InEpsilon(t, radius, 1000-b.Min.X, 0.005)
	assert.InEpsilon(t, radius, b.Max.X-1000, 0.005)

	targets, err := TargetsFromLayer(circles, "LocationID", "LocationNa")
	require.NoError(t, err)
	assert.Equal(t, "12", targets[1].ID)
}

func TestServiceAreas_GroundDistanceInWebMercator(t *testing.T) {
	webMercator := geometry.CRS{Def: "EPSG:3857", SRID: 3857}
	chicago := geom.Point{X: -87.63, Y: 41.88}

	toMercator, err := geometry.NewReprojector(geometry.WGS84, webMercator)
	require.NoError(t, err)
	center, err := toMercator.Apply(chicago)
	require.NoError(t, err)

	s, err := layer.NewSchema(layer.Field{Name: "LocationID", Type: layer.FieldInteger})
	require.NoError(t, err)
	points := layer.New("sites", s, webMercator, []*layer.Feature{
		{ID: 1, Geometry: center, Values: []any{int64(1)}},
	})

	radius := 10 * geometry.MetersPerMile
	circles, err := ServiceAreas(points, "10mi", radius, 32)
	require.NoError(t, err)
	require.Equal(t, 1, circles.Len())

	toLonLat, err := geometry.NewReprojector(webMercator, geometry.WGS84)
	require.NoError(t, err)
	ll, err := toLonLat.Apply(circles.Features[0].Geometry)
	require.NoError(t, err)
	for _, v := range ll.(geom.Polygon)[0] {
		assert.InEpsilon(t, radius, geometry.GreatCircleDistance(chicago, v), 0.001)
	}

	// The Mercator circle is stretched by about 1/cos(latitude).
	b := circles.Features[0].Geometry.Bounds()
	assert.InEpsilon(t, 2*radius/math.Cos(chicago.Y*math.Pi/180), b.Max.Y-b.Min.Y, 0.01)
}

func TestServiceAreas_GeographicLayer(t *testing.T) {
	s, err := layer.NewSchema(layer.Field{Name: "LocationID", Type: layer.FieldInteger})
	require.NoError(t, err)
	center := geom.Point{X: -89.65, Y: 39.78}
	points := layer.New("sites", s, geometry.WGS84, []*layer.Feature{
		{ID: 1, Geometry: center, Values: []any{int64(1)}},
	})

	circles, err := ServiceAreas(points, "5mi", 5*geometry.MetersPerMile, 16)
	require.NoError(t, err)
	assert.Equal(t, 4326, circles.CRS.SRID)
	for _, v := range circles.Features[0].Geometry.(geom.Polygon)[0] {
		assert.InEpsilon(t, 5*geometry.MetersPerMile, geometry.GreatCircleDistance(center, v), 1e-6)
	}
}

func TestServiceAreas_NoCRSBuffersInLayerUnits(t *testing.T) {
	circles, err := ServiceAreas(pointLayer(t, geometry.CRS{}), "c", 10, 64)
	require.NoError(t, err)
	b := circles.Features[0].Geometry.Bounds()
	assert.InDelta(t, 990.0, b.Min.X, 1e-9)
	assert.InDelta(t, 1010.0, b.Max.X, 1e-9)
}

func TestServiceAreas_RejectsNonPositiveRadius(t *testing.T) {
	_, err := ServiceAreas(pointLayer(t, geometry.CRS{Def: "EPSG:3857", SRID: 3857}), "c", 0, 64)
	assert.Error(t, err)

	_, err = ServiceAreas(pointLayer(t, geometry.CRS{}), "c", -1, 64)
	assert.Error(t, err)
}
