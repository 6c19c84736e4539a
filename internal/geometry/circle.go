package geometry

import (
	"math"

	"github.com/ctessum/geom"
)

// MetersPerMile converts buffer radii given in miles.
const MetersPerMile = 1609.344

// DefaultCircleSegments is the default resolution for circle approximation.
const DefaultCircleSegments = 64

// EarthRadius is the mean radius of the earth in metres (IUGG).
const EarthRadius = 6371008.8

// Circle returns a closed, clockwise polygon approximating a circle with the
// given center and radius (in CRS units).
func Circle(center geom.Point, radius float64, segments int) geom.Polygon {
	if segments < 3 {
		segments = 3
	}
	ring := make(geom.Path, 0, segments+1)
	for i := 0; i < segments; i++ {
		angle := -2 * math.Pi * float64(i) / float64(segments)
		ring = append(ring, geom.Point{
			X: center.X + radius*math.Cos(angle),
			Y: center.Y + radius*math.Sin(angle),
		})
	}
	ring = append(ring, ring[0])
	return geom.Polygon{ring}
}

// GeodesicCircle returns a closed, clockwise polygon in longitude/latitude
// degrees whose vertices lie radius metres of great-circle distance from
// center (also longitude/latitude). Rings crossing the antimeridian or a
// pole are not split.
func GeodesicCircle(center geom.Point, radius float64, segments int) geom.Polygon {
	if segments < 3 {
		segments = 3
	}
	lon1, lat1 := center.X*math.Pi/180, center.Y*math.Pi/180
	d := radius / EarthRadius
	sinLat1, cosLat1 := math.Sincos(lat1)
	sinD, cosD := math.Sincos(d)

	ring := make(geom.Path, 0, segments+1)
	for i := 0; i < segments; i++ {
		// Bearings run clockwise from north.
		sinB, cosB := math.Sincos(2 * math.Pi * float64(i) / float64(segments))
		sinLat2 := sinLat1*cosD + cosLat1*sinD*cosB
		lat2 := math.Asin(sinLat2)
		lon2 := lon1 + math.Atan2(sinB*sinD*cosLat1, cosD-sinLat1*sinLat2)
		ring = append(ring, geom.Point{X: lon2 * 180 / math.Pi, Y: lat2 * 180 / math.Pi})
	}
	ring = append(ring, ring[0])
	return geom.Polygon{ring}
}

// GreatCircleDistance returns the haversine distance in metres between two
// longitude/latitude points.
func GreatCircleDistance(a, b geom.Point) float64 {
	lat1, lat2 := a.Y*math.Pi/180, b.Y*math.Pi/180
	dLat := lat2 - lat1
	dLon := (b.X - a.X) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadius * math.Asin(math.Min(1, math.Sqrt(h)))
}
