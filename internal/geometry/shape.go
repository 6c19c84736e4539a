// Package geometry converts between the vector encodings the tool reads and
// writes (go-shp shapes, go-geom geometries) and the ctessum/geom types used
// for intersection and area computation.
package geometry

import (
	"github.com/ctessum/geom"
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
)

// FromShape converts a go-shp shape to a geometry.
// Returns nil, nil for null shapes.
func FromShape(s shp.Shape) (geom.Geom, error) {
	switch v := s.(type) {
	case nil, *shp.Null:
		return nil, nil

	case *shp.Point:
		return geom.Point{X: v.X, Y: v.Y}, nil

	case *shp.MultiPoint:
		mp := make(geom.MultiPoint, 0, len(v.Points))
		for _, p := range v.Points {
			mp = append(mp, geom.Point{X: p.X, Y: p.Y})
		}
		return mp, nil

	case *shp.Polygon:
		if p := polygonFromParts(v.Parts, v.Points); p != nil {
			return p, nil
		}
		return nil, nil

	default:
		return nil, eris.Errorf("geometry: unsupported shape type %T", s)
	}
}

// polygonFromParts splits a shapefile point list into rings.
func polygonFromParts(parts []int32, points []shp.Point) geom.Polygon {
	if len(parts) == 0 || len(points) == 0 {
		return nil
	}

	poly := make(geom.Polygon, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || end > int32(len(points)) || start >= end {
			continue
		}

		ring := make(geom.Path, 0, end-start)
		for _, p := range points[start:end] {
			ring = append(ring, geom.Point{X: p.X, Y: p.Y})
		}
		poly = append(poly, ring)
	}

	if len(poly) == 0 {
		return nil
	}
	return poly
}

// ToShape converts a geometry to a go-shp shape. Rings are closed on the way
// out because the shapefile format requires it.
func ToShape(g geom.Geom) (shp.Shape, error) {
	switch v := g.(type) {
	case nil:
		return &shp.Null{}, nil

	case geom.Point:
		return &shp.Point{X: v.X, Y: v.Y}, nil

	case geom.MultiPoint:
		pts := make([]shp.Point, 0, len(v))
		for _, p := range v {
			pts = append(pts, shp.Point{X: p.X, Y: p.Y})
		}
		return &shp.MultiPoint{
			Box:       shp.BBoxFromPoints(pts),
			NumPoints: int32(len(pts)),
			Points:    pts,
		}, nil

	case geom.Polygon:
		return polygonToShape(v), nil

	case geom.MultiPolygon:
		var rings geom.Polygon
		for _, p := range v {
			rings = append(rings, p...)
		}
		return polygonToShape(rings), nil

	default:
		return nil, eris.Errorf("geometry: cannot encode %T as a shape", g)
	}
}

func polygonToShape(p geom.Polygon) shp.Shape {
	parts := make([][]shp.Point, 0, len(p))
	for _, ring := range p {
		ring = closeRing(ring)
		if len(ring) < 4 {
			continue
		}
		pts := make([]shp.Point, 0, len(ring))
		for _, pt := range ring {
			pts = append(pts, shp.Point{X: pt.X, Y: pt.Y})
		}
		parts = append(parts, pts)
	}
	if len(parts) == 0 {
		return &shp.Null{}
	}

	poly := shp.Polygon(*shp.NewPolyLine(parts))
	return &poly
}

// ShapeType returns the shapefile type used to store g.
func ShapeType(g geom.Geom) (shp.ShapeType, error) {
	switch g.(type) {
	case geom.Point:
		return shp.POINT, nil
	case geom.MultiPoint:
		return shp.MULTIPOINT, nil
	case geom.Polygon, geom.MultiPolygon:
		return shp.POLYGON, nil
	default:
		return shp.NULL, eris.Errorf("geometry: no shapefile type for %T", g)
	}
}

// closeRing returns ring with its first point repeated at the end.
func closeRing(ring geom.Path) geom.Path {
	if len(ring) == 0 {
		return ring
	}
	if ring[0] == ring[len(ring)-1] {
		return ring
	}
	closed := make(geom.Path, len(ring), len(ring)+1)
	copy(closed, ring)
	return append(closed, ring[0])
}
