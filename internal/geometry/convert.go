package geometry

import (
	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	tgeom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
)

// FromT converts a go-geom geometry. Polygons and multipolygons are flattened
// into a single ring list, the same representation shapefiles use.
func FromT(g tgeom.T) (geom.Geom, error) {
	switch v := g.(type) {
	case nil:
		return nil, nil

	case *tgeom.Point:
		if v.Empty() {
			return nil, nil
		}
		return geom.Point{X: v.X(), Y: v.Y()}, nil

	case *tgeom.MultiPoint:
		mp := make(geom.MultiPoint, 0, v.NumPoints())
		for i := 0; i < v.NumPoints(); i++ {
			p := v.Point(i)
			mp = append(mp, geom.Point{X: p.X(), Y: p.Y()})
		}
		return mp, nil

	case *tgeom.Polygon:
		return ringsFromPolygon(v, nil), nil

	case *tgeom.MultiPolygon:
		var rings geom.Polygon
		for i := 0; i < v.NumPolygons(); i++ {
			rings = ringsFromPolygon(v.Polygon(i), rings)
		}
		return rings, nil

	default:
		return nil, eris.Errorf("geometry: unsupported geometry %T", g)
	}
}

func ringsFromPolygon(p *tgeom.Polygon, rings geom.Polygon) geom.Polygon {
	for i := 0; i < p.NumLinearRings(); i++ {
		coords := p.LinearRing(i).Coords()
		ring := make(geom.Path, 0, len(coords))
		for _, c := range coords {
			ring = append(ring, geom.Point{X: c.X(), Y: c.Y()})
		}
		rings = append(rings, ring)
	}
	return rings
}

// ToT converts a geometry to go-geom with the given SRID. Polygon rings are
// regrouped into a MultiPolygon by nesting depth: a ring inside an even
// number of other rings is an exterior, otherwise it is a hole of the
// innermost exterior containing it.
func ToT(g geom.Geom, srid int) (tgeom.T, error) {
	switch v := g.(type) {
	case nil:
		return nil, nil

	case geom.Point:
		return tgeom.NewPointFlat(tgeom.XY, []float64{v.X, v.Y}).SetSRID(srid), nil

	case geom.MultiPoint:
		flat := make([]float64, 0, len(v)*2)
		for _, p := range v {
			flat = append(flat, p.X, p.Y)
		}
		return tgeom.NewMultiPointFlat(tgeom.XY, flat).SetSRID(srid), nil

	case geom.Polygon:
		return multiPolygonFromRings(v, srid), nil

	case geom.MultiPolygon:
		var rings geom.Polygon
		for _, p := range v {
			rings = append(rings, p...)
		}
		return multiPolygonFromRings(rings, srid), nil

	default:
		return nil, eris.Errorf("geometry: cannot encode %T", g)
	}
}

func multiPolygonFromRings(p geom.Polygon, srid int) *tgeom.MultiPolygon {
	mp := tgeom.NewMultiPolygon(tgeom.XY).SetSRID(srid)

	var rings [][]float64
	for _, r := range p {
		r = closeRing(r)
		if len(r) < 4 {
			continue
		}
		rings = append(rings, flatCoords(r))
	}

	depth := make([]int, len(rings))
	parent := make([]int, len(rings))
	for i := range rings {
		parent[i] = -1
		probe := tgeom.Coord{rings[i][0], rings[i][1]}
		for j := range rings {
			if i == j || !xy.IsPointInRing(tgeom.XY, probe, rings[j]) {
				continue
			}
			depth[i]++
		}
	}
	// A hole's parent is the containing ring exactly one level up.
	for i := range rings {
		if depth[i]%2 == 0 {
			continue
		}
		probe := tgeom.Coord{rings[i][0], rings[i][1]}
		for j := range rings {
			if i != j && depth[j] == depth[i]-1 && xy.IsPointInRing(tgeom.XY, probe, rings[j]) {
				parent[i] = j
				break
			}
		}
	}

	for i := range rings {
		if depth[i]%2 != 0 {
			continue
		}
		flat := append([]float64(nil), rings[i]...)
		ends := []int{len(flat)}
		for j := range rings {
			if parent[j] == i {
				flat = append(flat, rings[j]...)
				ends = append(ends, len(flat))
			}
		}
		poly := tgeom.NewPolygonFlat(tgeom.XY, flat, ends)
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("geometry: skipping malformed polygon part", zap.Int("ring", i), zap.Error(err))
		}
	}
	return mp
}

// flatCoords converts a path to flat coordinate pairs for go-geom.
func flatCoords(ring geom.Path) []float64 {
	flat := make([]float64, 0, len(ring)*2)
	for _, p := range ring {
		flat = append(flat, p.X, p.Y)
	}
	return flat
}
