package apportion

import (
	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tract-apportion/internal/geometry"
	"github.com/sells-group/tract-apportion/internal/layer"
)

// ServiceAreas buffers every point of points by radius metres of ground
// distance, approximating each circle with segments vertices. Circles are
// laid out on the sphere and projected into the layer's CRS, so they keep
// their true size in stretched projections such as Web Mercator. A layer
// without a CRS is buffered in its own units. The circles keep the point's id
// and attributes.
func ServiceAreas(points *layer.Layer, name string, radius float64, segments int) (*layer.Layer, error) {
	if radius <= 0 {
		return nil, eris.Errorf("apportion: buffer radius must be positive, got %g", radius)
	}

	planar := points.CRS.IsZero()
	if planar {
		zap.L().Warn("apportion: layer has no coordinate system, buffering in layer units",
			zap.String("layer", points.Name),
		)
	}
	toLonLat, err := geometry.NewReprojector(points.CRS, geometry.WGS84)
	if err != nil {
		return nil, eris.Wrapf(err, "apportion: layer %q", points.Name)
	}
	fromLonLat, err := geometry.NewReprojector(geometry.WGS84, points.CRS)
	if err != nil {
		return nil, eris.Wrapf(err, "apportion: layer %q", points.Name)
	}

	out := make([]*layer.Feature, 0, points.Len())
	skipped := 0
	for _, f := range points.Features {
		var center geom.Point
		switch g := f.Geometry.(type) {
		case geom.Point:
			center = g
		case geom.MultiPoint:
			if len(g) != 1 {
				skipped++
				continue
			}
			center = g[0]
		default:
			skipped++
			continue
		}

		var circle geom.Polygon
		if planar {
			circle = geometry.Circle(center, radius, segments)
		} else {
			circle, err = geodesicServiceArea(center, radius, segments, toLonLat, fromLonLat)
			if err != nil {
				return nil, eris.Wrapf(err, "apportion: buffer feature %d of %q", f.ID, points.Name)
			}
		}

		out = append(out, &layer.Feature{
			ID:       f.ID,
			Geometry: circle,
			Values:   f.Values,
		})
	}

	if skipped > 0 {
		zap.L().Warn("apportion: features without a single point skipped",
			zap.String("layer", points.Name),
			zap.Int("skipped", skipped),
		)
	}
	return layer.New(name, points.Schema, points.CRS, out), nil
}

func geodesicServiceArea(center geom.Point, radius float64, segments int, toLonLat, fromLonLat *geometry.Reprojector) (geom.Polygon, error) {
	g, err := toLonLat.Apply(center)
	if err != nil {
		return nil, err
	}
	ll, ok := g.(geom.Point)
	if !ok {
		return nil, eris.Errorf("apportion: reprojected center is %T", g)
	}

	g, err = fromLonLat.Apply(geometry.GeodesicCircle(ll, radius, segments))
	if err != nil {
		return nil, err
	}
	circle, ok := g.(geom.Polygon)
	if !ok {
		return nil, eris.Errorf("apportion: reprojected circle is %T", g)
	}
	return circle, nil
}
