package apportion

import (
	"github.com/ctessum/geom"

	"github.com/sells-group/tract-apportion/internal/layer"
)

// RelevantGroups returns, in input order, the source groups (one layer per
// group) holding at least one feature whose bounds overlap a target's
// bounds. Scanning a group stops at its first hit.
func RelevantGroups(targets []Target, groups []*layer.Layer) []*layer.Layer {
	if len(targets) == 0 || len(groups) == 0 {
		return nil
	}

	idx := newSpatialIndex()
	for i, t := range targets {
		idx.insert(t.Geometry, i)
	}

	var out []*layer.Layer
	for _, g := range groups {
		if g == nil {
			continue
		}
		for _, f := range g.Features {
			if f.Geometry == nil {
				continue
			}
			if _, ok := f.Geometry.(geom.Polygonal); !ok {
				continue
			}
			if idx.overlaps(f.Geometry.Bounds()) {
				out = append(out, g)
				break
			}
		}
	}
	return out
}
