package apportion

import (
	"context"

	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tract-apportion/internal/layer"
)

// ErrDegenerateSource is returned by Pair for a source region without area.
var ErrDegenerateSource = eris.New("apportion: source region has zero area")

// Record is one overlap fragment with its redistributed attributes, keyed by
// (SourceLayer, SourceID, TargetID).
type Record struct {
	SourceLayer string
	SourceID    int64
	TargetID    string
	// AreaRatio is area(overlap) / area(source), in (0, 1].
	AreaRatio float64
	Geometry  geom.Polygon
	// Values follow the plan's output schema.
	Values []any
}

// Stats counts what a redistribution pass saw.
type Stats struct {
	Targets        int
	SourceGroups   int
	RelevantGroups int
	// Candidates is the number of (source, target) pairs whose bounds overlap.
	Candidates int
	Records    int
	// Degenerate counts candidate pairs skipped for a zero-area source.
	Degenerate int
}

// Redistributor computes redistributed records under a plan.
type Redistributor struct {
	plan *Plan
	log  *zap.Logger
}

// NewRedistributor returns a Redistributor for plan.
func NewRedistributor(plan *Plan) *Redistributor {
	return &Redistributor{
		plan: plan,
		log:  zap.L().With(zap.String("component", "redistribute")),
	}
}

// Pair intersects src with t. It returns nil without error when the two do
// not share any area, and ErrDegenerateSource when src has no area. The
// source feature must follow the plan's source schema.
func (r *Redistributor) Pair(sourceLayer string, src *layer.Feature, t Target) (*Record, error) {
	poly, ok := src.Geometry.(geom.Polygonal)
	if !ok {
		return nil, nil
	}

	srcArea := poly.Area()
	if srcArea == 0 {
		return nil, eris.Wrapf(ErrDegenerateSource, "apportion: %s feature %d", sourceLayer, src.ID)
	}

	overlap := polygonOf(poly.Intersection(t.Geometry))
	overlapArea := overlap.Area()
	if overlapArea <= 0 {
		return nil, nil
	}

	ratio := overlapArea / srcArea
	if ratio > 1 {
		ratio = 1
	}

	return &Record{
		SourceLayer: sourceLayer,
		SourceID:    src.ID,
		TargetID:    t.ID,
		AreaRatio:   ratio,
		Geometry:    overlap,
		Values:      r.plan.values(src, ratio),
	}, nil
}

// polygonOf flattens the rings of p into a single Polygon.
func polygonOf(p geom.Polygonal) geom.Polygon {
	switch g := p.(type) {
	case nil:
		return nil
	case geom.Polygon:
		return g
	}
	var out geom.Polygon
	for _, part := range p.Polygons() {
		out = append(out, part...)
	}
	return out
}

type indexedSource struct {
	layer   string
	feature *layer.Feature
}

// Redistribute emits one record per (source, target) pair that shares area.
// Sources are the layers of a census group; each is mapped onto the plan's
// source schema by field name first. Record order is not significant.
func (r *Redistributor) Redistribute(ctx context.Context, targets []Target, sources []*layer.Layer) ([]*Record, Stats, error) {
	stats := Stats{Targets: len(targets), SourceGroups: len(sources)}

	relevant := RelevantGroups(targets, sources)
	stats.RelevantGroups = len(relevant)
	if len(relevant) == 0 {
		r.log.Info("no source layers intersect the targets", zap.Int("targets", len(targets)))
		return nil, stats, nil
	}

	var all []indexedSource
	idx := newSpatialIndex()
	for _, l := range relevant {
		conformed := l.Conform(r.plan.Source())
		for _, f := range conformed.Features {
			poly, ok := f.Geometry.(geom.Polygonal)
			if !ok {
				continue
			}
			idx.insert(poly, len(all))
			all = append(all, indexedSource{layer: l.Name, feature: f})
		}
	}

	var records []*Record
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return nil, stats, eris.Wrap(err, "apportion: redistribute")
		}

		hits := idx.search(t.Geometry.Bounds())
		if len(hits) == 0 {
			r.log.Debug("no source regions for target", zap.String("target", t.ID))
			continue
		}

		for _, pos := range hits {
			stats.Candidates++
			s := all[pos]
			rec, err := r.Pair(s.layer, s.feature, t)
			if eris.Is(err, ErrDegenerateSource) {
				stats.Degenerate++
				r.log.Debug("skipping zero-area source",
					zap.String("layer", s.layer),
					zap.Int64("fid", s.feature.ID),
					zap.String("target", t.ID),
				)
				continue
			}
			if err != nil {
				return nil, stats, err
			}
			if rec != nil {
				records = append(records, rec)
			}
		}
	}

	stats.Records = len(records)
	return records, stats, nil
}
