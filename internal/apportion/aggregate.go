package apportion

import (
	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"

	"github.com/sells-group/tract-apportion/internal/layer"
)

// Aggregate maps a designated field name to the sum of its recalculated
// values over the fragments intersecting one target.
type Aggregate map[string]float64

// TargetAggregate pairs a target with its aggregate.
type TargetAggregate struct {
	Target Target
	Values Aggregate
}

type fragment struct {
	geom   geom.Polygonal
	values []float64
}

// Aggregator sums recalculated values per target. Membership is geometric:
// a fragment counts toward every target it shares area with, whichever
// target produced it.
type Aggregator struct {
	fields    []string
	fragments []fragment
	idx       *spatialIndex
}

// NewAggregator indexes the records of a redistribution pass.
func NewAggregator(plan *Plan, records []*Record) *Aggregator {
	fields := plan.Fields()
	base := plan.Source().Len()

	a := &Aggregator{fields: fields, idx: newSpatialIndex()}
	for _, rec := range records {
		if len(rec.Geometry) == 0 {
			continue
		}
		vals := make([]float64, len(fields))
		for i := range fields {
			if v, ok := rec.Values[base+i].(float64); ok {
				vals[i] = v
			}
		}
		a.add(rec.Geometry, vals)
	}
	return a
}

// NewLayerAggregator indexes a previously written redistribution output,
// reading each field's recalculated column.
func NewLayerAggregator(l *layer.Layer, fields []string) (*Aggregator, error) {
	if len(fields) == 0 {
		return nil, ErrNoFields
	}

	cols := make([]int, len(fields))
	for i, f := range fields {
		idx, ok := l.Schema.Index(RecalculatedName(f))
		if !ok {
			return nil, eris.Wrapf(ErrUnknownField, "apportion: %q in layer %q", RecalculatedName(f), l.Name)
		}
		if !l.Schema.Field(idx).Type.Numeric() {
			return nil, eris.Wrapf(ErrNonNumeric, "apportion: %q in layer %q", RecalculatedName(f), l.Name)
		}
		cols[i] = idx
	}

	a := &Aggregator{fields: append([]string(nil), fields...), idx: newSpatialIndex()}
	for _, feat := range l.Features {
		poly, ok := feat.Geometry.(geom.Polygonal)
		if !ok {
			continue
		}
		vals := make([]float64, len(fields))
		for i, c := range cols {
			vals[i], _ = feat.Float(c)
		}
		a.add(poly, vals)
	}
	return a, nil
}

func (a *Aggregator) add(g geom.Polygonal, vals []float64) {
	if g == nil {
		return
	}
	a.idx.insert(g, len(a.fragments))
	a.fragments = append(a.fragments, fragment{geom: g, values: vals})
}

// Fields returns the aggregated field names in order.
func (a *Aggregator) Fields() []string {
	out := make([]string, len(a.fields))
	copy(out, a.fields)
	return out
}

// Aggregate sums every field over the fragments sharing area with t. Every
// field is present; fields without contributions are 0.
func (a *Aggregator) Aggregate(t Target) Aggregate {
	out := make(Aggregate, len(a.fields))
	for _, f := range a.fields {
		out[f] = 0
	}
	if t.Geometry == nil {
		return out
	}

	for _, pos := range a.idx.search(t.Geometry.Bounds()) {
		fr := a.fragments[pos]
		overlap := fr.geom.Intersection(t.Geometry)
		if overlap == nil || overlap.Area() <= 0 {
			continue
		}
		for i, f := range a.fields {
			out[f] += fr.values[i]
		}
	}
	return out
}

// AggregateAll aggregates each target in order.
func (a *Aggregator) AggregateAll(targets []Target) []TargetAggregate {
	out := make([]TargetAggregate, len(targets))
	for i, t := range targets {
		out[i] = TargetAggregate{Target: t, Values: a.Aggregate(t)}
	}
	return out
}
