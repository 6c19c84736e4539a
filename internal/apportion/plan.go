// Package apportion redistributes census attributes onto the fragments left
// by overlaying target regions (service-area circles) on source regions
// (census tracts), scaling each designated field by the share of the source
// area that falls inside the target, and sums the fragments per target.
package apportion

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/tract-apportion/internal/layer"
)

// RecalculatedSuffix is appended to a designated field name to name its
// area-weighted counterpart.
const RecalculatedSuffix = "_recalculated"

// Plan errors, matched with errors.Is.
var (
	ErrNoFields       = eris.New("apportion: no fields to redistribute")
	ErrUnknownField   = eris.New("apportion: unknown field")
	ErrNonNumeric     = eris.New("apportion: field is not numeric")
	ErrDuplicateField = eris.New("apportion: field listed twice")
)

// RecalculatedName returns the output name for a designated field.
func RecalculatedName(field string) string {
	return field + RecalculatedSuffix
}

// Plan binds the designated fields to a source schema. It is built once and
// shared by every pair computed in a run.
type Plan struct {
	fields  []string
	indices []int
	source  *layer.Schema
	output  *layer.Schema
}

// NewPlan resolves fields against source. Every field must exist and be
// numeric. The output schema is the source schema followed by one float
// field per designated field.
func NewPlan(source *layer.Schema, fields []string) (*Plan, error) {
	if len(fields) == 0 {
		return nil, ErrNoFields
	}

	p := &Plan{
		fields:  make([]string, len(fields)),
		indices: make([]int, len(fields)),
		source:  source,
	}
	extra := make([]layer.Field, len(fields))
	seen := make(map[string]bool, len(fields))

	for i, name := range fields {
		if seen[name] {
			return nil, eris.Wrapf(ErrDuplicateField, "apportion: %q", name)
		}
		seen[name] = true

		idx, ok := source.Index(name)
		if !ok {
			return nil, eris.Wrapf(ErrUnknownField, "apportion: %q", name)
		}
		if f := source.Field(idx); !f.Type.Numeric() {
			return nil, eris.Wrapf(ErrNonNumeric, "apportion: %q is %s", name, f.Type)
		}

		p.fields[i] = name
		p.indices[i] = idx
		extra[i] = layer.Field{Name: RecalculatedName(name), Type: layer.FieldFloat}
	}

	out, err := source.Extend(extra...)
	if err != nil {
		return nil, eris.Wrap(err, "apportion: output schema")
	}
	p.output = out
	return p, nil
}

// Fields returns the designated field names in order.
func (p *Plan) Fields() []string {
	out := make([]string, len(p.fields))
	copy(out, p.fields)
	return out
}

// Source returns the schema the plan was resolved against.
func (p *Plan) Source() *layer.Schema { return p.source }

// Output returns the schema of redistributed records.
func (p *Plan) Output() *layer.Schema { return p.output }

// values builds a record's attributes: the source values verbatim followed by
// each designated value scaled by ratio. Null designated values count as 0.
func (p *Plan) values(src *layer.Feature, ratio float64) []any {
	n := p.source.Len()
	out := make([]any, n+len(p.fields))
	copy(out, src.Values)
	for i, idx := range p.indices {
		v, _ := src.Float(idx)
		out[n+i] = v * ratio
	}
	return out
}
