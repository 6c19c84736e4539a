package apportion

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tract-apportion/internal/geometry"
	"github.com/sells-group/tract-apportion/internal/layer"
)

// LayerSource resolves the layers a run reads.
type LayerSource interface {
	Layer(ctx context.Context, name string) (*layer.Layer, error)
	Group(ctx context.Context, name string) ([]*layer.Layer, error)
}

// Options selects the inputs of a run.
type Options struct {
	// TargetLayer holds the target regions (service-area circles).
	TargetLayer string
	// SourceGroup is the group of census layers to redistribute.
	SourceGroup     string
	Fields          []string
	TargetIDField   string
	TargetNameField string
}

// Result is the outcome of a run.
type Result struct {
	RunID   string
	Plan    *Plan
	Targets []Target
	Records []*Record
	Stats   Stats
	CRS     geometry.CRS
}

// Run loads the targets and the source group, builds the plan from the first
// group member's schema and redistributes.
func Run(ctx context.Context, src LayerSource, opts Options) (*Result, error) {
	runID := uuid.New().String()
	log := zap.L().With(zap.String("component", "apportion"), zap.String("run_id", runID))
	start := time.Now()

	targetLayer, err := src.Layer(ctx, opts.TargetLayer)
	if err != nil {
		return nil, eris.Wrap(err, "apportion: target layer")
	}
	targets, err := TargetsFromLayer(targetLayer, opts.TargetIDField, opts.TargetNameField)
	if err != nil {
		return nil, err
	}

	sources, err := src.Group(ctx, opts.SourceGroup)
	if err != nil {
		return nil, eris.Wrap(err, "apportion: source group")
	}
	if len(sources) == 0 {
		return nil, eris.Errorf("apportion: group %q has no layers", opts.SourceGroup)
	}

	plan, err := NewPlan(sources[0].Schema, opts.Fields)
	if err != nil {
		return nil, eris.Wrapf(err, "apportion: layer %q", sources[0].Name)
	}

	log.Info("redistributing",
		zap.String("target_layer", opts.TargetLayer),
		zap.Int("targets", len(targets)),
		zap.String("source_group", opts.SourceGroup),
		zap.Int("source_layers", len(sources)),
		zap.Strings("fields", plan.Fields()),
	)

	records, stats, err := NewRedistributor(plan).Redistribute(ctx, targets, sources)
	if err != nil {
		return nil, err
	}

	log.Info("redistribution complete",
		zap.Int("relevant_layers", stats.RelevantGroups),
		zap.Int("candidates", stats.Candidates),
		zap.Int("records", stats.Records),
		zap.Int("degenerate", stats.Degenerate),
		zap.Duration("elapsed", time.Since(start)),
	)

	return &Result{
		RunID:   runID,
		Plan:    plan,
		Targets: targets,
		Records: records,
		Stats:   stats,
		CRS:     sources[0].CRS,
	}, nil
}

// Layer returns the records as a layer under the plan's output schema.
func (r *Result) Layer(name string) *layer.Layer {
	features := make([]*layer.Feature, len(r.Records))
	for i, rec := range r.Records {
		features[i] = &layer.Feature{ID: int64(i + 1), Geometry: rec.Geometry, Values: rec.Values}
	}
	return layer.New(name, r.Plan.Output(), r.CRS, features)
}

// Aggregates sums the records per target, in target order.
func (r *Result) Aggregates() []TargetAggregate {
	return NewAggregator(r.Plan, r.Records).AggregateAll(r.Targets)
}
