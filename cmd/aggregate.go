package main

import (
	"context"
	"io"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/tract-apportion/internal/apportion"
	"github.com/sells-group/tract-apportion/internal/config"
	"github.com/sells-group/tract-apportion/internal/geometry"
	"github.com/sells-group/tract-apportion/internal/report"
	"github.com/sells-group/tract-apportion/internal/vector"
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Total redistributed fields per location",
	Long: `Reads a file written by redistribute and, for every circle of the target
layer, sums the <field>_recalculated values of all fragments that share area
with it. Shapefile outputs truncate field names, so aggregate GeoPackage or
GeoJSON outputs.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyRedistributeFlags(cmd, cfg)
		input, _ := cmd.Flags().GetString("input")
		if input == "" {
			input = cfg.Redistribute.Output
		}
		if err := cfg.Validate("aggregate"); err != nil {
			return err
		}
		return runAggregate(ctx, cfg, input, cmd.OutOrStdout())
	},
}

func init() {
	addSelectionFlags(aggregateCmd)
	aggregateCmd.Flags().String("input", "", "redistribution output to aggregate (default: redistribute.output)")
	rootCmd.AddCommand(aggregateCmd)
}

func runAggregate(ctx context.Context, c *config.Config, input string, w io.Writer) error {
	p, err := openProject(c)
	if err != nil {
		return err
	}
	defer p.Close() //nolint:errcheck

	circles, err := p.Layer(ctx, c.Redistribute.TargetLayer)
	if err != nil {
		return eris.Wrap(err, "aggregate: target layer")
	}
	targets, err := apportion.TargetsFromLayer(circles, c.Redistribute.TargetIDField, c.Redistribute.TargetNameField)
	if err != nil {
		return err
	}

	fragments, err := vector.Read(ctx, vector.Source{Path: input})
	if err != nil {
		return eris.Wrap(err, "aggregate: read fragments")
	}
	r, err := geometry.NewReprojector(fragments.CRS, circles.CRS)
	if err != nil {
		return eris.Wrap(err, "aggregate: fragments CRS")
	}
	if fragments, err = fragments.Reproject(r, circles.CRS); err != nil {
		return eris.Wrap(err, "aggregate: reproject fragments")
	}

	agg, err := apportion.NewLayerAggregator(fragments, c.Redistribute.Fields)
	if err != nil {
		return eris.Wrapf(err, "aggregate: %s", input)
	}

	rep := report.New("", agg.Fields(), agg.AggregateAll(targets))
	if err := rep.WriteText(w); err != nil {
		return err
	}
	if c.Report.Output != "" {
		return rep.Export(c.Report.Output)
	}
	return nil
}
