package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tract-apportion/internal/apportion"
	"github.com/sells-group/tract-apportion/internal/config"
	"github.com/sells-group/tract-apportion/internal/report"
	"github.com/sells-group/tract-apportion/internal/vector"
)

var redistributeCmd = &cobra.Command{
	Use:   "redistribute",
	Short: "Apportion census fields onto service-area fragments",
	Long: `Intersects every circle of the target layer with the census tracts of the
census group. Each overlap becomes a fragment carrying the tract's attributes
plus, for every designated field, <field>_recalculated = value * overlap share.
Fragments are written to the output file (.gpkg, .shp or .geojson) and the
per-location totals are printed.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyRedistributeFlags(cmd, cfg)
		if err := cfg.Validate("redistribute"); err != nil {
			return err
		}
		return runRedistribute(ctx, cfg, cmd.OutOrStdout())
	},
}

func init() {
	addSelectionFlags(redistributeCmd)
	redistributeCmd.Flags().String("group", "", "census layer group (default: from config)")
	redistributeCmd.Flags().String("output", "", "output vector file (default: from config)")
	redistributeCmd.Flags().String("crs", "", "CRS to compute areas in, e.g. EPSG:3857 (default: from config)")
	rootCmd.AddCommand(redistributeCmd)
}

// addSelectionFlags registers the flags shared by redistribute and aggregate.
func addSelectionFlags(cmd *cobra.Command) {
	cmd.Flags().String("target-layer", "", "layer of service-area circles (default: from config)")
	cmd.Flags().String("fields", "", "comma-separated fields to redistribute (default: from config)")
	cmd.Flags().String("report", "", "export the per-location totals to .json, .csv, .xlsx or .txt")
}

func applyRedistributeFlags(cmd *cobra.Command, c *config.Config) {
	if v, _ := cmd.Flags().GetString("target-layer"); v != "" {
		c.Redistribute.TargetLayer = v
	}
	if v, _ := cmd.Flags().GetString("fields"); v != "" {
		c.Redistribute.Fields = splitAndTrim(v)
	}
	if v, _ := cmd.Flags().GetString("report"); v != "" {
		c.Report.Output = v
	}
	if f := cmd.Flags().Lookup("group"); f != nil && f.Value.String() != "" {
		c.Redistribute.CensusGroup = f.Value.String()
	}
	if f := cmd.Flags().Lookup("output"); f != nil && f.Value.String() != "" {
		c.Redistribute.Output = f.Value.String()
	}
	if f := cmd.Flags().Lookup("crs"); f != nil && f.Value.String() != "" {
		c.Redistribute.TargetCRS = f.Value.String()
	}
}

func runRedistribute(ctx context.Context, c *config.Config, w io.Writer) error {
	log := zap.L().With(zap.String("command", "redistribute"))

	p, err := openProject(c)
	if err != nil {
		return err
	}
	defer p.Close() //nolint:errcheck

	res, err := apportion.Run(ctx, p, apportion.Options{
		TargetLayer:     c.Redistribute.TargetLayer,
		SourceGroup:     c.Redistribute.CensusGroup,
		Fields:          c.Redistribute.Fields,
		TargetIDField:   c.Redistribute.TargetIDField,
		TargetNameField: c.Redistribute.TargetNameField,
	})
	if err != nil {
		return eris.Wrap(err, "redistribute")
	}

	output := c.Redistribute.Output
	if len(res.Records) == 0 {
		log.Warn("no circle overlaps any census tract; nothing written", zap.String("output", output))
	} else {
		name := strings.TrimSuffix(filepath.Base(output), filepath.Ext(output))
		if err := vector.Write(ctx, output, res.Layer(name), vector.WriteOptions{
			Description: "area-weighted redistribution, run " + res.RunID,
		}); err != nil {
			return eris.Wrap(err, "redistribute: write output")
		}
	}

	rep := report.New(res.RunID, res.Plan.Fields(), res.Aggregates())
	if err := rep.WriteText(w); err != nil {
		return err
	}
	if c.Report.Output != "" {
		if err := rep.Export(c.Report.Output); err != nil {
			return err
		}
	}

	fmt.Fprintf(w, "Wrote %d fragments for %d locations to %s\n", len(res.Records), len(res.Targets), output)
	return nil
}
