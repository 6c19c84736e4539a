package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/tract-apportion/internal/config"
	"github.com/sells-group/tract-apportion/internal/project"
)

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Set a subset filter on named layers",
	Long: `Stores a filter expression as the persistent subset of each named layer in
the project file. Expressions use the SQLite WHERE grammar, for example
"state" = 'IL'. Layers missing from the project are reported and skipped.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cmd.Flags().Changed("expression") {
			cfg.Filter.Expression, _ = cmd.Flags().GetString("expression")
		}
		if v, _ := cmd.Flags().GetString("layers"); v != "" {
			cfg.Filter.Layers = splitAndTrim(v)
		}
		if clear, _ := cmd.Flags().GetBool("clear"); clear {
			cfg.Filter.Expression = ""
		}

		if err := cfg.Validate("filter"); err != nil {
			return err
		}
		return runFilter(ctx, cfg, cmd.OutOrStdout())
	},
}

func init() {
	filterCmd.Flags().String("expression", "", "filter expression (default: from config)")
	filterCmd.Flags().String("layers", "", "comma-separated layer names (default: from config)")
	filterCmd.Flags().Bool("clear", false, "remove the subset from the layers instead")
	rootCmd.AddCommand(filterCmd)
}

func runFilter(ctx context.Context, c *config.Config, w io.Writer) error {
	p, err := openProject(c)
	if err != nil {
		return err
	}
	defer p.Close() //nolint:errcheck

	res, err := project.ApplyFilter(ctx, p, c.Filter.Expression, c.Filter.Layers)
	if err != nil {
		return err
	}

	for _, name := range res.Applied {
		if c.Filter.Expression == "" {
			fmt.Fprintf(w, "Filter cleared on layer: %s\n", name)
			continue
		}
		fmt.Fprintf(w, "Filter applied to layer: %s\n", name)
	}
	if len(res.Missing) > 0 {
		fmt.Fprintf(w, "Layers not found: %s\n", strings.Join(res.Missing, ", "))
	}
	return nil
}
