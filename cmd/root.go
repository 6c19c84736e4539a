package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tract-apportion/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "apportion",
	Short: "Area-weighted census apportionment for service areas",
	Long: `Overlays service-area circles on census-tract layers, scales each tract's
demographic fields by the share of its area inside every circle, writes the
fragments to a vector file and reports per-location totals. Also builds the
circles from a point layer and manages persistent layer subset filters.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if p, _ := cmd.Root().PersistentFlags().GetString("project"); p != "" {
			cfg.Project.Path = p
		}

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().String("project", "", "project file listing layers and groups (default: from config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
