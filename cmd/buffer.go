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
	"github.com/sells-group/tract-apportion/internal/geometry"
	"github.com/sells-group/tract-apportion/internal/project"
	"github.com/sells-group/tract-apportion/internal/vector"
)

var bufferCmd = &cobra.Command{
	Use:   "buffer",
	Short: "Build service-area circles around location points",
	Long: `Buffers every point of the point layer by the configured radius, measured
as ground distance, and writes the circles in the target CRS, with the points'
attributes, to a vector file. With --register the file is added to the project
as a layer.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if v, _ := cmd.Flags().GetString("point-layer"); v != "" {
			cfg.Redistribute.PointLayer = v
		}
		if v, _ := cmd.Flags().GetFloat64("radius-miles"); v > 0 {
			cfg.Buffer.RadiusMiles = v
		}
		if v, _ := cmd.Flags().GetInt("segments"); v > 0 {
			cfg.Buffer.Segments = v
		}
		if v, _ := cmd.Flags().GetString("output"); v != "" {
			cfg.Buffer.Output = v
		}
		if v, _ := cmd.Flags().GetString("register"); v != "" {
			cfg.Buffer.LayerName = v
		}

		if err := cfg.Validate("buffer"); err != nil {
			return err
		}
		return runBuffer(ctx, cfg, cmd.OutOrStdout())
	},
}

func init() {
	bufferCmd.Flags().String("point-layer", "", "layer of location points (default: from config)")
	bufferCmd.Flags().Float64("radius-miles", 0, "circle radius in miles (default: from config)")
	bufferCmd.Flags().Int("segments", 0, "vertices per circle (default: from config)")
	bufferCmd.Flags().String("output", "", "output vector file (default: from config)")
	bufferCmd.Flags().String("register", "", "add the circles to the project under this layer name")
	rootCmd.AddCommand(bufferCmd)
}

func runBuffer(ctx context.Context, c *config.Config, w io.Writer) error {
	p, err := openProject(c)
	if err != nil {
		return err
	}
	defer p.Close() //nolint:errcheck

	points, err := p.Layer(ctx, c.Redistribute.PointLayer)
	if err != nil {
		return eris.Wrap(err, "buffer: point layer")
	}

	name := c.Buffer.LayerName
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(c.Buffer.Output), filepath.Ext(c.Buffer.Output))
	}

	radius := c.Buffer.RadiusMiles * geometry.MetersPerMile
	circles, err := apportion.ServiceAreas(points, name, radius, c.Buffer.Segments)
	if err != nil {
		return eris.Wrap(err, "buffer")
	}

	if err := vector.Write(ctx, c.Buffer.Output, circles, vector.WriteOptions{
		Description: fmt.Sprintf("%g mile service areas around %s", c.Buffer.RadiusMiles, points.Name),
	}); err != nil {
		return eris.Wrap(err, "buffer: write circles")
	}

	zap.L().Info("service areas written",
		zap.String("command", "buffer"),
		zap.Int("circles", circles.Len()),
		zap.Float64("radius_miles", c.Buffer.RadiusMiles),
		zap.String("output", c.Buffer.Output),
	)

	if c.Buffer.LayerName != "" {
		if err := p.AddLayer(project.LayerSpec{
			Name: c.Buffer.LayerName,
			Path: projectRelative(p.Path(), c.Buffer.Output),
			CRS:  circles.CRS.Def,
		}); err != nil {
			return eris.Wrap(err, "buffer: register layer")
		}
	}

	fmt.Fprintf(w, "Wrote %d circles (%g mi) to %s\n", circles.Len(), c.Buffer.RadiusMiles, c.Buffer.Output)
	return nil
}

// projectRelative expresses path relative to the project file's directory
// when possible.
func projectRelative(projectPath, path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	dir, err := filepath.Abs(filepath.Dir(projectPath))
	if err != nil {
		return abs
	}
	rel, err := filepath.Rel(dir, abs)
	if err != nil {
		return abs
	}
	return rel
}
