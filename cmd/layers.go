package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/tract-apportion/internal/config"
	"github.com/sells-group/tract-apportion/internal/project"
)

var layersCmd = &cobra.Command{
	Use:   "layers",
	Short: "List the layers registered in the project",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("layers"); err != nil {
			return err
		}
		return runLayers(cfg, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(layersCmd)
}

func runLayers(c *config.Config, w io.Writer) error {
	p, err := project.Open(c.Project.Path)
	if err != nil {
		return err
	}
	defer p.Close() //nolint:errcheck

	groupsOf := make(map[string][]string)
	for _, g := range p.Groups() {
		for _, m := range g.Layers {
			groupsOf[m] = append(groupsOf[m], g.Name)
		}
	}

	fmt.Fprintf(w, "%d layers in %s\n", len(p.Names()), p.Path())
	for _, name := range p.Names() {
		spec, _ := p.Spec(name)
		fmt.Fprintf(w, "  %s  %s\n", name, spec.Path)
		if gs := groupsOf[name]; len(gs) > 0 {
			fmt.Fprintf(w, "    groups: %s\n", strings.Join(gs, ", "))
		}
		if spec.Subset != "" {
			fmt.Fprintf(w, "    subset: %s\n", spec.Subset)
		}
	}
	return nil
}
