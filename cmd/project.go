package main

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tract-apportion/internal/config"
	"github.com/sells-group/tract-apportion/internal/geometry"
	"github.com/sells-group/tract-apportion/internal/project"
)

// openProject opens the configured project, reprojecting layers into the
// configured target CRS.
func openProject(c *config.Config) (*project.Project, error) {
	var opts []project.Option
	if c.Redistribute.TargetCRS != "" {
		crs, err := geometry.ParseCRS(c.Redistribute.TargetCRS)
		if err != nil {
			return nil, eris.Wrap(err, "redistribute.target_crs")
		}
		opts = append(opts, project.WithTargetCRS(crs))
	}
	opts = append(opts, project.WithLoadConcurrency(c.Project.LoadConcurrency))

	p, err := project.Open(c.Project.Path, opts...)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
