package project

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// FilterResult reports which layers received the subset.
type FilterResult struct {
	Applied []string
	Missing []string
}

// ApplyFilter sets expr as the subset of every named layer. A name the
// registry does not know is logged and skipped; any other failure stops the
// run.
func ApplyFilter(ctx context.Context, reg Registry, expr string, names []string) (*FilterResult, error) {
	log := zap.L().With(zap.String("component", "filter"))
	res := &FilterResult{}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		err := reg.SetSubset(ctx, name, expr)
		if errors.Is(err, ErrLayerNotFound) {
			log.Warn("layer not found", zap.String("layer", name))
			res.Missing = append(res.Missing, name)
			continue
		}
		if err != nil {
			return res, err
		}

		log.Info("filter applied", zap.String("layer", name), zap.String("expression", expr))
		res.Applied = append(res.Applied, name)
	}
	return res, nil
}
