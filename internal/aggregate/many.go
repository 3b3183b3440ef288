package aggregate

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/hydrograph-lab/timegrid/internal/period"
	"github.com/hydrograph-lab/timegrid/internal/series"
)

// AggregateMany runs one aggregation per column concurrently. The engine is
// stateless and the series immutable, so the passes share nothing; the first
// failure cancels the rest. Results come back keyed by column.
func AggregateMany(ctx context.Context, s *series.Series, columns []string, outputPeriod period.Period, r Reducer, opts Options) (map[string]*Result, error) {
	g, ctx := errgroup.WithContext(ctx)
	results := make([]*Result, len(columns))
	for i, column := range columns {
		i, column := i, column
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := Aggregate(s, column, outputPeriod, r, opts)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[string]*Result, len(columns))
	for i, column := range columns {
		out[column] = results[i]
	}
	return out, nil
}
