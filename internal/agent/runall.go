package agent

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// RunAll runs independent auctions concurrently, at most maxConcurrent at a
// time when it is positive. A failing run does not stop the others; every
// run error is returned joined. Results keep the order of runners.
func RunAll(ctx context.Context, runners []*Runner, maxConcurrent int) ([]Result, error) {
	results := make([]Result, len(runners))
	errs := make([]error, len(runners))

	var g errgroup.Group
	if maxConcurrent > 0 {
		g.SetLimit(maxConcurrent)
	}
	for i, r := range runners {
		g.Go(func() error {
			res, err := r.Run(ctx)
			results[i] = res
			if err != nil {
				errs[i] = fmt.Errorf("auction %s: %w", r.Name(), err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}
