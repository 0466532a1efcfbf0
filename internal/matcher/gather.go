package matcher

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Gather runs fn for every item concurrently and waits for all of them.
// Each goroutine writes only its own slot of the result slice, so no locking
// is needed and results keep the order of items. fn cannot fail: callers map
// failures to a per-item default instead of aborting the join.
func Gather[T, R any](ctx context.Context, items []T, fn func(ctx context.Context, i int, item T) R) []R {
	results := make([]R, len(items))

	var g errgroup.Group
	for i, item := range items {
		g.Go(func() error {
			results[i] = fn(ctx, i, item)
			return nil
		})
	}
	_ = g.Wait()

	return results
}
