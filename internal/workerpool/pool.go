// Package workerpool provides a generic bounded worker pool for running
// a function over a slice of items concurrently.
package workerpool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Run executes fn for each item in items using up to workers goroutines.
// Every item is attempted even when earlier ones fail; the first
// non-nil error is returned once all workers finish. Remaining items
// are not submitted after ctx is cancelled.
func Run[T any](ctx context.Context, items []T, workers int, fn func(context.Context, T) error) error {
	if len(items) == 0 {
		return nil
	}
	if workers <= 0 {
		workers = 1
	}

	var g errgroup.Group
	g.SetLimit(workers)

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return fn(ctx, item)
		})
	}

	return g.Wait()
}
