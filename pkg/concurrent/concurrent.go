package concurrent

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ForEach runs fn for every item with at most limit calls in flight. The
// first error cancels the context handed to the remaining calls and is
// returned once all started calls have finished. A limit below one means no
// limit.
func ForEach[T any](ctx context.Context, items []T, limit int, fn func(context.Context, T) error) error {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, item := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return fn(gctx, item)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ForEachAll is ForEach without fail-fast: every item is processed and all
// errors are joined.
func ForEachAll[T any](ctx context.Context, items []T, limit int, fn func(context.Context, T) error) error {
	var (
		mu   sync.Mutex
		errs []error
	)
	g := errgroup.Group{}
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, item := range items {
		g.Go(func() error {
			if err := fn(ctx, item); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
