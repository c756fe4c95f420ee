package concurrent

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

func limit(workers, n int) int {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > n {
		workers = n
	}
	return max(workers, 1)
}

// Map applies mapFn to every element with at most workers goroutines,
// preserving order. The first error cancels the context passed to the
// remaining calls and is returned; elements not yet started are skipped.
func Map[T any, R any](ctx context.Context, in []T, workers int, mapFn func(context.Context, T) (R, error)) ([]R, error) {
	out := make([]R, len(in))
	if len(in) == 0 {
		return out, nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(limit(workers, len(in)))

	for idx, val := range in {
		if groupCtx.Err() != nil {
			break
		}
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			r, err := mapFn(groupCtx, val)
			if err != nil {
				return err
			}
			out[idx] = r
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	// parent cancelled before any worker observed it
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ForEach runs action for every element with at most workers goroutines
// and returns the first error.
func ForEach[T any](ctx context.Context, in []T, workers int, action func(context.Context, T) error) error {
	_, err := Map(ctx, in, workers, func(ctx context.Context, v T) (struct{}, error) {
		return struct{}{}, action(ctx, v)
	})
	return err
}
