package async

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// BatchOptions bounds a Batch run.
type BatchOptions struct {
	// Workers is the maximum number of items processed concurrently.
	// Values below 1 mean 1.
	Workers int

	// ItemTimeout bounds each item. Zero means no per-item deadline beyond
	// the parent context.
	ItemTimeout time.Duration
}

// Batch processes items concurrently and returns one error slot per item,
// in input order. A failing, panicking or timed-out item never stops the
// other items; errs[i] is nil when items[i] succeeded.
//
// Once ctx is cancelled, items that have not started yet fail with the
// context error.
//
//	errs := async.Batch(ctx, clientIDs, async.BatchOptions{Workers: 4, ItemTimeout: 30 * time.Second},
//	    func(ctx context.Context, clientID int64) error {
//	        return billClient(ctx, clientID)
//	    })
func Batch[T any](ctx context.Context, items []T, opts BatchOptions, fn func(context.Context, T) error) []error {
	errs := make([]error, len(items))
	if len(items) == 0 {
		return errs
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	// A plain Group: errgroup.WithContext would cancel siblings on the first failure.
	var g errgroup.Group
	g.SetLimit(workers)

	for i, item := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}

			itemCtx, cancel := withOptionalTimeout(ctx, opts.ItemTimeout)
			defer cancel()

			errs[i] = runItem(itemCtx, item, fn)
			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // per-item errors are collected in errs
	return errs
}

// runItem calls fn and honours the item deadline even when fn ignores ctx.
func runItem[T any](ctx context.Context, item T, fn func(context.Context, T) error) error {
	result := make(chan error, 1)
	go func() {
		result <- runRecovered(ctx, func(ctx context.Context) error {
			return fn(ctx, item)
		})
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return fmt.Errorf("item abandoned: %w", ctx.Err())
	}
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// Failed counts the non-nil entries of errs.
func Failed(errs []error) int {
	n := 0
	for _, err := range errs {
		if err != nil {
			n++
		}
	}
	return n
}
