// Package workerpool runs batch work over a bounded number of goroutines.
// Each task writes only its own result slot, so callers need no extra
// synchronization beyond what the task itself touches.
package workerpool

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Pool bounds the number of concurrently running tasks.
type Pool struct {
	workers int
}

// New creates a pool. A non-positive size uses GOMAXPROCS.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pool{workers: workers}
}

// Workers returns the concurrency limit.
func (p *Pool) Workers() int {
	return p.workers
}

// Map applies fn to every item and returns the results in input order.
// The first error cancels the context passed to the remaining tasks and is
// returned after all started tasks finish.
func Map[In, Out any](ctx context.Context, p *Pool, items []In, fn func(ctx context.Context, item In) (Out, error)) ([]Out, error) {
	out := make([]Out, len(items))
	if len(items) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			v, err := fn(gctx, item)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Each runs fn for every item and collects per-item errors instead of
// stopping at the first one. errs[i] is nil when item i succeeded.
func Each[In any](ctx context.Context, p *Pool, items []In, fn func(ctx context.Context, item In) error) (errs []error) {
	errs = make([]error, len(items))

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, item := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			errs[i] = fn(ctx, item)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}
