// Package ratelimit bounds how fast the service calls upstream LLM platforms.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Policy controls fan-out to upstream platforms. The zero value runs calls
// sequentially with no delay.
type Policy struct {
	// MaxConcurrency is the number of calls in flight at once. Values below
	// 2 run calls one after another in index order.
	MaxConcurrency int
	// Delay separates calls. Sequentially it is the gap between one call
	// finishing and the next starting; concurrently it spaces call starts.
	Delay time.Duration
}

// Sequential is the default policy: one call at a time, delay between calls.
func Sequential(delay time.Duration) Policy {
	return Policy{MaxConcurrency: 1, Delay: delay}
}

// Each calls fn for every index in [0, n). fn owns its own error handling;
// Each only fails when ctx is cancelled before all calls were started.
func (p Policy) Each(ctx context.Context, n int, fn func(ctx context.Context, i int)) error {
	if p.MaxConcurrency < 2 {
		return p.sequential(ctx, n, fn)
	}

	limit := rate.Inf
	if p.Delay > 0 {
		limit = rate.Every(p.Delay)
	}
	limiter := rate.NewLimiter(limit, 1)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.MaxConcurrency)
	for i := 0; i < n; i++ {
		if err := limiter.Wait(gctx); err != nil {
			_ = g.Wait()
			return err
		}
		i := i
		g.Go(func() error {
			fn(gctx, i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (p Policy) sequential(ctx context.Context, n int, fn func(ctx context.Context, i int)) error {
	for i := 0; i < n; i++ {
		if i > 0 && p.Delay > 0 {
			t := time.NewTimer(p.Delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(ctx, i)
	}
	return nil
}
