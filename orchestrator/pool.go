package orchestrator

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool bounds how many pledge sessions run concurrently (spec.md §5:
// "concurrency is bounded by a configurable worker pool"), grounded on
// golang.org/x/sync/semaphore's weighted semaphore rather than a
// fixed-size goroutine/channel pool, since sessions are launched
// on-demand as pledges are discovered rather than drained from a
// pre-sized queue.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool constructs a Pool admitting at most maxConcurrent sessions.
func NewPool(maxConcurrent int64) *Pool {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Pool{sem: semaphore.NewWeighted(maxConcurrent)}
}

// Run blocks until a slot is available (or ctx is cancelled), then
// runs fn while holding it. If ctx ends while waiting, Run returns the
// context's error unwrapped and fn is never called.
func (p *Pool) Run(ctx context.Context, fn func(context.Context)) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	fn(ctx)
	return nil
}
