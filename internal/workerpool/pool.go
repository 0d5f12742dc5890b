// Package workerpool provides the bounded-concurrency primitive the
// Step Executor uses to run a dispatch wave: each operation in the
// wave gets its own goroutine, gated by a semaphore capped at a
// configured maximum so a wide wave cannot spawn unbounded goroutines.
//
// Grounded on internal/application/executor/engine.go's executeWave:
// same semaphore-channel-plus-WaitGroup shape, same "collect every
// error, don't let one failure abort the others" policy — the
// difference is this spec's "errors are values" contract means a
// worker's error return represents a structural failure (a Go error),
// not a cell's own execution failure (which step.Run already folds
// into the resulting ExecutionState instead of returning it).
package workerpool

import (
	"context"
	"sync"
)

// Pool runs a batch of work items with at most Limit running
// concurrently.
type Pool struct {
	Limit int
}

// New returns a Pool capped at limit concurrent workers. A limit <= 0
// means unbounded (one goroutine per item).
func New(limit int) *Pool {
	return &Pool{Limit: limit}
}

// Run executes fn(ctx, i) for every index in [0, n), gated by the
// pool's concurrency limit, and returns every non-nil error collected
// (order not guaranteed to match index order). Run blocks until every
// item has completed or ctx is canceled.
func (p *Pool) Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) []error {
	if n == 0 {
		return nil
	}
	limit := p.Limit
	if limit <= 0 || limit > n {
		limit = n
	}

	semaphore := make(chan struct{}, limit)
	errCh := make(chan error, n)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			select {
			case semaphore <- struct{}{}:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
			defer func() { <-semaphore }()

			if err := fn(ctx, i); err != nil {
				errCh <- err
			}
		}(i)
	}

	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	return errs
}
