// Package workerpool runs a fixed-size pool of goroutines over a batch of
// tasks, collecting results as they complete rather than in submission
// order, and supports cooperative cancellation bounded by the time of one
// in-flight unit of work.
package workerpool

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Result pairs a task's original index (its position in the slice passed to
// Run) with the value or error that task produced. Callers reassemble
// per-file state by Index since results arrive out of order.
type Result[R any] struct {
	Index int
	Value R
	Err   error
}

// WorkFunc does the work for a single task.
type WorkFunc[T, R any] func(ctx context.Context, task T) (R, error)

// Pool runs tasks across a bounded number of goroutines. The zero value is
// not usable; construct with New.
type Pool[T, R any] struct {
	workers   int
	cancelled atomic.Bool
}

// New creates a pool with the given worker count, clamped to at least 1.
func New[T, R any](workers int) *Pool[T, R] {
	if workers < 1 {
		workers = 1
	}
	return &Pool[T, R]{workers: workers}
}

// RequestCancellation flips the pool's cancellation flag. Safe to call
// concurrently with Run from another goroutine. Work already in flight runs
// to completion; the flag is checked before starting the next task and
// again before that task's result is published, so cancellation is bounded
// by the duration of a single unit of work, not the whole batch.
func (p *Pool[T, R]) RequestCancellation() {
	p.cancelled.Store(true)
}

// Cancelled reports whether RequestCancellation has been called.
func (p *Pool[T, R]) Cancelled() bool {
	return p.cancelled.Load()
}

// Run executes work over tasks across the pool's worker goroutines and
// returns every result that was published before cancellation (if any).
// Results omitted due to cancellation are simply absent from the returned
// slice; Run itself never returns an error for a cancellation, only for a
// context deadline exceeded/cancelled event on ctx.
func (p *Pool[T, R]) Run(ctx context.Context, tasks []T, work WorkFunc[T, R]) ([]Result[R], error) {
	var mu sync.Mutex
	results := make([]Result[R], 0, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			if p.cancelled.Load() {
				return nil
			}
			if err := gctx.Err(); err != nil {
				return err
			}

			value, err := work(gctx, task)

			if p.cancelled.Load() {
				return nil
			}

			mu.Lock()
			results = append(results, Result[R]{Index: i, Value: value, Err: err})
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
