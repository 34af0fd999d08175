// Package pool runs independent per-item work, such as asset downloads,
// across a bounded number of goroutines.
package pool

import (
	"context"
	"sync"
)

// Outcome carries one item's result or error.
type Outcome[T any] struct {
	Result T
	Err    error
}

// Map applies worker to every item using at most maxWorkers goroutines and
// returns one outcome per item, in input order. Once ctx is cancelled no new
// items are started; items already running finish, and unstarted items are
// reported with ctx.Err().
func Map[In any, Out any](ctx context.Context, items []In, maxWorkers int, worker func(In) (Out, error)) []Outcome[Out] {
	outcomes := make([]Outcome[Out], len(items))
	indices := make(chan int, len(items))
	for i := range items {
		indices <- i
	}
	close(indices)

	workers := min(len(items), max(maxWorkers, 1))

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range indices {
				if err := ctx.Err(); err != nil {
					outcomes[i].Err = err
					continue
				}
				outcomes[i].Result, outcomes[i].Err = worker(items[i])
			}
		}()
	}
	wg.Wait()

	return outcomes
}
