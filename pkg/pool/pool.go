package pool

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// WorkerFunc defines the function signature for a worker that processes an item and may return an error.
type WorkerFunc[T any] func(ctx context.Context, item T) error

// Run processes items with at most numWorkers concurrent workers.
// A failing item does not stop the others; every error is returned in completion order.
// Once ctx is cancelled no further items are started.
func Run[T any](ctx context.Context, items []T, numWorkers int, workerFunc WorkerFunc[T]) []error {
	if numWorkers < 1 {
		numWorkers = 1
	}

	var (
		mu        sync.Mutex
		allErrors []error
	)

	g := new(errgroup.Group)
	g.SetLimit(numWorkers)

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		item := item
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if err := workerFunc(ctx, item); err != nil {
				mu.Lock()
				allErrors = append(allErrors, err)
				mu.Unlock()
			}
			return nil
		})
	}

	_ = g.Wait()
	return allErrors
}
