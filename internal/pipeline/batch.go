package pipeline

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// RunBatch runs fn for every index in [0, count) with at most maxConcurrency
// invocations in flight, joining them all. Results are aligned by index; a
// failing item records its error at its own slot and never cancels or skips
// the others. With maxConcurrency 1 the items run strictly one after
// another.
func RunBatch(ctx context.Context, count, maxConcurrency int, fn func(ctx context.Context, index int) error) []error {
	if count == 0 {
		return nil
	}
	if maxConcurrency <= 0 || maxConcurrency > count {
		maxConcurrency = count
	}
	sem := semaphore.NewWeighted(int64(maxConcurrency))

	errs := make([]error, count)
	var wg sync.WaitGroup
	for i := 0; i < count; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				errs[i] = err
				return
			}
			defer sem.Release(1)
			errs[i] = runItem(ctx, i, fn)
		}()
	}
	wg.Wait()
	return errs
}

func runItem(ctx context.Context, index int, fn func(ctx context.Context, index int) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, index)
}
