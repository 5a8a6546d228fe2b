package pipeline

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// RunParallel executes the named tasks concurrently under a bounded admission
// gate and joins them all. Each task's error (or panic) is captured under its
// name; one task failing never cancels a sibling. The returned map has an
// entry only for tasks that failed.
func RunParallel(ctx context.Context, limit int64, tasks map[string]func(context.Context) error) map[string]error {
	if limit <= 0 {
		limit = int64(len(tasks))
	}
	sem := semaphore.NewWeighted(limit)

	var mu sync.Mutex
	var wg sync.WaitGroup
	failures := make(map[string]error)

	for name, task := range tasks {
		name, task := name, task
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				mu.Lock()
				failures[name] = err
				mu.Unlock()
				return
			}
			defer sem.Release(1)
			if err := runTask(ctx, task); err != nil {
				mu.Lock()
				failures[name] = err
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(failures) == 0 {
		return nil
	}
	return failures
}

func runTask(ctx context.Context, task func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return task(ctx)
}
