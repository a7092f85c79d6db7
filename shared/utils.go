package shared

import (
	"context"
	"sync"
)

// ForEach calls fn for every item with at most numThreads calls in flight. Once ctx is done no
// further items are started, the calls already running are waited for. The first error is
// returned, or ctx.Err() if items were skipped because of cancellation.
func ForEach[T any](ctx context.Context, items []T, numThreads int, fn func(context.Context, T) error) error {
	if numThreads < 1 {
		numThreads = 1
	}
	wg := &sync.WaitGroup{}
	limiter := make(chan bool, numThreads)
	var mu sync.Mutex
	var errors []error
	for _, item := range items {
		select {
		case limiter <- true:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			mu.Lock()
			errors = append(errors, ctx.Err())
			mu.Unlock()
			break
		}
		wg.Add(1)
		go func(x T) {
			defer wg.Done()
			defer func() { <-limiter }()
			err := fn(ctx, x)
			if err != nil {
				mu.Lock()
				errors = append(errors, err)
				mu.Unlock()
			}
		}(item)
	}
	wg.Wait()
	if len(errors) > 0 {
		return errors[0]
	}
	return nil
}
