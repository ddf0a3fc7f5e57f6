package util

import (
	"context"
	"sync"
)

// Parallel calls fn for every item with at most limit calls in flight. The
// first error cancels the context handed to the remaining calls, stops new
// ones from starting and is returned. A cancelled parent yields its error.
func Parallel[T any](parent context.Context, items []T, limit int, fn func(context.Context, T) error) error {
	if limit < 1 {
		limit = 1
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	slots := make(chan struct{}, limit)

	for _, item := range items {
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(item T) {
			defer func() {
				<-slots
				wg.Done()
			}()
			if err := fn(ctx, item); err != nil {
				once.Do(func() {
					firstErr = err
					cancel()
				})
			}
		}(item)
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return parent.Err()
}
