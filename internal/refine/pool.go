package refine

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ItemFailure records one child item whose call failed. Failures never
// propagate to sibling items.
type ItemFailure struct {
	Key     string
	Message string
}

// forEachItem runs fn for every item across a worker pool bounded to limit
// simultaneously active calls (minimum 1). Each item's outcome is captured
// independently; results are returned re-sorted into input order regardless
// of completion timing, and failures are returned as (key, message) pairs
// in input order. Callers decide what zero successes means.
func forEachItem[T, R any](
	ctx context.Context,
	items []T,
	limit int,
	key func(T) string,
	fn func(context.Context, T) (R, error),
) ([]R, []ItemFailure) {
	if limit < 1 {
		limit = 1
	}

	results := make([]R, len(items))
	errs := make([]error, len(items))
	sem := semaphore.NewWeighted(int64(limit))

	var wg sync.WaitGroup
	for i := range items {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				errs[i] = err
				return
			}
			defer sem.Release(1)
			results[i], errs[i] = fn(ctx, items[i])
		}(i)
	}
	wg.Wait()

	ordered := make([]R, 0, len(items))
	var failures []ItemFailure
	for i := range items {
		if errs[i] != nil {
			failures = append(failures, ItemFailure{Key: key(items[i]), Message: errs[i].Error()})
			continue
		}
		ordered = append(ordered, results[i])
	}
	return ordered, failures
}
