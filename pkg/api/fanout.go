package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ItemError wraps the failure of a single fan-out item with its key.
type ItemError struct {
	Key string
	Err error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %s: %v", e.Key, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// FanOut executes fn over every item concurrently with at most workers
// goroutines. A cap of zero or less means one worker per item (full
// parallelism).
//
// One item's failure never cancels sibling work: every item is attempted,
// and all failures are aggregated into a single joined error identifying
// each failing key. The result map always holds the outputs of the items
// that succeeded, even when an error is returned.
//
// Workers share no mutable state; each receives its own item and returns
// a value. Aggregation happens on the calling goroutine after all workers
// finish.
func FanOut[K comparable, V any, R any](ctx context.Context, items map[K]V, workers int, fn func(ctx context.Context, key K, item V) (R, error)) (map[K]R, error) {
	if len(items) == 0 {
		return map[K]R{}, nil
	}
	if workers <= 0 || workers > len(items) {
		workers = len(items)
	}

	type outcome struct {
		key K
		res R
		err error
	}

	in := make(chan K, len(items))
	out := make(chan outcome, len(items))

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for key := range in {
				res, err := fn(ctx, key, items[key])
				out <- outcome{key: key, res: res, err: err}
			}
		}()
	}

	for key := range items {
		in <- key
	}
	close(in)

	wg.Wait()
	close(out)

	results := make(map[K]R, len(items))
	var errs []error
	for o := range out {
		if o.err != nil {
			errs = append(errs, &ItemError{Key: fmt.Sprint(o.key), Err: o.err})
			continue
		}
		results[o.key] = o.res
	}

	if len(errs) > 0 {
		return results, errors.Join(errs...)
	}
	return results, nil
}
