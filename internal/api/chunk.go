package api

import (
	"context"
	"sync"
	"time"
)

// InChunks runs fn over items in fixed-size chunks: every item within a
// chunk executes concurrently, the call suspends until the whole chunk has
// resolved, then waits delay before starting the next chunk. The chunk
// boundary and the inter-chunk delay are deliberate rate-limit respect,
// not incidental. fn is responsible for swallowing per-item failures;
// whatever it returns is gathered in item order.
func InChunks[T, R any](ctx context.Context, items []T, size int, delay time.Duration, fn func(context.Context, T) []R) ([]R, error) {
	if size <= 0 {
		size = 1
	}

	var gathered []R
	for start := 0; start < len(items); start += size {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunk := items[start:end]

		results := make([][]R, len(chunk))
		var wg sync.WaitGroup
		for i, item := range chunk {
			wg.Add(1)
			go func(i int, item T) {
				defer wg.Done()
				results[i] = fn(ctx, item)
			}(i, item)
		}
		wg.Wait()

		for _, r := range results {
			gathered = append(gathered, r...)
		}

		if end < len(items) && delay > 0 {
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
	}

	return gathered, nil
}
