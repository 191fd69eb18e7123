// Package parallel runs per-partition work concurrently and gathers the
// results behind a single barrier.
package parallel

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	sfoerrors "github.com/YuminosukeSato/stepwise/pkg/errors"
)

// Range is a half-open [Start, End) slice of item indices.
type Range struct {
	Start, End int
}

// Len returns the number of items in the range.
func (r Range) Len() int { return r.End - r.Start }

// Ranges divides items into at most workers contiguous ranges of near-equal size
// (ceiling division). workers <= 0 means runtime.NumCPU().
func Ranges(items, workers int) []Range {
	if items <= 0 {
		return nil
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > items {
		workers = items // No need for more workers than items
	}

	chunkSize := (items + workers - 1) / workers
	out := make([]Range, 0, workers)
	for start := 0; start < items; start += chunkSize {
		end := start + chunkSize
		if end > items {
			end = items
		}
		out = append(out, Range{Start: start, End: end})
	}
	return out
}

// Collect runs fn once per partition in [0, partitions) with at most limit
// goroutines in flight (limit <= 0 means runtime.NumCPU()), waits for all of
// them and returns their results concatenated in partition order.
//
// The first error cancels ctx for the remaining partitions and is returned;
// partial results are discarded. A panic in fn is returned as a PanicError
// instead of crashing the process.
func Collect[T any](ctx context.Context, partitions, limit int, fn func(ctx context.Context, partition int) ([]T, error)) ([]T, error) {
	if partitions <= 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = runtime.NumCPU()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var mu sync.Mutex
	results := make([][]T, partitions)
	for p := 0; p < partitions; p++ {
		p := p
		g.Go(func() (err error) {
			defer sfoerrors.Recover(&err, fmt.Sprintf("partition[%d]", p))
			var out []T
			out, err = fn(gctx, p)
			if err != nil {
				return err
			}
			mu.Lock()
			results[p] = out
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	n := 0
	for _, r := range results {
		n += len(r)
	}
	merged := make([]T, 0, n)
	for _, r := range results {
		merged = append(merged, r...)
	}
	return merged, nil
}
