package sfo

import (
	"context"
	"fmt"

	"github.com/YuminosukeSato/stepwise/core/model"
	"github.com/YuminosukeSato/stepwise/core/parallel"
	sfoerrors "github.com/YuminosukeSato/stepwise/pkg/errors"
)

// RangeScorer scores the features in one contiguous index range. It is the
// per-partition likelihood computation, supplied by the caller.
type RangeScorer func(ctx context.Context, base *model.IncrementalModel, features parallel.Range) ([]model.FeatureGain, error)

// PartitionedEvaluator splits the feature space into Partitions ranges and
// scores them in parallel, returning all candidates in range order.
type PartitionedEvaluator struct {
	NumFeatures int
	Partitions  int // <= 0 means one per CPU
	Concurrency int // <= 0 means one per CPU
	Score       RangeScorer
}

// Evaluate implements Evaluator.
func (e *PartitionedEvaluator) Evaluate(ctx context.Context, base *model.IncrementalModel) ([]model.FeatureGain, error) {
	if e.Score == nil {
		return nil, sfoerrors.NewValidationError("score", "must not be nil", nil)
	}
	ranges := parallel.Ranges(e.NumFeatures, e.Partitions)
	return parallel.Collect(ctx, len(ranges), e.Concurrency, func(ctx context.Context, p int) (gains []model.FeatureGain, err error) {
		defer sfoerrors.Recover(&err, fmt.Sprintf("score[partition=%d]", p))
		return e.Score(ctx, base, ranges[p])
	})
}

// UnusedDimensions returns the dimensions of r that base does not use yet,
// i.e. the features a scorer is allowed to offer.
func UnusedDimensions(base *model.IncrementalModel, r parallel.Range) []int {
	dims := make([]int, 0, r.Len())
	for d := r.Start; d < r.End; d++ {
		if !base.Has(d) {
			dims = append(dims, d)
		}
	}
	return dims
}
