package sfo

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/stepwise/core/model"
	"github.com/YuminosukeSato/stepwise/core/parallel"
	sfoerrors "github.com/YuminosukeSato/stepwise/pkg/errors"
	"github.com/YuminosukeSato/stepwise/pkg/log"
)

// tableEvaluator offers fixed gains for the dimensions it owns, skipping used ones.
func tableEvaluator(gains map[int]float64) Evaluator {
	return EvaluatorFunc(func(_ context.Context, base *model.IncrementalModel) ([]model.FeatureGain, error) {
		if !base.IsPublished() {
			return nil, errors.New("evaluator received an unpublished model")
		}
		var out []model.FeatureGain
		for d, g := range gains {
			if !base.Has(d) {
				out = append(out, model.FeatureGain{Dimension: d, Gain: g, Coefficient: g / 10})
			}
		}
		return out, nil
	})
}

type memCheckpointer struct {
	mu     sync.Mutex
	rounds []RoundSummary
	models []*model.IncrementalModel
	fail   error
}

func (m *memCheckpointer) SaveRound(_ context.Context, _ string, s RoundSummary, mdl *model.IncrementalModel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.rounds = append(m.rounds, s)
	m.models = append(m.models, mdl)
	return nil
}

func newTestCoordinator(t *testing.T, add int, evaluators []Evaluator, opts ...CoordinatorOption) *Coordinator {
	t.Helper()
	merger, _ := newTestMerger(t, add)
	logger, _ := log.NewTestLogger(log.LevelDebug)
	c, err := NewCoordinator(merger, evaluators, append([]CoordinatorOption{WithCoordinatorLogger(logger)}, opts...)...)
	require.NoError(t, err)
	return c
}

func TestCoordinator_Run(t *testing.T) {
	evaluators := []Evaluator{
		tableEvaluator(map[int]float64{0: 0.4, 1: 0.9}),
		tableEvaluator(map[int]float64{2: 0.7, 3: 0.1}),
		tableEvaluator(map[int]float64{4: 0.9, 5: 0.2}),
	}
	cp := &memCheckpointer{}
	c := newTestCoordinator(t, 1, evaluators, WithCheckpointer(cp), WithRunID("run-1"))

	final, err := c.Run(context.Background(), model.NewIncrementalModel(), 4)
	require.NoError(t, err)

	// 1 and 4 tie at 0.9: lower dimension first
	assert.Equal(t, []int{0, 1, 2, 4}, final.UsedDimensions())
	assert.True(t, final.IsPublished())
	assert.Equal(t, "run-1", c.RunID())

	history := c.History()
	require.Len(t, history, 4)
	wantOrder := []int{1, 4, 2, 0}
	for i, s := range history {
		assert.Equal(t, i, s.Round)
		assert.Equal(t, i+1, s.ModelSize)
		require.Len(t, s.Selected, 1)
		assert.Equal(t, wantOrder[i], s.Selected[0].Dimension)
	}
	assert.Equal(t, 6, history[0].Candidates)
	assert.Equal(t, 0.9, history[0].BestGain())

	require.Len(t, cp.rounds, 4)
	assert.True(t, cp.models[3].Equal(final))
}

func TestCoordinator_InsufficientCandidates(t *testing.T) {
	c := newTestCoordinator(t, 2, []Evaluator{tableEvaluator(map[int]float64{0: 1, 1: 0.5, 2: 0.25})})

	last, err := c.Run(context.Background(), model.NewIncrementalModel(), 3)

	var roundErr *sfoerrors.RoundError
	require.True(t, sfoerrors.As(err, &roundErr))
	assert.Equal(t, 1, roundErr.Round)
	assert.Equal(t, 2, roundErr.ModelSize)
	var short *sfoerrors.InsufficientCandidatesError
	assert.True(t, sfoerrors.As(err, &short))
	assert.Equal(t, []int{0, 1}, last.UsedDimensions(), "last good model is returned")
}

func TestCoordinator_EvaluatorReoffersUsedDimension(t *testing.T) {
	bad := EvaluatorFunc(func(context.Context, *model.IncrementalModel) ([]model.FeatureGain, error) {
		return []model.FeatureGain{{Dimension: 0, Gain: 5}}, nil
	})
	c := newTestCoordinator(t, 1, []Evaluator{bad})

	_, err := c.Run(context.Background(), model.NewIncrementalModel(), 2)

	var dup *sfoerrors.DuplicateDimensionError
	require.True(t, sfoerrors.As(err, &dup))
	assert.Equal(t, "DuplicateDimensionError", sfoerrors.Kind(err))
}

func TestCoordinator_EvaluatorPanic(t *testing.T) {
	boom := EvaluatorFunc(func(context.Context, *model.IncrementalModel) ([]model.FeatureGain, error) {
		panic("partition lost")
	})
	c := newTestCoordinator(t, 1, []Evaluator{tableEvaluator(map[int]float64{0: 1}), boom})

	_, err := c.Run(context.Background(), model.NewIncrementalModel(), 1)

	var panicErr *sfoerrors.PanicError
	require.True(t, sfoerrors.As(err, &panicErr))
	assert.Equal(t, "evaluate[partition=1]", panicErr.Operation)
}

func TestCoordinator_PartitionScorerPanic(t *testing.T) {
	e := &PartitionedEvaluator{
		NumFeatures: 4,
		Partitions:  2,
		Score: func(context.Context, *model.IncrementalModel, parallel.Range) ([]model.FeatureGain, error) {
			panic("scorer lost its data")
		},
	}
	c := newTestCoordinator(t, 1, []Evaluator{e})

	_, err := c.Run(context.Background(), model.NewIncrementalModel(), 1)

	assert.Equal(t, "PanicError", sfoerrors.Kind(err))
	var panicErr *sfoerrors.PanicError
	require.True(t, sfoerrors.As(err, &panicErr))
	assert.Contains(t, panicErr.Operation, "score[partition=")
	var roundErr *sfoerrors.RoundError
	assert.True(t, sfoerrors.As(err, &roundErr))
}

func TestCoordinator_SeedStaysWritable(t *testing.T) {
	c := newTestCoordinator(t, 1, []Evaluator{tableEvaluator(map[int]float64{0: 1, 1: 0.5})})
	seed := model.NewIncrementalModel()

	final, err := c.Run(context.Background(), seed, 2)
	require.NoError(t, err)

	assert.False(t, seed.IsPublished())
	assert.Equal(t, 0, seed.Size())
	require.NoError(t, seed.AddDimension(5, 0.1))
	assert.False(t, final.Has(5))
}

func TestCoordinator_LogsPartitions(t *testing.T) {
	merger, _ := newTestMerger(t, 1)
	logger, _ := log.NewTestLogger(log.LevelDebug)
	c, err := NewCoordinator(merger, []Evaluator{
		tableEvaluator(map[int]float64{0: 1}),
		tableEvaluator(map[int]float64{1: 2}),
	}, WithCoordinatorLogger(logger))
	require.NoError(t, err)

	_, err = c.Run(context.Background(), model.NewIncrementalModel(), 1)
	require.NoError(t, err)

	assert.Equal(t, 2, logger.CountMessages("Evaluator finished"))
	assert.True(t, logger.ContainsField(log.PartitionKey, 1.0))
}

func TestCoordinator_HistoryDuringRun(t *testing.T) {
	release := make(chan struct{})
	var once sync.Once
	slow := EvaluatorFunc(func(ctx context.Context, base *model.IncrementalModel) ([]model.FeatureGain, error) {
		once.Do(func() { <-release })
		var out []model.FeatureGain
		for d := 0; d < 20; d++ {
			if !base.Has(d) {
				out = append(out, model.FeatureGain{Dimension: d, Gain: float64(20 - d)})
			}
		}
		return out, nil
	})
	c := newTestCoordinator(t, 1, []Evaluator{slow})

	done := make(chan error)
	go func() {
		_, err := c.Run(context.Background(), model.NewIncrementalModel(), 10)
		done <- err
	}()
	close(release)

	var err error
	for running := true; running; {
		select {
		case err = <-done:
			running = false
		default:
			assert.LessOrEqual(t, len(c.History()), 10)
		}
	}
	require.NoError(t, err)
	assert.Len(t, c.History(), 10)
}

func TestCoordinator_EvaluatorMustNotMutate(t *testing.T) {
	mutating := EvaluatorFunc(func(_ context.Context, base *model.IncrementalModel) ([]model.FeatureGain, error) {
		if err := base.AddDimension(99, 1); err != nil {
			return nil, err
		}
		return []model.FeatureGain{{Dimension: 1, Gain: 1}}, nil
	})
	c := newTestCoordinator(t, 1, []Evaluator{mutating})

	_, err := c.Run(context.Background(), model.NewIncrementalModel(), 1)
	assert.True(t, sfoerrors.Is(err, sfoerrors.ErrModelPublished))
}

func TestCoordinator_CheckpointFailure(t *testing.T) {
	cp := &memCheckpointer{fail: errors.New("disk full")}
	c := newTestCoordinator(t, 1, []Evaluator{tableEvaluator(map[int]float64{0: 1})}, WithCheckpointer(cp))

	_, err := c.Run(context.Background(), model.NewIncrementalModel(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, c.History())
}

func TestCoordinator_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := newTestCoordinator(t, 1, []Evaluator{tableEvaluator(map[int]float64{0: 1})})
	seed := model.NewIncrementalModel()

	last, err := c.Run(ctx, seed, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Same(t, seed, last)
}

func TestCoordinator_MissingSeed(t *testing.T) {
	c := newTestCoordinator(t, 1, []Evaluator{tableEvaluator(map[int]float64{0: 1})})

	_, err := c.Run(context.Background(), nil, 1)

	var missing *sfoerrors.MissingBaseModelError
	assert.True(t, sfoerrors.As(err, &missing))
}

func TestNewCoordinator_Validation(t *testing.T) {
	merger, _ := newTestMerger(t, 1)

	_, err := NewCoordinator(nil, []Evaluator{tableEvaluator(nil)})
	assert.Error(t, err)
	_, err = NewCoordinator(merger, nil)
	assert.Error(t, err)

	c, err := NewCoordinator(merger, []Evaluator{tableEvaluator(nil)})
	require.NoError(t, err)
	assert.Len(t, c.RunID(), 36, "generated run id is a UUID")

	_, err = c.Run(context.Background(), model.NewIncrementalModel(), 0)
	var invalid *sfoerrors.ValidationError
	assert.True(t, sfoerrors.As(err, &invalid))
}

func TestPartitionedEvaluator(t *testing.T) {
	base, err := model.NewSeededModel(map[int]float64{3: 1}, 0)
	require.NoError(t, err)
	base.Publish()

	var mu sync.Mutex
	var seen []parallel.Range
	e := &PartitionedEvaluator{
		NumFeatures: 10,
		Partitions:  3,
		Concurrency: 2,
		Score: func(_ context.Context, base *model.IncrementalModel, r parallel.Range) ([]model.FeatureGain, error) {
			mu.Lock()
			seen = append(seen, r)
			mu.Unlock()
			var out []model.FeatureGain
			for _, d := range UnusedDimensions(base, r) {
				out = append(out, model.FeatureGain{Dimension: d, Gain: float64(d)})
			}
			return out, nil
		},
	}

	gains, err := e.Evaluate(context.Background(), base)
	require.NoError(t, err)
	assert.Len(t, seen, 3)
	dims := make([]int, len(gains))
	for i, g := range gains {
		dims[i] = g.Dimension
	}
	assert.Equal(t, []int{0, 1, 2, 4, 5, 6, 7, 8, 9}, dims)

	_, err = (&PartitionedEvaluator{NumFeatures: 1}).Evaluate(context.Background(), base)
	assert.Error(t, err)
}
