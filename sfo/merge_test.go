package sfo

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/stepwise/core/model"
	sfoerrors "github.com/YuminosukeSato/stepwise/pkg/errors"
	"github.com/YuminosukeSato/stepwise/pkg/log"
)

func newTestMerger(t *testing.T, add int, opts ...MergerOption) (*Merger, *log.TestLogger) {
	t.Helper()
	logger, _ := log.NewTestLogger(log.LevelDebug)
	cfg, err := NewConfig(WithAddPerIteration(add))
	require.NoError(t, err)
	cfg.WarnNonPositiveGain = false
	m, err := NewMerger(cfg, append([]MergerOption{WithLogger(logger)}, opts...)...)
	require.NoError(t, err)
	return m, logger
}

func scenarioCandidates() []model.FeatureGain {
	return []model.FeatureGain{
		{Dimension: 3, Gain: 0.5, Coefficient: 0.1},
		{Dimension: 7, Gain: 0.9, Coefficient: -0.2},
		{Dimension: 2, Gain: 0.9, Coefficient: 0.05},
	}
}

func TestMerge_ScenarioAddOne(t *testing.T) {
	m, logger := newTestMerger(t, 1)

	next, err := m.Merge(model.NewIncrementalModel(), scenarioCandidates())
	require.NoError(t, err)

	assert.Equal(t, []int{2}, next.UsedDimensions())
	c, ok := next.Coefficient(2)
	require.True(t, ok)
	assert.Equal(t, 0.05, c)

	assert.True(t, logger.ContainsMessage("Best coefficients"))
	assert.True(t, logger.ContainsField(log.DimensionKey, 2.0))
	assert.Equal(t, 1, logger.CountMessages("Add to base model"))
	assert.Equal(t, 3, logger.CountMessages("Ranked candidate"))
	assert.True(t, logger.ContainsField(log.InterceptKey, 0.0))
	assert.True(t, logger.ContainsField(log.OperationKey, log.OperationRank))
}

func TestMerge_ScenarioAddTwo(t *testing.T) {
	m, _ := newTestMerger(t, 2)

	next, selected, err := m.MergeSelected(model.NewIncrementalModel(), scenarioCandidates())
	require.NoError(t, err)

	assert.Equal(t, []int{2, 7}, next.UsedDimensions())
	require.Len(t, selected, 2)
	assert.Equal(t, 2, selected[0].Dimension, "tie-break picks the lower dimension first")
	assert.Equal(t, 7, selected[1].Dimension)
	assert.False(t, next.Has(3))
}

func TestMerge_ScenarioEmptyCandidates(t *testing.T) {
	m, _ := newTestMerger(t, 1)

	_, err := m.Merge(model.NewIncrementalModel(), nil)

	var short *sfoerrors.InsufficientCandidatesError
	require.True(t, sfoerrors.As(err, &short))
	assert.Equal(t, 1, short.Requested)
	assert.Equal(t, 0, short.Available)
}

func TestMerge_SelectsTopByGain(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		n := 1 + rng.Intn(40)
		add := 1 + rng.Intn(n)
		perm := rng.Perm(1000)[:n]
		candidates := make([]model.FeatureGain, n)
		for i, d := range perm {
			candidates[i] = model.FeatureGain{Dimension: d, Gain: rng.NormFloat64(), Coefficient: rng.NormFloat64()}
		}

		// hand-sorted reference
		ref := append([]model.FeatureGain(nil), candidates...)
		sort.SliceStable(ref, func(i, j int) bool {
			if ref[i].Gain != ref[j].Gain {
				return ref[i].Gain > ref[j].Gain
			}
			return ref[i].Dimension < ref[j].Dimension
		})
		wantDims := make([]int, add)
		for i := range wantDims {
			wantDims[i] = ref[i].Dimension
		}
		sort.Ints(wantDims)

		m, _ := newTestMerger(t, add)
		base := model.NewIncrementalModel()
		next, err := m.Merge(base, candidates)
		require.NoError(t, err)

		assert.Equal(t, wantDims, next.UsedDimensions(), "trial %d", trial)
		assert.Equal(t, base.Size()+add, next.Size())
		for _, c := range ref[:add] {
			got, _ := next.Coefficient(c.Dimension)
			assert.Equal(t, c.Coefficient, got)
		}
	}
}

func TestMerge_GrowsByAddPerIteration(t *testing.T) {
	base, err := model.NewSeededModel(map[int]float64{0: 1, 1: -1}, 0.25)
	require.NoError(t, err)
	m, _ := newTestMerger(t, 3)

	candidates := []model.FeatureGain{
		{Dimension: 5, Gain: 0.1}, {Dimension: 6, Gain: 0.2}, {Dimension: 8, Gain: 0.3}, {Dimension: 9, Gain: 0.05},
	}
	next, err := m.Merge(base, candidates)
	require.NoError(t, err)

	assert.Equal(t, base.Size()+3, next.Size())
	assert.Equal(t, 0.25, next.Intercept(), "intercept is preserved")
	assert.Equal(t, []int{0, 1, 5, 6, 8}, next.UsedDimensions())
}

func TestMerge_InsufficientLeavesModelUnmutated(t *testing.T) {
	base, err := model.NewSeededModel(map[int]float64{4: 0.5}, 0)
	require.NoError(t, err)
	snapshot := base.Clone()
	m, _ := newTestMerger(t, 3)

	next, err := m.Merge(base, scenarioCandidates()[:2])

	assert.Nil(t, next)
	var short *sfoerrors.InsufficientCandidatesError
	require.True(t, sfoerrors.As(err, &short))
	assert.Equal(t, 1, short.ModelSize)
	assert.True(t, base.Equal(snapshot))
}

func TestMerge_DuplicateDimension(t *testing.T) {
	base, err := model.NewSeededModel(map[int]float64{7: 1}, 0)
	require.NoError(t, err)
	snapshot := base.Clone()
	m, _ := newTestMerger(t, 2)

	_, err = m.Merge(base, scenarioCandidates())

	var dup *sfoerrors.DuplicateDimensionError
	require.True(t, sfoerrors.As(err, &dup))
	assert.Equal(t, 7, dup.Dimension)
	assert.True(t, base.Equal(snapshot), "no partial application")
}

func TestMerge_DuplicateWithinSelection(t *testing.T) {
	m, _ := newTestMerger(t, 2)
	candidates := []model.FeatureGain{
		{Dimension: 4, Gain: 1.0, Coefficient: 0.1},
		{Dimension: 4, Gain: 0.9, Coefficient: 0.2},
		{Dimension: 1, Gain: 0.1},
	}

	_, err := m.Merge(model.NewIncrementalModel(), candidates)

	var dup *sfoerrors.DuplicateDimensionError
	assert.True(t, sfoerrors.As(err, &dup))
}

func TestMerge_DuplicateOutsideSelectionIsIgnored(t *testing.T) {
	base, err := model.NewSeededModel(map[int]float64{3: 1}, 0)
	require.NoError(t, err)
	m, _ := newTestMerger(t, 1)

	// dimension 3 is re-offered but ranks last and is never selected
	next, err := m.Merge(base, scenarioCandidates())
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, next.UsedDimensions())
}

func TestMerge_MissingBaseModel(t *testing.T) {
	m, _ := newTestMerger(t, 1)

	_, err := m.Merge(nil, scenarioCandidates())

	var missing *sfoerrors.MissingBaseModelError
	assert.True(t, sfoerrors.As(err, &missing))
}

func TestMerge_MalformedCandidate(t *testing.T) {
	m, _ := newTestMerger(t, 1)
	candidates := append(scenarioCandidates(), model.FeatureGain{Dimension: 9, Gain: math.NaN()})

	_, err := m.Merge(model.NewIncrementalModel(), candidates)

	var malformed *sfoerrors.MalformedRecordError
	require.True(t, sfoerrors.As(err, &malformed))
	assert.Equal(t, "gain", malformed.Field)
}

func TestMerge_DeterministicAcrossArrivalOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	candidates := make([]model.FeatureGain, 60)
	for i := range candidates {
		candidates[i] = model.FeatureGain{Dimension: i, Gain: float64(rng.Intn(3)), Coefficient: rng.Float64()}
	}
	m, _ := newTestMerger(t, 5)
	want, err := m.Merge(model.NewIncrementalModel(), candidates)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		shuffled := append([]model.FeatureGain(nil), candidates...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got, err := m.Merge(model.NewIncrementalModel(), shuffled)
		require.NoError(t, err)
		assert.True(t, want.Equal(got), "arrival order %d changed the result", i)
	}
}

func TestMerge_PublishedBaseIsNotModified(t *testing.T) {
	base := model.NewIncrementalModel().Publish()
	m, _ := newTestMerger(t, 1)

	next, err := m.Merge(base, scenarioCandidates())
	require.NoError(t, err)
	assert.Equal(t, 0, base.Size())
	assert.False(t, next.IsPublished())
}

func TestMerge_LogTopK(t *testing.T) {
	logger, _ := log.NewTestLogger(log.LevelDebug)
	cfg, err := NewConfig(WithLogTopK(1))
	require.NoError(t, err)
	m, err := NewMerger(cfg, WithLogger(logger))
	require.NoError(t, err)

	_, err = m.Merge(model.NewIncrementalModel(), scenarioCandidates())
	require.NoError(t, err)
	assert.Equal(t, 1, logger.CountMessages("Ranked candidate"))
}

func TestMerge_WarnsOnNonPositiveGain(t *testing.T) {
	var warnings []error
	sfoerrors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer sfoerrors.SetWarningHandler(func(error) {})

	logger, _ := log.NewTestLogger(log.LevelInfo)
	m, err := NewMerger(DefaultConfig(), WithLogger(logger))
	require.NoError(t, err)

	_, err = m.Merge(model.NewIncrementalModel(), []model.FeatureGain{{Dimension: 1, Gain: -0.4}})
	require.NoError(t, err)

	require.Len(t, warnings, 1)
	var w *sfoerrors.NonPositiveGainWarning
	assert.True(t, sfoerrors.As(warnings[0], &w))
}

func TestMerge_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	m, _ := newTestMerger(t, 2, WithMetrics(metrics))

	_, err := m.Merge(model.NewIncrementalModel(), scenarioCandidates())
	require.NoError(t, err)
	_, err = m.Merge(model.NewIncrementalModel(), nil)
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.mergeTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.mergeTotal.WithLabelValues("InsufficientCandidatesError")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.selectedTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.modelDimensions))
}

func TestNewMerger_InvalidConfig(t *testing.T) {
	_, err := NewMerger(Config{AddPerIteration: 0})

	var invalid *sfoerrors.ValidationError
	require.True(t, sfoerrors.As(err, &invalid))
	assert.Equal(t, ConfKeyAddPerIteration, invalid.ParamName)
}
