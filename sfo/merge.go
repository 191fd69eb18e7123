package sfo

import (
	"context"
	"time"

	"github.com/YuminosukeSato/stepwise/core/model"
	sfoerrors "github.com/YuminosukeSato/stepwise/pkg/errors"
	"github.com/YuminosukeSato/stepwise/pkg/log"
)

// Merger selects the best candidates of a round and folds them into the base model.
// It is the only component that mutates a model.
type Merger struct {
	cfg     Config
	logger  log.Logger
	metrics *Metrics
}

// MergerOption is a functional option for Merger.
type MergerOption func(*Merger)

// WithLogger sets the logger. Defaults to log.GetLoggerWithName("sfo.merge").
func WithLogger(l log.Logger) MergerOption {
	return func(m *Merger) {
		m.logger = l
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(metrics *Metrics) MergerOption {
	return func(m *Merger) {
		m.metrics = metrics
	}
}

// NewMerger validates cfg and creates a Merger.
func NewMerger(cfg Config, opts ...MergerOption) (*Merger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Merger{cfg: cfg}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = log.GetLoggerWithName("sfo.merge")
	}
	return m, nil
}

// Config returns the merger's validated configuration.
func (m *Merger) Config() Config {
	return m.cfg
}

// Merge returns a new model extended by the AddPerIteration highest-gain candidates.
// current is never modified, on success or failure.
//
// Errors:
//   - MissingBaseModelError: current is nil
//   - MalformedRecordError: a candidate has a negative dimension or a non-finite value
//   - InsufficientCandidatesError: fewer candidates than AddPerIteration
//   - DuplicateDimensionError: a selected dimension is already in current, or selected twice
func (m *Merger) Merge(current *model.IncrementalModel, candidates []model.FeatureGain) (*model.IncrementalModel, error) {
	next, _, err := m.MergeSelected(current, candidates)
	return next, err
}

// MergeSelected is Merge that also returns the selected candidates in rank order.
func (m *Merger) MergeSelected(current *model.IncrementalModel, candidates []model.FeatureGain) (next *model.IncrementalModel, selected []model.FeatureGain, err error) {
	started := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = sfoerrors.Kind(err)
		}
		m.metrics.observeMerge(result, started, len(candidates))
	}()

	if current == nil {
		return nil, nil, sfoerrors.NewMissingBaseModelError(RoundKey)
	}
	for _, c := range candidates {
		if err := c.Validate(); err != nil {
			return nil, nil, err
		}
	}

	ranked := model.Rank(candidates)
	m.logRanking(ranked)
	m.logger.Info("Old base model",
		log.ModelSizeKey, current.Size(),
		log.InterceptKey, current.Intercept(),
		log.CandidatesKey, len(ranked),
		log.AddPerIterationKey, m.cfg.AddPerIteration,
	)

	if len(ranked) < m.cfg.AddPerIteration {
		return nil, nil, sfoerrors.NewInsufficientCandidatesError(m.cfg.AddPerIteration, len(ranked), current.Size())
	}
	selected = ranked[:m.cfg.AddPerIteration]

	// check everything before touching the model so a failure never leaves a partial update
	seen := make(map[int]struct{}, len(selected))
	for _, c := range selected {
		if _, dup := seen[c.Dimension]; dup || current.Has(c.Dimension) {
			return nil, nil, sfoerrors.NewDuplicateDimensionError(c.Dimension, current.Size())
		}
		seen[c.Dimension] = struct{}{}
	}

	next = current.Clone()
	for _, c := range selected {
		if err := next.AddDimension(c.Dimension, c.Coefficient); err != nil {
			return nil, nil, err
		}
		m.logger.Info("Add to base model",
			log.DimensionKey, c.Dimension,
			log.GainKey, c.Gain,
			log.CoefficientKey, c.Coefficient,
		)
		if m.cfg.WarnNonPositiveGain && c.Gain <= 0 {
			sfoerrors.Warn(sfoerrors.NewNonPositiveGainWarning(c.Dimension, c.Gain))
		}
		m.metrics.observeSelected(c.Gain)
	}
	m.metrics.setModelSize(next.Size())

	return next, selected, nil
}

func (m *Merger) logRanking(ranked []model.FeatureGain) {
	if !m.logger.Enabled(context.Background(), log.LevelDebug) {
		return
	}
	m.logger.Debug("Best coefficients", log.OperationKey, log.OperationRank, log.CandidatesKey, len(ranked))
	limit := len(ranked)
	if m.cfg.LogTopK > 0 && m.cfg.LogTopK < limit {
		limit = m.cfg.LogTopK
	}
	for i, c := range ranked[:limit] {
		m.logger.Debug("Ranked candidate",
			log.RankKey, i,
			log.DimensionKey, c.Dimension,
			log.GainKey, c.Gain,
			log.CoefficientKey, c.Coefficient,
		)
	}
}
