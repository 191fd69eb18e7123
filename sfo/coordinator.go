package sfo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/stepwise/core/model"
	"github.com/YuminosukeSato/stepwise/core/parallel"
	sfoerrors "github.com/YuminosukeSato/stepwise/pkg/errors"
	"github.com/YuminosukeSato/stepwise/pkg/log"
)

// Evaluator scores candidate features against a published base model. It runs
// concurrently with other evaluators of the same round and must treat base as
// read-only. Features already in base must not be offered.
type Evaluator interface {
	Evaluate(ctx context.Context, base *model.IncrementalModel) ([]model.FeatureGain, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, base *model.IncrementalModel) ([]model.FeatureGain, error)

// Evaluate implements Evaluator.
func (f EvaluatorFunc) Evaluate(ctx context.Context, base *model.IncrementalModel) ([]model.FeatureGain, error) {
	return f(ctx, base)
}

// RoundSummary describes one completed round.
type RoundSummary struct {
	Round      int                 `json:"round"`
	ModelSize  int                 `json:"model_size"`
	Candidates int                 `json:"candidates"`
	Selected   []model.FeatureGain `json:"selected"`
}

// BestGain returns the gain of the top selected candidate, or 0 if none.
func (s RoundSummary) BestGain() float64 {
	if len(s.Selected) == 0 {
		return 0
	}
	return s.Selected[0].Gain
}

// Checkpointer persists the model published at the end of each round.
type Checkpointer interface {
	SaveRound(ctx context.Context, runID string, summary RoundSummary, m *model.IncrementalModel) error
}

// Coordinator drives rounds: it publishes the base model to the evaluators,
// waits for all of them, co-groups their candidates with the model and hands
// the group to the Merger. It owns the model between rounds; nothing else
// holds a writable reference.
type Coordinator struct {
	merger     *Merger
	evaluators []Evaluator
	checkpoint Checkpointer
	logger     log.Logger
	runID      string

	mu      sync.Mutex
	history []RoundSummary
}

// CoordinatorOption is a functional option for Coordinator.
type CoordinatorOption func(*Coordinator)

// WithCheckpointer saves every merged model.
func WithCheckpointer(cp Checkpointer) CoordinatorOption {
	return func(c *Coordinator) {
		c.checkpoint = cp
	}
}

// WithRunID overrides the generated run identifier.
func WithRunID(id string) CoordinatorOption {
	return func(c *Coordinator) {
		c.runID = id
	}
}

// WithCoordinatorLogger sets the coordinator's logger.
func WithCoordinatorLogger(l log.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// NewCoordinator creates a Coordinator over the given evaluators.
func NewCoordinator(merger *Merger, evaluators []Evaluator, opts ...CoordinatorOption) (*Coordinator, error) {
	if merger == nil {
		return nil, sfoerrors.NewValidationError("merger", "must not be nil", nil)
	}
	if len(evaluators) == 0 {
		return nil, sfoerrors.NewValidationError("evaluators", "at least one evaluator is required", 0)
	}
	c := &Coordinator{merger: merger, evaluators: evaluators}
	for _, opt := range opts {
		opt(c)
	}
	if c.runID == "" {
		c.runID = uuid.NewString()
	}
	if c.logger == nil {
		c.logger = log.GetLoggerWithName("sfo.coordinator")
	}
	c.logger = c.logger.With(log.RunIDKey, c.runID)
	return c, nil
}

// RunID returns the run identifier used in logs and checkpoints.
func (c *Coordinator) RunID() string {
	return c.runID
}

// History returns the summaries of the rounds completed so far. It may be
// called while Run is in progress.
func (c *Coordinator) History() []RoundSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]RoundSummary, len(c.history))
	copy(out, c.history)
	return out
}

// Run executes rounds sequentially starting from seed and returns the final
// model. On failure it returns the last successfully merged model (seed if
// none) together with a RoundError naming the failed round. seed itself is
// never modified or frozen.
func (c *Coordinator) Run(ctx context.Context, seed *model.IncrementalModel, rounds int) (*model.IncrementalModel, error) {
	if rounds < 1 {
		return seed, sfoerrors.NewValidationError("rounds", "must be >= 1", rounds)
	}
	current := seed
	for r := 0; r < rounds; r++ {
		if err := ctx.Err(); err != nil {
			return current, sfoerrors.NewRoundError(r, sizeOf(current), err)
		}
		next, err := c.RunRound(ctx, r, current)
		if err != nil {
			return current, err
		}
		current = next
	}
	return current, nil
}

// RunRound executes one round against base and returns the published next model.
// Evaluators only see a published (read-only) model: an unpublished base is
// cloned and the clone is published, so the caller's model stays writable.
func (c *Coordinator) RunRound(ctx context.Context, round int, base *model.IncrementalModel) (*model.IncrementalModel, error) {
	if base == nil {
		return nil, sfoerrors.NewRoundError(round, 0, sfoerrors.NewMissingBaseModelError(RoundKey))
	}
	started := time.Now()
	logger := c.logger.With(log.RoundKey, round)
	if !base.IsPublished() {
		base = base.Clone().Publish()
	}

	candidates, err := parallel.Collect(ctx, len(c.evaluators), c.merger.cfg.EvaluatorConcurrency,
		func(ctx context.Context, p int) (gains []model.FeatureGain, err error) {
			defer sfoerrors.Recover(&err, fmt.Sprintf("evaluate[partition=%d]", p))
			gains, err = c.evaluators[p].Evaluate(ctx, base)
			if err == nil {
				logger.Debug("Evaluator finished", log.PartitionKey, p, log.CandidatesKey, len(gains))
			}
			return gains, err
		})
	if err != nil {
		logger.Error("Evaluation failed", err,
			log.OperationKey, log.OperationEvaluate,
			log.ErrorKindKey, sfoerrors.Kind(err),
		)
		return nil, sfoerrors.NewRoundError(round, base.Size(), err)
	}
	logger.Debug("Evaluators finished", log.CandidatesKey, len(candidates))

	records := make([]Record, 0, len(candidates)+1)
	records = append(records, ModelRecord(RoundKey, base))
	for _, g := range candidates {
		records = append(records, GainRecord(RoundKey, g))
	}
	groups, err := CoGroup(records)
	if err != nil {
		return nil, sfoerrors.NewRoundError(round, base.Size(), err)
	}

	out, err := c.merger.MergeRound(groups[0])
	if err != nil {
		logger.Error("Merge failed", err,
			log.OperationKey, log.OperationMerge,
			log.ErrorKindKey, sfoerrors.Kind(err),
			log.ModelSizeKey, base.Size(),
		)
		return nil, sfoerrors.NewRoundError(round, base.Size(), err)
	}
	next := out.Model.Publish()

	summary := RoundSummary{
		Round:      round,
		ModelSize:  next.Size(),
		Candidates: len(candidates),
		Selected:   out.Selected,
	}
	if c.checkpoint != nil {
		if err := c.checkpoint.SaveRound(ctx, c.runID, summary, next); err != nil {
			logger.Error("Checkpoint failed", err, log.OperationKey, log.OperationCheckpoint)
			return nil, sfoerrors.NewRoundError(round, base.Size(), sfoerrors.Wrap(err, "checkpoint"))
		}
	}
	c.mu.Lock()
	c.history = append(c.history, summary)
	c.mu.Unlock()

	logger.Info("Round merged",
		log.GroupKeyKey, out.Key,
		log.ModelSizeKey, next.Size(),
		log.DurationMsKey, time.Since(started).Milliseconds(),
	)
	return next, nil
}

func sizeOf(m *model.IncrementalModel) int {
	if m == nil {
		return 0
	}
	return m.Size()
}
