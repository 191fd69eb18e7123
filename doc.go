// Package stepwise implements the merge-and-select core of stepwise forward
// selection (SFO) for logistic regression over partitioned data.
//
// A selection run proceeds in rounds. In each round a set of evaluators scores
// every unused feature against the current base model, the candidates from all
// partitions are ranked by log-likelihood gain, and the best add_per_iteration
// of them are merged into a single new base model that the next round builds on.
// Fitting the regression and computing gains are left to the evaluators; this
// module only ranks, merges and coordinates.
//
// # Quick Start
//
//	cfg, _ := sfo.NewConfig(sfo.WithAddPerIteration(1))
//	merger, _ := sfo.NewMerger(cfg)
//
//	next, err := merger.Merge(model.NewIncrementalModel(), []model.FeatureGain{
//	    {Dimension: 3, Gain: 0.5, Coefficient: 0.1},
//	    {Dimension: 7, Gain: 0.9, Coefficient: -0.2},
//	    {Dimension: 2, Gain: 0.9, Coefficient: 0.05},
//	})
//	// next.UsedDimensions() == [2]
//
// For a full run, wrap the evaluators in an sfo.Coordinator:
//
//	coord, _ := sfo.NewCoordinator(merger, evaluators, sfo.WithCheckpointer(checkpoints))
//	final, err := coord.Run(ctx, model.NewIncrementalModel(), 10)
//
// # Packages
//
//   - core/model: FeatureGain, ranking and the IncrementalModel with its serialized forms
//   - core/parallel: partitioned fan-out with a single barrier
//   - sfo: configuration, the merge step, round co-grouping and the coordinator
//   - store: BadgerDB-backed per-round checkpoints
//   - report: gain plots
//   - pkg/errors: structured errors with stack traces
//   - pkg/log: zerolog-backed structured logging
//
// The sfo command (cmd/sfo) exposes merge, rank, inspect and plot on the
// command line.
package stepwise
