// Package log defines standard attribute keys for stepwise selection runs.
//
// Keys follow the same hierarchical convention throughout ("sfo.round",
// "candidate.gain") so log pipelines can filter a whole run, a single round
// or a single candidate.

package log

// Run and Operation Context
const (
	// RunIDKey identifies one selection run. Generated by the coordinator.
	RunIDKey = "sfo.run_id"

	// RoundKey is the zero-based round index within a run.
	RoundKey = "sfo.round"

	// GroupKeyKey is the co-group key the round's records were grouped on.
	GroupKeyKey = "sfo.group_key"

	// OperationKey specifies the operation being performed.
	// Standard values: "rank", "merge", "evaluate", "checkpoint"
	OperationKey = "sfo.operation"

	// ComponentKey identifies which component is logging.
	// Examples: "sfo.merge", "sfo.coordinator", "store"
	ComponentKey = "sfo.component"

	// PartitionKey identifies the evaluator partition a record came from.
	PartitionKey = "sfo.partition"
)

// Model state
const (
	// ModelSizeKey is the number of used dimensions in the base model.
	ModelSizeKey = "model.size"

	// AddPerIterationKey is the configured number of dimensions added per round.
	AddPerIterationKey = "model.add_per_iteration"

	// InterceptKey is the model's intercept term.
	InterceptKey = "model.intercept"
)

// Candidate attributes
const (
	// DimensionKey is a feature index.
	DimensionKey = "candidate.dimension"

	// GainKey is a candidate's log-likelihood gain.
	GainKey = "candidate.gain"

	// CoefficientKey is a candidate's fitted coefficient.
	CoefficientKey = "candidate.coefficient"

	// RankKey is a candidate's zero-based position in the ranking.
	RankKey = "candidate.rank"

	// CandidatesKey is the number of candidates delivered for a round.
	CandidatesKey = "candidate.count"
)

// Performance
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"
)

// Error context
const (
	// ErrorKindKey categorizes the error, see errors.Kind.
	ErrorKindKey = "error.kind"

	// StacktraceKey contains stack trace information for debugging.
	StacktraceKey = "error.stacktrace"
)

// Standard attribute value constants.
const (
	OperationRank       = "rank"
	OperationMerge      = "merge"
	OperationEvaluate   = "evaluate"
	OperationCheckpoint = "checkpoint"
)
