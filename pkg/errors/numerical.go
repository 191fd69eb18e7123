package errors

import (
	"math"
)

// CheckFinite returns a MalformedRecordError when value is NaN or ±Inf.
// Gains and coefficients arrive from remote evaluators; a non-finite value
// would poison the ranking, so it is rejected rather than defaulted.
func CheckFinite(field string, value float64) error {
	if math.IsNaN(value) {
		return NewMalformedRecordError(field, "value is NaN", value)
	}
	if math.IsInf(value, 0) {
		return NewMalformedRecordError(field, "value is infinite", value)
	}
	return nil
}

// CheckDimension returns a MalformedRecordError for a negative feature index.
func CheckDimension(field string, dimension int) error {
	if dimension < 0 {
		return NewMalformedRecordError(field, "feature index must be non-negative", dimension)
	}
	return nil
}
