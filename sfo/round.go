package sfo

import (
	"sort"

	"github.com/YuminosukeSato/stepwise/core/model"
	sfoerrors "github.com/YuminosukeSato/stepwise/pkg/errors"
)

// RoundKey is the constant grouping key that routes every model record and
// every candidate of a round to the one merge step.
const RoundKey = 1

// Record is one input record of the merge step: either the round's base model
// or a single candidate, tagged with its grouping key.
type Record struct {
	Key   int
	Model *model.IncrementalModel
	Gain  *model.FeatureGain
}

// ModelRecord wraps the base model for key.
func ModelRecord(key int, m *model.IncrementalModel) Record {
	return Record{Key: key, Model: m}
}

// GainRecord wraps one candidate for key.
func GainRecord(key int, g model.FeatureGain) Record {
	return Record{Key: key, Gain: &g}
}

// Round is the co-grouped input of one merge: exactly one base model and the
// complete candidate set sharing a key.
type Round struct {
	Key        int
	Model      *model.IncrementalModel
	Candidates []model.FeatureGain
}

// Output is the merge step's single output record. Selected lists the
// candidates that were added, in rank order, for reporting.
type Output struct {
	Key      int
	Model    *model.IncrementalModel
	Selected []model.FeatureGain
}

// CoGroup groups records by key, returning one Round per key in ascending key order.
//
// Every key must carry exactly one model record; a key with candidates but no
// model fails with MissingBaseModelError. A record holding both or neither
// payload, or a second model for a key, fails with MalformedRecordError.
func CoGroup(records []Record) ([]Round, error) {
	groups := make(map[int]*Round)
	group := func(key int) *Round {
		r, ok := groups[key]
		if !ok {
			r = &Round{Key: key}
			groups[key] = r
		}
		return r
	}

	for _, rec := range records {
		switch {
		case rec.Model != nil && rec.Gain != nil:
			return nil, sfoerrors.NewMalformedRecordError("record", "holds both a model and a gain", rec.Key)
		case rec.Model != nil:
			r := group(rec.Key)
			if r.Model != nil {
				return nil, sfoerrors.NewMalformedRecordError("model", "more than one base model for key", rec.Key)
			}
			r.Model = rec.Model
		case rec.Gain != nil:
			r := group(rec.Key)
			r.Candidates = append(r.Candidates, *rec.Gain)
		default:
			return nil, sfoerrors.NewMalformedRecordError("record", "holds neither a model nor a gain", rec.Key)
		}
	}

	keys := make([]int, 0, len(groups))
	for k, r := range groups {
		if r.Model == nil {
			return nil, sfoerrors.NewMissingBaseModelError(k)
		}
		keys = append(keys, k)
	}
	sort.Ints(keys)

	rounds := make([]Round, len(keys))
	for i, k := range keys {
		rounds[i] = *groups[k]
	}
	return rounds, nil
}

// MergeRound merges one co-grouped round and tags the result with RoundKey
// for the next round's grouping.
func (m *Merger) MergeRound(r Round) (Output, error) {
	if r.Model == nil {
		return Output{}, sfoerrors.NewMissingBaseModelError(r.Key)
	}
	next, selected, err := m.MergeSelected(r.Model, r.Candidates)
	if err != nil {
		return Output{}, err
	}
	return Output{Key: RoundKey, Model: next, Selected: selected}, nil
}
