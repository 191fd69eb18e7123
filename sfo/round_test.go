package sfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/stepwise/core/model"
	sfoerrors "github.com/YuminosukeSato/stepwise/pkg/errors"
)

func TestCoGroup_SingleRound(t *testing.T) {
	base := model.NewIncrementalModel()
	records := []Record{GainRecord(RoundKey, scenarioCandidates()[0])}
	records = append(records, ModelRecord(RoundKey, base))
	for _, g := range scenarioCandidates()[1:] {
		records = append(records, GainRecord(RoundKey, g))
	}

	rounds, err := CoGroup(records)
	require.NoError(t, err)
	require.Len(t, rounds, 1)
	assert.Equal(t, RoundKey, rounds[0].Key)
	assert.Same(t, base, rounds[0].Model)
	assert.ElementsMatch(t, scenarioCandidates(), rounds[0].Candidates)
}

func TestCoGroup_MultipleKeys(t *testing.T) {
	records := []Record{
		ModelRecord(2, model.NewIncrementalModel()),
		GainRecord(2, model.FeatureGain{Dimension: 1, Gain: 1}),
		ModelRecord(1, model.NewIncrementalModel()),
	}

	rounds, err := CoGroup(records)
	require.NoError(t, err)
	require.Len(t, rounds, 2)
	assert.Equal(t, 1, rounds[0].Key)
	assert.Empty(t, rounds[0].Candidates)
	assert.Equal(t, 2, rounds[1].Key)
	assert.Len(t, rounds[1].Candidates, 1)
}

func TestCoGroup_Errors(t *testing.T) {
	g := model.FeatureGain{Dimension: 1, Gain: 1}
	tests := []struct {
		name    string
		records []Record
		check   func(t *testing.T, err error)
	}{
		{
			name:    "missing model",
			records: []Record{GainRecord(RoundKey, g)},
			check: func(t *testing.T, err error) {
				var missing *sfoerrors.MissingBaseModelError
				require.True(t, sfoerrors.As(err, &missing))
				assert.Equal(t, RoundKey, missing.Key)
			},
		},
		{
			name: "two models",
			records: []Record{
				ModelRecord(RoundKey, model.NewIncrementalModel()),
				ModelRecord(RoundKey, model.NewIncrementalModel()),
			},
			check: func(t *testing.T, err error) {
				var malformed *sfoerrors.MalformedRecordError
				assert.True(t, sfoerrors.As(err, &malformed))
			},
		},
		{
			name:    "empty record",
			records: []Record{{Key: RoundKey}},
			check: func(t *testing.T, err error) {
				var malformed *sfoerrors.MalformedRecordError
				assert.True(t, sfoerrors.As(err, &malformed))
			},
		},
		{
			name:    "both payloads",
			records: []Record{{Key: RoundKey, Model: model.NewIncrementalModel(), Gain: &g}},
			check: func(t *testing.T, err error) {
				var malformed *sfoerrors.MalformedRecordError
				assert.True(t, sfoerrors.As(err, &malformed))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CoGroup(tt.records)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestMergeRound(t *testing.T) {
	m, _ := newTestMerger(t, 1)

	out, err := m.MergeRound(Round{Key: 5, Model: model.NewIncrementalModel(), Candidates: scenarioCandidates()})
	require.NoError(t, err)
	assert.Equal(t, RoundKey, out.Key, "output is routed on the constant key")
	assert.Equal(t, []int{2}, out.Model.UsedDimensions())
	require.Len(t, out.Selected, 1)
	assert.Equal(t, 0.9, out.Selected[0].Gain)

	_, err = m.MergeRound(Round{Key: 5, Candidates: scenarioCandidates()})
	var missing *sfoerrors.MissingBaseModelError
	require.True(t, sfoerrors.As(err, &missing))
	assert.Equal(t, 5, missing.Key)

	_, err = m.MergeRound(Round{Key: 5, Model: model.NewIncrementalModel()})
	var short *sfoerrors.InsufficientCandidatesError
	assert.True(t, sfoerrors.As(err, &short))
}
