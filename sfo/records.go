package sfo

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/YuminosukeSato/stepwise/core/model"
	sfoerrors "github.com/YuminosukeSato/stepwise/pkg/errors"
)

// gainRecord mirrors model.FeatureGain with pointers so missing fields can be
// told apart from zero values.
type gainRecord struct {
	Dimension   *int     `json:"dimension"`
	Gain        *float64 `json:"gain"`
	Coefficient *float64 `json:"coefficient"`
}

// ReadGains decodes newline-delimited JSON candidate records. Blank lines are
// skipped. A missing or invalid field fails with a MalformedRecordError naming
// the line.
func ReadGains(r io.Reader) ([]model.FeatureGain, error) {
	var gains []model.FeatureGain
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var rec gainRecord
		dec := json.NewDecoder(strings.NewReader(text))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&rec); err != nil {
			return nil, sfoerrors.NewMalformedRecordError(fmt.Sprintf("line %d", line), err.Error(), text)
		}
		switch {
		case rec.Dimension == nil:
			return nil, sfoerrors.NewMalformedRecordError(fmt.Sprintf("line %d: dimension", line), "missing", nil)
		case rec.Gain == nil:
			return nil, sfoerrors.NewMalformedRecordError(fmt.Sprintf("line %d: gain", line), "missing", nil)
		case rec.Coefficient == nil:
			return nil, sfoerrors.NewMalformedRecordError(fmt.Sprintf("line %d: coefficient", line), "missing", nil)
		}
		g := model.FeatureGain{Dimension: *rec.Dimension, Gain: *rec.Gain, Coefficient: *rec.Coefficient}
		if err := g.Validate(); err != nil {
			return nil, sfoerrors.Wrapf(err, "line %d", line)
		}
		gains = append(gains, g)
	}
	if err := sc.Err(); err != nil {
		return nil, sfoerrors.Wrap(err, "read gains")
	}
	return gains, nil
}

// WriteGains encodes gains as newline-delimited JSON.
func WriteGains(w io.Writer, gains []model.FeatureGain) error {
	enc := json.NewEncoder(w)
	for _, g := range gains {
		if err := enc.Encode(g); err != nil {
			return sfoerrors.Wrap(err, "write gains")
		}
	}
	return nil
}
