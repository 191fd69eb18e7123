package model

import (
	"encoding/gob"
	"encoding/json"
	"io"
	"os"

	sfoerrors "github.com/YuminosukeSato/stepwise/pkg/errors"
)

// SaveModel はモデルを gob 形式でファイルに保存する
//
// 使用例:
//
//	err := model.SaveModel(next, "round-003.gob")
func SaveModel(m *IncrementalModel, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return sfoerrors.Wrap(err, "failed to create file")
	}
	defer file.Close()
	return SaveModelToWriter(m, file)
}

// LoadModel はファイルから gob 形式のモデルを読み込む
func LoadModel(filename string) (*IncrementalModel, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, sfoerrors.Wrap(err, "failed to open file")
	}
	defer file.Close()
	return LoadModelFromReader(file)
}

// SaveModelToWriter はモデルを gob 形式で io.Writer に保存する
func SaveModelToWriter(m *IncrementalModel, w io.Writer) error {
	if m == nil {
		return sfoerrors.WithStack(sfoerrors.ErrNilModel)
	}
	if err := gob.NewEncoder(w).Encode(m.Weights()); err != nil {
		return sfoerrors.Wrap(err, "failed to encode model")
	}
	return nil
}

// LoadModelFromReader は io.Reader から gob 形式のモデルを読み込む
func LoadModelFromReader(r io.Reader) (*IncrementalModel, error) {
	var mw ModelWeights
	if err := gob.NewDecoder(r).Decode(&mw); err != nil {
		return nil, sfoerrors.NewMalformedRecordError("model", "failed to decode model: "+err.Error(), nil)
	}
	return mw.Model()
}

// WriteJSON はモデルを JSON 形式で書き出す。metadata は任意
func WriteJSON(m *IncrementalModel, metadata map[string]string, w io.Writer) error {
	if m == nil {
		return sfoerrors.WithStack(sfoerrors.ErrNilModel)
	}
	mw := m.Weights()
	mw.Metadata = metadata
	data, err := mw.ToJSON()
	if err != nil {
		return sfoerrors.Wrap(err, "failed to marshal model")
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return sfoerrors.Wrap(err, "failed to write model")
	}
	return nil
}

// ReadJSON は JSON 形式のモデルを読み込む
func ReadJSON(r io.Reader) (*IncrementalModel, map[string]string, error) {
	var mw ModelWeights
	if err := json.NewDecoder(r).Decode(&mw); err != nil {
		return nil, nil, sfoerrors.NewMalformedRecordError("model", "failed to decode model: "+err.Error(), nil)
	}
	m, err := mw.Model()
	if err != nil {
		return nil, nil, err
	}
	return m, mw.Metadata, nil
}
