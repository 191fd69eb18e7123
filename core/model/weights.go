package model

import (
	"encoding/json"

	sfoerrors "github.com/YuminosukeSato/stepwise/pkg/errors"
)

const (
	// WeightsModelType は ModelWeights.ModelType に記録されるモデル種別
	WeightsModelType = "IncrementalLogisticModel"

	// WeightsVersion はシリアライズ形式のバージョン（互換性チェック用）
	WeightsVersion = "1"
)

// ModelWeights は IncrementalModel のシリアライズ用の表現
// Dimensions と Coefficients は同じ長さで、Dimensions は昇順に並ぶ
type ModelWeights struct {
	// ModelType はモデルの種類
	ModelType string `json:"model_type"`

	// Version はシリアライズ形式のバージョン
	Version string `json:"version"`

	// Dimensions は使用済みの次元（昇順）
	Dimensions []int `json:"dimensions"`

	// Coefficients は Dimensions と同じ順序の係数
	Coefficients []float64 `json:"coefficients"`

	// Intercept は切片
	Intercept float64 `json:"intercept"`

	// Metadata は追加のメタデータ（ラウンド番号、ランID 等）
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Weights はモデルのシリアライズ用の表現を返す
func (m *IncrementalModel) Weights() *ModelWeights {
	dims := m.UsedDimensions()
	coefs := make([]float64, len(dims))
	for i, d := range dims {
		coefs[i] = m.coefficients[d]
	}
	return &ModelWeights{
		ModelType:    WeightsModelType,
		Version:      WeightsVersion,
		Dimensions:   dims,
		Coefficients: coefs,
		Intercept:    m.intercept,
	}
}

// ToJSON はModelWeightsをJSON形式にシリアライズ
func (mw *ModelWeights) ToJSON() ([]byte, error) {
	return json.MarshalIndent(mw, "", "  ")
}

// FromJSON はJSON形式からModelWeightsをデシリアライズ
func (mw *ModelWeights) FromJSON(data []byte) error {
	if err := json.Unmarshal(data, mw); err != nil {
		return sfoerrors.NewMalformedRecordError("model", err.Error(), len(data))
	}
	return nil
}

// Validate はModelWeightsの妥当性を検証
func (mw *ModelWeights) Validate() error {
	if mw.ModelType != WeightsModelType {
		return sfoerrors.NewMalformedRecordError("model_type", "unexpected model type", mw.ModelType)
	}
	if mw.Version != WeightsVersion {
		return sfoerrors.NewMalformedRecordError("version", "unsupported version", mw.Version)
	}
	if len(mw.Dimensions) != len(mw.Coefficients) {
		return sfoerrors.NewMalformedRecordError("coefficients",
			"length differs from dimensions", len(mw.Coefficients))
	}
	for i, d := range mw.Dimensions {
		if i > 0 && d <= mw.Dimensions[i-1] {
			return sfoerrors.NewMalformedRecordError("dimensions",
				"must be strictly ascending and unique", d)
		}
	}
	return nil
}

// Model は ModelWeights から IncrementalModel を復元する
func (mw *ModelWeights) Model() (*IncrementalModel, error) {
	if err := mw.Validate(); err != nil {
		return nil, err
	}
	coefs := make(map[int]float64, len(mw.Dimensions))
	for i, d := range mw.Dimensions {
		coefs[d] = mw.Coefficients[i]
	}
	return NewSeededModel(coefs, mw.Intercept)
}

// Clone はModelWeightsのディープコピーを作成
func (mw *ModelWeights) Clone() *ModelWeights {
	clone := &ModelWeights{
		ModelType:    mw.ModelType,
		Version:      mw.Version,
		Intercept:    mw.Intercept,
		Dimensions:   make([]int, len(mw.Dimensions)),
		Coefficients: make([]float64, len(mw.Coefficients)),
	}
	copy(clone.Dimensions, mw.Dimensions)
	copy(clone.Coefficients, mw.Coefficients)
	if mw.Metadata != nil {
		clone.Metadata = make(map[string]string, len(mw.Metadata))
		for k, v := range mw.Metadata {
			clone.Metadata[k] = v
		}
	}
	return clone
}
