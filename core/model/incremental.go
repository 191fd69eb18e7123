package model

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	sfoerrors "github.com/YuminosukeSato/stepwise/pkg/errors"
)

// IncrementalModel はラウンド間で受け渡される、単調に成長する疎な係数モデル
//
// 使用済み次元の集合と係数の写像は1つの map で保持するため、両者のキー集合は常に一致する。
// 一度追加した次元は削除も上書きもできない。切片はマージでは変更されない不透明な値として保持する。
//
// Publish された後は読み取り専用となり、次ラウンドの評価器が並行に参照できる。
// 変更はマージ処理が Clone した上で行う。
type IncrementalModel struct {
	coefficients map[int]float64
	intercept    float64
	published    bool
}

// NewIncrementalModel は空のベースモデルを作成する（選択処理の開始時）
func NewIncrementalModel() *IncrementalModel {
	return &IncrementalModel{coefficients: make(map[int]float64)}
}

// NewSeededModel は既存の係数と切片からベースモデルを作成する
func NewSeededModel(coefficients map[int]float64, intercept float64) (*IncrementalModel, error) {
	if err := sfoerrors.CheckFinite("intercept", intercept); err != nil {
		return nil, err
	}
	m := NewIncrementalModel()
	m.intercept = intercept
	for _, dim := range sortedKeys(coefficients) {
		if err := m.AddDimension(dim, coefficients[dim]); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// AddDimension は次元 dim を係数 coefficient でモデルに追加する
//
// 戻り値:
//   - DuplicateDimensionError: dim が既にモデルに含まれる場合
//   - MalformedRecordError: dim が負、または係数が NaN/Inf の場合
//   - ErrModelPublished: 公開済みのモデルに対して呼び出した場合
func (m *IncrementalModel) AddDimension(dim int, coefficient float64) error {
	if m.published {
		return sfoerrors.WithStack(sfoerrors.ErrModelPublished)
	}
	if err := sfoerrors.CheckDimension("dimension", dim); err != nil {
		return err
	}
	if err := sfoerrors.CheckFinite("coefficient", coefficient); err != nil {
		return err
	}
	if _, ok := m.coefficients[dim]; ok {
		return sfoerrors.NewDuplicateDimensionError(dim, len(m.coefficients))
	}
	m.coefficients[dim] = coefficient
	return nil
}

// Size は使用済み次元の数を返す
func (m *IncrementalModel) Size() int {
	return len(m.coefficients)
}

// Has は dim がモデルに含まれるかどうかを返す
func (m *IncrementalModel) Has(dim int) bool {
	_, ok := m.coefficients[dim]
	return ok
}

// Coefficient は dim の係数を返す
func (m *IncrementalModel) Coefficient(dim int) (float64, bool) {
	c, ok := m.coefficients[dim]
	return c, ok
}

// UsedDimensions は使用済み次元を昇順で返す
func (m *IncrementalModel) UsedDimensions() []int {
	return sortedKeys(m.coefficients)
}

// Intercept は切片を返す
func (m *IncrementalModel) Intercept() float64 {
	return m.intercept
}

// Publish はモデルを読み取り専用にする。以後の AddDimension は失敗する
func (m *IncrementalModel) Publish() *IncrementalModel {
	m.published = true
	return m
}

// IsPublished はモデルが公開済み（読み取り専用）かどうかを返す
func (m *IncrementalModel) IsPublished() bool {
	return m.published
}

// Clone は未公開状態のディープコピーを作成する
func (m *IncrementalModel) Clone() *IncrementalModel {
	clone := &IncrementalModel{
		coefficients: make(map[int]float64, len(m.coefficients)),
		intercept:    m.intercept,
	}
	for d, c := range m.coefficients {
		clone.coefficients[d] = c
	}
	return clone
}

// Equal は2つのモデルの次元・係数・切片がビット単位で一致するかどうかを返す
func (m *IncrementalModel) Equal(other *IncrementalModel) bool {
	if m == nil || other == nil {
		return m == other
	}
	if len(m.coefficients) != len(other.coefficients) ||
		math.Float64bits(m.intercept) != math.Float64bits(other.intercept) {
		return false
	}
	for d, c := range m.coefficients {
		oc, ok := other.coefficients[d]
		if !ok || math.Float64bits(c) != math.Float64bits(oc) {
			return false
		}
	}
	return true
}

// MaxDimension は最大の次元インデックスを返す。空のモデルでは -1
func (m *IncrementalModel) MaxDimension() int {
	maxDim := -1
	for d := range m.coefficients {
		if d > maxDim {
			maxDim = d
		}
	}
	return maxDim
}

// Dense は長さ nFeatures の密な係数ベクトルを返す。未使用の次元は 0
func (m *IncrementalModel) Dense(nFeatures int) (*mat.VecDense, error) {
	if nFeatures <= m.MaxDimension() {
		return nil, sfoerrors.NewValidationError("n_features",
			"must exceed the largest used dimension", nFeatures)
	}
	if nFeatures == 0 {
		return &mat.VecDense{}, nil
	}
	v := mat.NewVecDense(nFeatures, nil)
	for d, c := range m.coefficients {
		v.SetVec(d, c)
	}
	return v, nil
}

// DecisionFunction は1サンプル x に対する線形予測子 w·x + b を返す
func (m *IncrementalModel) DecisionFunction(x mat.Vector) (float64, error) {
	if x.Len() <= m.MaxDimension() {
		return 0, sfoerrors.NewValidationError("x",
			"sample is shorter than the largest used dimension", x.Len())
	}
	z := m.intercept
	for d, c := range m.coefficients {
		z += c * x.AtVec(d)
	}
	return z, nil
}

// PredictProba は各行について陽性クラスの確率 σ(w·x + b) を返す
func (m *IncrementalModel) PredictProba(X mat.Matrix) (*mat.VecDense, error) {
	rows, cols := X.Dims()
	if cols <= m.MaxDimension() {
		return nil, sfoerrors.NewValidationError("X",
			"matrix has fewer columns than the largest used dimension", cols)
	}
	if rows == 0 {
		return &mat.VecDense{}, nil
	}
	probs := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		z := m.intercept
		for d, c := range m.coefficients {
			z += c * X.At(i, d)
		}
		probs.SetVec(i, sigmoid(z))
	}
	return probs, nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	ez := math.Exp(z)
	return ez / (1 + ez)
}

func sortedKeys(m map[int]float64) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
