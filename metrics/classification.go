// Package metrics は選択されたロジスティック回帰モデルの評価指標を提供する
package metrics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/stepwise/core/model"
	sfoerrors "github.com/YuminosukeSato/stepwise/pkg/errors"
)

// logLossEpsilon は log(0) を避けるためのクリッピング幅
const logLossEpsilon = 1e-15

// Scores は1つのモデルの評価結果
type Scores struct {
	LogLoss  float64 `json:"log_loss"`
	AUC      float64 `json:"auc"`
	Accuracy float64 `json:"accuracy"`
}

// Evaluate はモデルの予測確率から LogLoss・AUC・正解率をまとめて計算する
func Evaluate(m *model.IncrementalModel, X mat.Matrix, yTrue *mat.VecDense) (Scores, error) {
	if m == nil {
		return Scores{}, sfoerrors.WithStack(sfoerrors.ErrNilModel)
	}
	proba, err := m.PredictProba(X)
	if err != nil {
		return Scores{}, err
	}
	var s Scores
	if s.LogLoss, err = BinaryLogLoss(yTrue, proba); err != nil {
		return Scores{}, err
	}
	if s.AUC, err = AUC(yTrue, proba); err != nil {
		return Scores{}, err
	}
	if s.Accuracy, err = Accuracy(yTrue, proba); err != nil {
		return Scores{}, err
	}
	return s, nil
}

// BinaryLogLoss は二値分類の平均対数損失を計算する
func BinaryLogLoss(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkBinary("BinaryLogLoss", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	// LogLoss = -(1/n) * Σ[y*log(p) + (1-y)*log(1-p)]
	var sum float64
	for i := 0; i < n; i++ {
		p := math.Min(math.Max(yPred.AtVec(i), logLossEpsilon), 1-logLossEpsilon)
		if yTrue.AtVec(i) == 1 {
			sum += math.Log(p)
		} else {
			sum += math.Log(1 - p)
		}
	}
	return -sum / float64(n), nil
}

// AUC は ROC 曲線下面積を順位和（Mann-Whitney U）から計算する。
// 同点のスコアには平均順位を与える。片方のクラスしかない場合は 0.5 を返す
func AUC(yTrue, yScore *mat.VecDense) (float64, error) {
	n, err := checkBinary("AUC", yTrue, yScore)
	if err != nil {
		return 0, err
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return yScore.AtVec(idx[a]) < yScore.AtVec(idx[b])
	})

	var rankSumPos, nPos float64
	for i := 0; i < n; {
		j := i
		for j < n && yScore.AtVec(idx[j]) == yScore.AtVec(idx[i]) {
			j++
		}
		// 順位 i+1 .. j の平均
		avg := float64(i+1+j) / 2
		for k := i; k < j; k++ {
			if yTrue.AtVec(idx[k]) == 1 {
				rankSumPos += avg
				nPos++
			}
		}
		i = j
	}

	nNeg := float64(n) - nPos
	if nPos == 0 || nNeg == 0 {
		return 0.5, nil
	}
	return (rankSumPos - nPos*(nPos+1)/2) / (nPos * nNeg), nil
}

// Accuracy は確率 0.5 を閾値とした正解率を計算する
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkBinary("Accuracy", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	correct := 0
	for i := 0; i < n; i++ {
		label := 0.0
		if yPred.AtVec(i) >= 0.5 {
			label = 1
		}
		if label == yTrue.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// checkBinary は長さの一致とラベルが 0/1 であることを検証する
func checkBinary(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil || yTrue.Len() == 0 {
		return 0, sfoerrors.NewValidationError(op, "empty vector", 0)
	}
	n := yTrue.Len()
	if yPred.Len() != n {
		return 0, sfoerrors.NewValidationError(op, "prediction length differs from label length", yPred.Len())
	}
	for i := 0; i < n; i++ {
		if v := yTrue.AtVec(i); v != 0 && v != 1 {
			return 0, sfoerrors.NewValidationError(op, "labels must be 0 or 1", v)
		}
	}
	return n, nil
}
