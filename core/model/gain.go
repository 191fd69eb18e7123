package model

import (
	"fmt"
	"math"

	sfoerrors "github.com/YuminosukeSato/stepwise/pkg/errors"
)

// FeatureGain は1ラウンドにおける候補特徴量の評価結果です。
// 上流の評価器がラウンドごとに生成し、マージ後に破棄される不変の値です。
type FeatureGain struct {
	// Dimension は特徴量のインデックス（0 以上）。1ラウンドの候補集合内で一意
	Dimension int `json:"dimension" yaml:"dimension"`

	// Gain はこの特徴量を追加した場合の対数尤度の改善量（負もあり得る）
	Gain float64 `json:"gain" yaml:"gain"`

	// Coefficient はこの特徴量を単独で追加した場合に学習された係数
	Coefficient float64 `json:"coefficient" yaml:"coefficient"`
}

// Validate は欠落・不正なフィールドを MalformedRecordError として返す
func (g FeatureGain) Validate() error {
	if err := sfoerrors.CheckDimension("dimension", g.Dimension); err != nil {
		return err
	}
	if err := sfoerrors.CheckFinite("gain", g.Gain); err != nil {
		return err
	}
	return sfoerrors.CheckFinite("coefficient", g.Coefficient)
}

// RanksBefore は g がランキングで other より前に並ぶかどうかを返す。
// ゲインの降順、同点の場合は次元の昇順、さらに係数のビット列の昇順で比較するため、
// 同一でないレコード同士は必ず順序が決まる。NaN のゲインは常に最後に並ぶ。
func (g FeatureGain) RanksBefore(other FeatureGain) bool {
	gNaN, otherNaN := math.IsNaN(g.Gain), math.IsNaN(other.Gain)
	if gNaN != otherNaN {
		return otherNaN
	}
	if !gNaN && g.Gain != other.Gain {
		return g.Gain > other.Gain
	}
	if g.Dimension != other.Dimension {
		return g.Dimension < other.Dimension
	}
	return math.Float64bits(g.Coefficient) < math.Float64bits(other.Coefficient)
}

func (g FeatureGain) String() string {
	return fmt.Sprintf("d %d gain: %g coefficient: %g", g.Dimension, g.Gain, g.Coefficient)
}
