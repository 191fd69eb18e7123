package model

import "sort"

// Rank は候補をゲインの降順に並べた新しいスライスを返す。入力は変更しない。
//
// 同点のゲインは次元の小さい方を優先する。分散評価器からの到着順に依存せず、
// 同じ候補の多重集合であればどの順序で渡されても同じ結果になる。
// 同じ次元の重複は除去しない（呼び出し側の責務）。
// NaN のゲインは検証されず、末尾に並べられる。選択に使う前に FeatureGain.Validate で除外すること。
func Rank(gains []FeatureGain) []FeatureGain {
	ranked := make([]FeatureGain, len(gains))
	copy(ranked, gains)
	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].RanksBefore(ranked[j])
	})
	return ranked
}

// TopN はランキング上位 n 件を返す。n が候補数を超える場合は全件を返す。
func TopN(gains []FeatureGain, n int) []FeatureGain {
	ranked := Rank(gains)
	if n < 0 {
		n = 0
	}
	if n < len(ranked) {
		ranked = ranked[:n]
	}
	return ranked
}
