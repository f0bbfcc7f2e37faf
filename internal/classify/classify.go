// Package classify はルールテーブル駆動の決定的タグ付けエンジン。
// テーブルはデータであり、エンジン本体に分岐ロジックを持たない。
// 分類結果は (入力, テーブル) の純関数なのでテストで完全に再現できる。
package classify

import (
	"net/url"
	"regexp"
)

// Unknown はどのルールにも一致しなかったときの明示的なフォールバック。
// 一致なしはクラッシュではなく必ずこのカテゴリになる。
const Unknown = "unknown"

// Rule はパターン→カテゴリの1行。
type Rule struct {
	Category string
	Pattern  *regexp.Regexp
}

// Table は上から順に評価されるルール列。最初に一致した行が勝つ。
type Table []Rule

// Classify は input を分類する。一致がなければ Unknown を返す。
func (t Table) Classify(input string) string {
	for _, r := range t {
		if r.Pattern.MatchString(input) {
			return r.Category
		}
	}
	return Unknown
}

// Endpoint は URL をエンドポイントカテゴリに分類する。
// テーブルはパス（+クエリ有無マーカー）に対して評価される。
func Endpoint(rawURL string) string {
	return DefaultEndpointTable.Classify(endpointInput(rawURL))
}

// Parameter はパラメーター名をタイプに分類する。
func Parameter(name string) string {
	return DefaultParameterTable.Classify(name)
}

// Severity はツール固有の深刻度表記を正規化する。
func Severity(raw string) string {
	return DefaultSeverityTable.Classify(raw)
}

// endpointInput は URL からルール評価用の入力（パス + クエリ有無）を作る。
func endpointInput(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	in := u.Path
	if u.RawQuery != "" {
		in += "?"
	}
	return in
}
