package recon

import "time"

// SourceFailure はステージ内で失敗したソース1件の監査記録。
// 失敗は例外として上へ投げず、ここに構造化して残す。
type SourceFailure struct {
	Source   string `json:"source"`
	Kind     string `json:"kind"` // fault.Kind の文字列表現
	Reason   string `json:"reason"`
	Attempts int    `json:"attempts"`
}

// StageStats は1ステージ分の統計。
type StageStats struct {
	Stage    string          `json:"stage"`
	Duration time.Duration   `json:"duration"`
	Units    int             `json:"units"`   // 実行した作業単位数
	OK       int             `json:"ok"`      // 成功した単位数
	Records  int             `json:"records"` // マージに投入した候補レコード数
	Merged   int             `json:"merged"`  // マージ後の総エンティティ数
	Dropped  int             `json:"dropped"` // 検証で棄却された候補数
	Partial  bool            `json:"partial"` // 一部ソース失敗（継続）
	Skipped  bool            `json:"skipped"` // 入力ゼロまたはツール未登録
	Failures []SourceFailure `json:"failures,omitempty"`
}
