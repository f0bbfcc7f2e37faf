// Package fuse は複数ソースの生レコードを正規化・重複排除して
// provenance 付きの正準エンティティに融合するエンジン。
package fuse

import "time"

// Kind は正準エンティティの種別。
type Kind string

const (
	KindDomain    Kind = "domain"
	KindEndpoint  Kind = "endpoint"
	KindParameter Kind = "parameter"
	KindFinding   Kind = "finding"
)

// Observation はエンティティに寄与した1回の観測。
// どの属性値が「勝った」かに関わらず、寄与は必ずここに残る。
type Observation struct {
	Source     string    `json:"source"`
	ObservedAt time.Time `json:"observed_at"`
	RawValue   string    `json:"raw_value"`
}

// Record はソース固有形状から取り出した融合前の候補レコード。
type Record struct {
	Kind       Kind
	Value      string // ソースが報告した生の識別子（正規化前）
	Source     string
	ObservedAt time.Time
	Attrs      map[string]string // ソースが付けた属性（ip, status, severity 等）
}

// Entity はマージパスのみが生成・更新する正準レコード。
// Key は正規化済み識別子（MergeKey）。同一 Key の Entity は常に1つ。
type Entity struct {
	Kind       Kind              `json:"kind"`
	Key        string            `json:"key"`
	Attrs      map[string]string `json:"attrs"`
	Provenance []Observation     `json:"provenance"`

	// attrSource は属性ごとの現在の勝者ソース（優先度比較用、非公開）。
	attrSource map[string]string
}

// Clone は外部へ渡す安全なコピーを返す。
func (e *Entity) Clone() Entity {
	c := Entity{Kind: e.Kind, Key: e.Key}
	c.Attrs = make(map[string]string, len(e.Attrs))
	for k, v := range e.Attrs {
		c.Attrs[k] = v
	}
	c.Provenance = append([]Observation(nil), e.Provenance...)
	return c
}
