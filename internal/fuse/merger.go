package fuse

import (
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/weppos/publicsuffix-go/publicsuffix"
)

// Config は Merger の動作設定。
type Config struct {
	// Target は対象ドメイン。非空なら domain レコードは Target 配下のみ受理。
	Target string
	// SourcePriority は属性衝突の解決順位（先頭が最優先）。
	// 能動的に検証されたデータが受動収集の履歴データより上位に来る想定。
	SourcePriority []string
	// SortKey は出力順序キー。"depth"（深さ→辞書順、デフォルト）または "lex"。
	SortKey string
	// IncludeWildcards はワイルドカードエントリの受理を許可する。
	IncludeWildcards bool
}

// Stats はマージパスの統計。検証で落ちたレコードは黙って吸収せずここで数える。
// Merged は重複排除後のエンティティ数であり、受理したレコード数ではない。
type Stats struct {
	Input   int
	Merged  int
	Dropped int
	// DropReasons は棄却理由ごとの件数。
	DropReasons map[string]int
}

// Merger は1セッション分のエンティティ集合を保持する融合エンジン。
// スレッドセーフではない。ステージの fan-out 完了後に単一スレッドで
// マージパスを回す設計（並行書き込みロックを不要にするため）。
type Merger struct {
	cfg      Config
	entities map[string]*Entity // key: string(kind) + "\x00" + mergeKey
	stats    Stats
	log      *logrus.Entry
}

// New は空の Merger を返す。
func New(cfg Config, log *logrus.Entry) *Merger {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.SortKey == "" {
		cfg.SortKey = "depth"
	}
	return &Merger{
		cfg:      cfg,
		entities: make(map[string]*Entity),
		stats:    Stats{DropReasons: make(map[string]int)},
		log:      log,
	}
}

// Merge は1ステージ分の生レコード群を正規化・選別して取り込む。
// 検証に失敗したレコードは統計に数えて棄却する。
func (m *Merger) Merge(records []Record) {
	for i := range records {
		m.stats.Input++
		rec := records[i]

		key, err := m.canonicalKey(rec)
		if err != nil {
			m.stats.Dropped++
			m.stats.DropReasons[err.Error()]++
			m.log.WithFields(logrus.Fields{"source": rec.Source, "value": rec.Value}).Debug("record dropped: ", err)
			continue
		}
		m.coalesce(rec, key)
	}
}

// canonicalKey はレコード種別に応じた MergeKey を計算する。
func (m *Merger) canonicalKey(rec Record) (string, error) {
	switch rec.Kind {
	case KindDomain:
		return CanonicalDomain(rec.Value, m.cfg.Target, m.cfg.IncludeWildcards)
	case KindEndpoint:
		return CanonicalEndpoint(rec.Value)
	default:
		// parameter / finding は「所属エンドポイント + 名前」等の合成キーを
		// ソース側が Value に組み立てる。空のみ拒否。
		v := rec.Value
		if v == "" {
			return "", errBlankKey
		}
		return v, nil
	}
}

// coalesce は同一キーのレコードを1つの Entity に併合する。
// 属性の衝突はソース優先順位で解決するが、寄与した生値は必ず provenance に残る。
func (m *Merger) coalesce(rec Record, key string) {
	mapKey := string(rec.Kind) + "\x00" + key
	e, ok := m.entities[mapKey]
	if !ok {
		e = &Entity{
			Kind:       rec.Kind,
			Key:        key,
			Attrs:      make(map[string]string),
			attrSource: make(map[string]string),
		}
		m.entities[mapKey] = e
	}

	e.Provenance = append(e.Provenance, Observation{
		Source:     rec.Source,
		ObservedAt: rec.ObservedAt,
		RawValue:   rec.Value,
	})

	for name, val := range rec.Attrs {
		winner, exists := e.attrSource[name]
		if !exists || m.rank(rec.Source) <= m.rank(winner) {
			e.Attrs[name] = val
			e.attrSource[name] = rec.Source
		}
	}
}

// rank はソースの優先順位（小さいほど上位）。未知のソースは最下位。
func (m *Merger) rank(source string) int {
	for i, s := range m.cfg.SourcePriority {
		if s == source {
			return i
		}
	}
	return len(m.cfg.SourcePriority)
}

// Entities は現在のエンティティ集合を決定的な順序で返す。
// 順序はソースの完了順に依存しない: 深さ昇順 → 辞書順（SortKey=lex なら辞書順のみ）。
// 各エンティティには confidence 属性を付与して返す。
func (m *Merger) Entities() []Entity {
	result := make([]Entity, 0, len(m.entities))
	for _, e := range m.entities {
		c := e.Clone()
		c.Attrs["confidence"] = confidence(e)
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := &result[i], &result[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if m.cfg.SortKey == "depth" {
			da, db := depth(a.Kind, a.Key), depth(b.Kind, b.Key)
			if da != db {
				return da < db
			}
		}
		return a.Key < b.Key
	})
	return result
}

// confidence はエンティティの確度 0.0〜1.0 を算出する。
// 寄与した相異ソース数: 1 → 0.2, 2 → 0.3, 3以上 → 0.4。
// 解決済み（ip 属性あり）+0.4。クエリパラメーター付きエンドポイント +0.1。
func confidence(e *Entity) string {
	seen := make(map[string]bool, len(e.Provenance))
	for _, ob := range e.Provenance {
		seen[ob.Source] = true
	}
	score := 0.2
	switch {
	case len(seen) >= 3:
		score = 0.4
	case len(seen) == 2:
		score = 0.3
	}
	if e.Attrs["ip"] != "" {
		score += 0.4
	}
	if e.Kind == KindEndpoint && strings.Contains(e.Key, "?") {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return strconv.FormatFloat(score, 'f', 2, 64)
}

// Stats は現在の統計のコピーを返す。
func (m *Merger) Stats() Stats {
	s := m.stats
	s.Merged = len(m.entities)
	s.DropReasons = make(map[string]int, len(m.stats.DropReasons))
	for k, v := range m.stats.DropReasons {
		s.DropReasons[k] = v
	}
	return s
}

// RootDomains は domain エンティティから登録可能ドメイン（eTLD+1）を抽出する。
func (m *Merger) RootDomains() []string {
	seen := make(map[string]bool)
	var roots []string
	for _, e := range m.entities {
		if e.Kind != KindDomain {
			continue
		}
		root, err := publicsuffix.Domain(e.Key)
		if err != nil || root == "" {
			continue
		}
		if !seen[root] {
			seen[root] = true
			roots = append(roots, root)
		}
	}
	sort.Strings(roots)
	return roots
}

// errBlankKey は空キーの共通棄却理由。
var errBlankKey = blankKeyError{}

type blankKeyError struct{}

func (blankKeyError) Error() string { return "blank merge key" }
