package recon

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/0x6d61/reconcore/internal/classify"
	"github.com/0x6d61/reconcore/internal/fuse"
	"github.com/0x6d61/reconcore/internal/gateway"
)

// capability タグ。Descriptor の tags とステージを結びつける。
const (
	TagDomainIntel   = "domain-intel"
	TagSubdomainEnum = "subdomain-enum"
	TagDNSResolve    = "dns-resolve"
	TagEndpointDisc  = "endpoint-discovery"
	TagVulnScan      = "vuln-scan"
)

// unit はステージ fan-out の作業単位1つ。粗粒度ステージでは
// ツール1つにつき1単位、resolve のような細粒度ステージでは
// (ツール, 入力) の組ごとに1単位になる。
type unit struct {
	source string // 進捗集約キー（ツール名）
	tool   string
	args   map[string]any
}

// stageSpec はパイプラインの1ステージの定義。
// expand は直前ステージまでのマージ済み状態から作業単位を生成する。
// lineKind は構造化ペイロードを返さないツール（subprocess 等）の
// 生出力1行をどの種別のレコードとして読むか。空なら生出力は捨てる。
type stageSpec struct {
	name     string
	tag      string
	required bool // 全ソース喪失で FatalError
	lineKind fuse.Kind
	expand   func(s *Session, tools []string) []unit
}

// pipeline は依存順に並んだ既定のステージグラフ。
//
//	intel      : ドメインの WHOIS/RDAP 情報収集（ターゲット単位）
//	subdomains : CT ログ等のサブドメイン列挙（ターゲット単位、並行）
//	resolve    : マージ済みサブドメインの DNS 解決（ドメイン単位）
//	endpoints  : 生存ホストに対するエンドポイント発見（ホスト単位）
//	findings   : 発見済みエンドポイントの脆弱性検査（URL 単位）
func pipeline() []stageSpec {
	return []stageSpec{
		{
			name: "intel",
			tag:  TagDomainIntel,
			expand: func(s *Session, tools []string) []unit {
				return perTool(tools, map[string]any{"domain": s.target})
			},
		},
		{
			name:     "subdomains",
			tag:      TagSubdomainEnum,
			required: true,
			lineKind: fuse.KindDomain,
			expand: func(s *Session, tools []string) []unit {
				return perTool(tools, map[string]any{"domain": s.target})
			},
		},
		{
			name:     "resolve",
			tag:      TagDNSResolve,
			required: true,
			expand: func(s *Session, tools []string) []unit {
				var units []unit
				for _, tool := range tools {
					for _, d := range s.domains {
						units = append(units, unit{
							source: tool,
							tool:   tool,
							args:   map[string]any{"domain": d},
						})
					}
				}
				return units
			},
		},
		{
			name:     "endpoints",
			tag:      TagEndpointDisc,
			lineKind: fuse.KindEndpoint,
			expand: func(s *Session, tools []string) []unit {
				var units []unit
				for _, tool := range tools {
					for _, h := range s.liveHosts {
						units = append(units, unit{
							source: tool,
							tool:   tool,
							args:   map[string]any{"host": h},
						})
					}
				}
				return units
			},
		},
		{
			name:     "findings",
			tag:      TagVulnScan,
			lineKind: fuse.KindFinding,
			expand: func(s *Session, tools []string) []unit {
				var units []unit
				for _, tool := range tools {
					for _, e := range s.endpoints {
						units = append(units, unit{
							source: tool,
							tool:   tool,
							args:   map[string]any{"url": e},
						})
					}
				}
				return units
			},
		},
	}
}

func perTool(tools []string, args map[string]any) []unit {
	units := make([]unit, 0, len(tools))
	for _, tool := range tools {
		units = append(units, unit{source: tool, tool: tool, args: args})
	}
	return units
}

// recordsFrom はツール実行結果のペイロードを融合前レコードに変換する。
// 認識するペイロード形状:
//
//	domains:   []string               → KindDomain
//	endpoints: []string               → KindEndpoint
//	findings:  []map{value, severity} → KindFinding（severity は正規化）
//	records:   []map{kind, value, attrs} → 汎用
//
// 分類はこの時点で属性として焼き込む。マージは値の衝突を
// source priority で解決するだけで、分類自体は純関数のまま。
// ペイロードから1件も取れず lineKind が指定されていれば、
// 生出力の各行を lineKind のレコードとして読む（subprocess 向け）。
func recordsFrom(res *gateway.Result, lineKind fuse.Kind) []fuse.Record {
	now := time.Now()
	var out []fuse.Record
	if res.Payload == nil {
		return lineRecords(res, lineKind, now)
	}

	for _, v := range toStrings(res.Payload["domains"]) {
		out = append(out, fuse.Record{
			Kind: fuse.KindDomain, Value: v, Source: res.Source, ObservedAt: now,
			Attrs: stringAttrs(res.Payload["attrs"]),
		})
	}
	for _, v := range toStrings(res.Payload["endpoints"]) {
		rec := fuse.Record{
			Kind: fuse.KindEndpoint, Value: v, Source: res.Source, ObservedAt: now,
			Attrs: map[string]string{"category": classify.Endpoint(v)},
		}
		out = append(out, rec)
		out = append(out, parameterRecords(v, res.Source, now)...)
	}
	for _, item := range toMaps(res.Payload["findings"]) {
		value, _ := item["value"].(string)
		if value == "" {
			continue
		}
		severity, _ := item["severity"].(string)
		rec := fuse.Record{
			Kind: fuse.KindFinding, Value: value, Source: res.Source, ObservedAt: now,
			Attrs: map[string]string{"severity": classify.Severity(severity)},
		}
		if title, ok := item["title"].(string); ok {
			rec.Attrs["title"] = title
		}
		out = append(out, rec)
	}
	for _, item := range toMaps(res.Payload["records"]) {
		kind, _ := item["kind"].(string)
		value, _ := item["value"].(string)
		if kind == "" || value == "" {
			continue
		}
		out = append(out, fuse.Record{
			Kind: fuse.Kind(kind), Value: value, Source: res.Source, ObservedAt: now,
			Attrs: stringAttrs(item["attrs"]),
		})
	}
	if len(out) == 0 {
		return lineRecords(res, lineKind, now)
	}
	return out
}

// lineRecords は生出力の非空行をそのまま lineKind のレコードにする。
func lineRecords(res *gateway.Result, lineKind fuse.Kind, at time.Time) []fuse.Record {
	if lineKind == "" {
		return nil
	}
	var out []fuse.Record
	for _, line := range res.Raw {
		v := strings.TrimSpace(line)
		if v == "" {
			continue
		}
		rec := fuse.Record{Kind: lineKind, Value: v, Source: res.Source, ObservedAt: at}
		switch lineKind {
		case fuse.KindEndpoint:
			rec.Attrs = map[string]string{"category": classify.Endpoint(v)}
			out = append(out, rec)
			out = append(out, parameterRecords(v, res.Source, at)...)
			continue
		case fuse.KindFinding:
			rec.Attrs = map[string]string{"severity": classify.Severity("")}
		}
		out = append(out, rec)
	}
	return out
}

// parameterRecords はエンドポイント URL のクエリキーをパラメーター
// エンティティとして切り出す。型分類もここで付与する。
func parameterRecords(rawURL, source string, at time.Time) []fuse.Record {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	var out []fuse.Record
	for name := range u.Query() {
		out = append(out, fuse.Record{
			Kind:       fuse.KindParameter,
			Value:      name,
			Source:     source,
			ObservedAt: at,
			Attrs: map[string]string{
				"type":     classify.Parameter(name),
				"endpoint": rawURL,
			},
		})
	}
	return out
}

func toStrings(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func toMaps(v any) []map[string]any {
	switch vv := v.(type) {
	case []map[string]any:
		return vv
	case []any:
		out := make([]map[string]any, 0, len(vv))
		for _, item := range vv {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

func stringAttrs(v any) map[string]string {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		out[k] = fmt.Sprintf("%v", val)
	}
	return out
}
