package fuse

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// domainLabelRe は RFC 1035 準拠のドメインラベル文法。
var domainLabelRe = regexp.MustCompile(`^(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)*[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)

// CanonicalDomain はドメイン名を正準形へ正規化する。
//   - 小文字化・前後空白除去・末尾ドット除去
//   - 空文字・文法不一致は拒否
//   - "*." ワイルドカードは includeWildcards が真のとき素のドメインに落とし、
//     偽なら拒否する
//   - target が非空なら target のサブドメイン（または target 自身）であること
func CanonicalDomain(raw, target string, includeWildcards bool) (string, error) {
	d := strings.ToLower(strings.TrimSpace(raw))
	d = strings.TrimSuffix(d, ".")

	if strings.HasPrefix(d, "*") {
		if !includeWildcards {
			return "", fmt.Errorf("wildcard entry rejected: %q", raw)
		}
		d = strings.TrimPrefix(d, "*")
		d = strings.TrimPrefix(d, ".")
	}

	if d == "" {
		return "", fmt.Errorf("blank domain")
	}
	if len(d) > 253 {
		return "", fmt.Errorf("domain exceeds 253 chars: %q", raw)
	}
	if !domainLabelRe.MatchString(d) {
		return "", fmt.Errorf("malformed domain: %q", raw)
	}
	for _, label := range strings.Split(d, ".") {
		if len(label) == 0 || len(label) > 63 {
			return "", fmt.Errorf("bad label length in %q", raw)
		}
	}

	if target != "" {
		t := strings.ToLower(strings.TrimSuffix(strings.TrimSpace(target), "."))
		if d != t && !strings.HasSuffix(d, "."+t) {
			return "", fmt.Errorf("domain %q outside target %q", d, t)
		}
	}
	return d, nil
}

// CanonicalEndpoint は URL を正準形へ正規化する。
//   - スキーム・ホストを小文字化
//   - デフォルトポート（http:80 / https:443）を除去
//   - パス末尾のスラッシュを除去（"/" 単独は残す）
//   - クエリパラメーターをキー順にソート（識別情報として残す）
//   - フラグメントを除去
func CanonicalEndpoint(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("malformed url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme in %q", raw)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("url without host: %q", raw)
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	netloc := host
	if port != "" {
		netloc = host + ":" + port
	}

	path := strings.TrimRight(u.EscapedPath(), "/")
	if path == "" {
		path = "/"
	}

	query := ""
	if u.RawQuery != "" {
		values, err := url.ParseQuery(u.RawQuery)
		if err == nil {
			keys := make([]string, 0, len(values))
			for k := range values {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			var parts []string
			for _, k := range keys {
				vs := values[k]
				sort.Strings(vs)
				for _, v := range vs {
					parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
				}
			}
			query = strings.Join(parts, "&")
		}
	}

	out := scheme + "://" + netloc + path
	if query != "" {
		out += "?" + query
	}
	return out, nil
}

// depth はソート用の構造的深さ。
// domain はラベル数、endpoint はパスセグメント数、それ以外は 0。
func depth(kind Kind, key string) int {
	switch kind {
	case KindDomain:
		return strings.Count(key, ".") + 1
	case KindEndpoint:
		u, err := url.Parse(key)
		if err != nil {
			return 0
		}
		p := strings.Trim(u.Path, "/")
		if p == "" {
			return 0
		}
		return strings.Count(p, "/") + 1
	default:
		return 0
	}
}
