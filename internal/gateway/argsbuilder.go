package gateway

import (
	"fmt"
	"regexp"
	"strings"
)

// tokenRe は "{key}" または "{key!}"（必須マーカー付き）を検出する。
var tokenRe = regexp.MustCompile(`\{(\w+)(!?)\}`)

// BuildCLIArgs は args_template と map[string]any の args から CLI 引数スライスを生成する。
//
// テンプレートルール:
//   - {key}  : args[key] が存在すれば展開。なければトークングループごと除去。
//   - {key!} : args[key] が必須。なければエラー。
//   - string 値はそのまま、[]any / []string 値は要素ごとに独立した引数として展開。
//   - template が空なら引数なし。
func BuildCLIArgs(template string, args map[string]any) ([]string, error) {
	if strings.TrimSpace(template) == "" {
		return nil, nil
	}

	var result []string
	for _, group := range splitGroups(template) {
		expanded, skip, err := expandGroup(group, args)
		if err != nil {
			return nil, err
		}
		if !skip {
			result = append(result, expanded...)
		}
	}
	return result, nil
}

// splitGroups はテンプレートを「グループ」に分割する。
// グループ = フラグとその {key} 値のまとまり。例: "-d {domain!} -silent" →
// ["-d {domain!}", "-silent"]。
func splitGroups(template string) []string {
	tokens := strings.Fields(template)
	var groups []string
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if !tokenRe.MatchString(tok) && i+1 < len(tokens) && tokenRe.MatchString(tokens[i+1]) {
			// リテラル + 直後の {key} を同一グループに
			groups = append(groups, tok+" "+tokens[i+1])
			i++
			continue
		}
		groups = append(groups, tok)
	}
	return groups
}

// expandGroup はグループ内の {key} を展開する。
// オプションキーが args にない場合は skip=true を返しグループごと落とす。
func expandGroup(group string, args map[string]any) (expanded []string, skip bool, err error) {
	matches := tokenRe.FindAllStringSubmatch(group, -1)
	if len(matches) == 0 {
		return strings.Fields(group), false, nil
	}

	result := group
	for _, m := range matches {
		placeholder, key, required := m[0], m[1], m[2] == "!"

		val, exists := args[key]
		if !exists {
			if required {
				return nil, false, fmt.Errorf("BuildCLIArgs: required key %q missing in args", key)
			}
			return nil, true, nil
		}

		strs, err := toStringSlice(val)
		if err != nil {
			return nil, false, fmt.Errorf("BuildCLIArgs: key %q: %w", key, err)
		}
		result = strings.ReplaceAll(result, placeholder, strings.Join(strs, " "))
	}
	return strings.Fields(result), false, nil
}

// toStringSlice は any 値を []string に変換する。
func toStringSlice(v any) ([]string, error) {
	switch val := v.(type) {
	case string:
		if val == "" {
			return nil, nil
		}
		return strings.Fields(val), nil
	case []string:
		return val, nil
	case []any:
		result := make([]string, 0, len(val))
		for i, elem := range val {
			s, ok := elem.(string)
			if !ok {
				return nil, fmt.Errorf("element[%d] is not a string: %T", i, elem)
			}
			result = append(result, s)
		}
		return result, nil
	case nil:
		return nil, nil
	default:
		return []string{fmt.Sprintf("%v", v)}, nil
	}
}
