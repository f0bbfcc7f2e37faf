package gateway

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// LogStore はツール呼び出しの生出力をメモリに保持する。
// 上位層（エージェントや UI）が後から全ログを参照するために使う。
type LogStore struct {
	mu      sync.RWMutex
	results map[string]*Result // key: Result.CorrelationID
}

// NewLogStore は空の LogStore を返す。
func NewLogStore() *LogStore {
	return &LogStore{results: make(map[string]*Result)}
}

// Save は Result を保存する。
func (s *LogStore) Save(r *Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[r.CorrelationID] = r
}

// Get は correlation ID で Result を取得する。
func (s *LogStore) Get(id string) (*Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[id]
	return r, ok
}

// ForTool は指定ツールの全 Result を呼び出しの新しい順で返す。
func (s *LogStore) ForTool(tool string) []*Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var results []*Result
	for _, r := range s.results {
		if r.Tool == tool {
			results = append(results, r)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].StartedAt.After(results[j].StartedAt)
	})
	return results
}

// FullText は指定 correlation ID の生出力全文を文字列で返す。
func (s *LogStore) FullText(id string) (string, bool) {
	r, ok := s.Get(id)
	if !ok {
		return "", false
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("=== %s (ID: %s) ===\n", r.Tool, r.CorrelationID))
	for _, line := range r.Raw {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String(), true
}
