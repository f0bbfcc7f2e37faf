// Package registry はフェーズ権限付きツールカタログを提供する。
// 実行ロジックは持たない。メタデータと許可判定のみ。
package registry

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/0x6d61/reconcore/internal/fault"
	"github.com/0x6d61/reconcore/internal/phase"
)

// Registry はロード済み Descriptor を名前で管理する。
// グローバルシングルトンにはしない。起動時に構築して参照渡しする。
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*Descriptor
}

// New は空の Registry を返す。
func New() *Registry {
	return &Registry{defs: make(map[string]*Descriptor)}
}

// Register は Descriptor を登録する。
// 同名が既にあり d.Replace が false なら DuplicateTool で失敗する。
func (r *Registry) Register(d *Descriptor) error {
	if d == nil || d.Name == "" {
		return fault.New(fault.KindValidation, "descriptor missing name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[d.Name]; exists && !d.Replace {
		return fault.Newf(fault.KindDuplicateTool, "tool %q already registered", d.Name).WithTool(d.Name)
	}
	r.defs[d.Name] = d
	return nil
}

// Unregister はツールを削除する。存在しなくてもエラーにしない（冪等）。
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.defs, name)
}

// Get は名前で Descriptor を返す。
func (r *Registry) Get(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[name]
	return d, ok
}

// IsAllowed はツールが指定フェーズで呼び出し可能かを返す。
// Descriptor の許可フェーズ集合のみから計算される純粋な判定。副作用なし。
func (r *Registry) IsAllowed(name string, p phase.Phase) bool {
	d, ok := r.Get(name)
	if !ok {
		return false
	}
	return d.AllowsPhase(p)
}

// ToolsForPhase は p で許可されるツールを名前昇順で返す。
func (r *Registry) ToolsForPhase(p phase.Phase) []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*Descriptor
	for _, d := range r.defs {
		if d.AllowsPhase(p) {
			result = append(result, d)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// All は登録済みの全 Descriptor を名前昇順で返す。
func (r *Registry) All() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Descriptor, 0, len(r.defs))
	for _, d := range r.defs {
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// LoadDir は dir 以下の *.yaml ファイルをロードして Descriptor を登録する。
// ディレクトリがなくてもエラーにしない（起動時の柔軟性）。
func (r *Registry) LoadDir(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(path, ".yaml") {
			return nil
		}
		if loadErr := r.loadFile(path); loadErr != nil {
			return fmt.Errorf("load %s: %w", path, loadErr)
		}
		return nil
	})
}

func (r *Registry) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	if d.Name == "" {
		return fmt.Errorf("tool definition missing 'name' field")
	}
	if d.Backend == "" {
		d.Backend = BackendSubprocess // YAML 定義のデフォルトは外部コマンド
	}
	if err := validatePhases(&d); err != nil {
		return err
	}
	return r.Register(&d)
}

func validatePhases(d *Descriptor) error {
	for _, p := range d.AllowedPhases {
		if !phase.Valid(p) {
			return fmt.Errorf("tool %q: unknown phase %q", d.Name, p)
		}
	}
	return nil
}
