// Package sink はセッション確定後の正準エンティティを永続化側へ渡す。
// 永続化の実体（DB・外部 API 等）はコラボレーターの責務で、
// ここでは受け渡しの面とファイルベースの実装だけを持つ。
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/0x6d61/reconcore/internal/fuse"
)

// Committer はエンティティ集合の受け取り口。
// エンティティは常に provenance 付きで渡される。
type Committer interface {
	Commit(ctx context.Context, session string, entities []fuse.Entity) error
}

// JSONLSink はセッションごとに1ファイルの JSON Lines を書く Committer。
type JSONLSink struct {
	dir string
}

// NewJSONL は指定ディレクトリに書く JSONLSink を返す。
// ディレクトリは Commit 時に自動作成する。
func NewJSONL(dir string) *JSONLSink {
	return &JSONLSink{dir: dir}
}

type entityLine struct {
	Session     string             `json:"session"`
	CommittedAt string             `json:"committed_at"`
	Kind        fuse.Kind          `json:"kind"`
	Key         string             `json:"key"`
	Attrs       map[string]string  `json:"attrs,omitempty"`
	Provenance  []fuse.Observation `json:"provenance"`
}

// Commit はエンティティを1行1件で追記する。
// ファイル名: <dir>/<session>.jsonl
func (s *JSONLSink) Commit(ctx context.Context, session string, entities []fuse.Entity) error {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("sink: mkdir: %w", err)
	}

	path := filepath.Join(s.dir, session+".jsonl")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("sink: open file: %w", err)
	}
	defer f.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	enc := json.NewEncoder(f)
	for _, e := range entities {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("sink: commit cancelled: %w", err)
		}
		line := entityLine{
			Session:     session,
			CommittedAt: now,
			Kind:        e.Kind,
			Key:         e.Key,
			Attrs:       e.Attrs,
			Provenance:  e.Provenance,
		}
		if err := enc.Encode(&line); err != nil {
			return fmt.Errorf("sink: write entity %s: %w", e.Key, err)
		}
	}
	return nil
}
