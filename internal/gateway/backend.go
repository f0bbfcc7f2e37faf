// Package gateway はツール呼び出しの統一コントラクトを提供する。
// バックエンド（プロセス内関数・subprocess・リモート RPC）の違いは
// Backend インターフェースの背後に閉じ込め、呼び出し側は分岐しない。
package gateway

import (
	"context"

	"github.com/0x6d61/reconcore/internal/registry"
)

// RawResult はバックエンドが返した生の実行結果。
// 正規化前のデータであり、Merge エンジンに渡す前に Gateway が Result に包む。
type RawResult struct {
	Lines    []string       // 行単位の生テキスト出力
	Payload  map[string]any // 構造化出力（func / rpc バックエンド向け）
	ExitCode int            // subprocess の終了コード（それ以外は常に 0）
}

// Backend は単一ツールの実行メカニズム。3種の実装がすべて同じ契約を満たす。
type Backend interface {
	// Execute はツールを実行して生結果を返す。キャンセルは ctx 経由で
	// ベストエフォート伝播される（subprocess kill / コネクション close）。
	Execute(ctx context.Context, args map[string]any) (*RawResult, error)

	// Kind は実装の種別を返す。
	Kind() registry.BackendKind

	// Endpoint は同時実行数を数える単位（admission gate のキー）。
	// subprocess ならバイナリ名、rpc ならサーバー URL、func ならツール名。
	Endpoint() string
}
