package gateway

import (
	"context"

	"github.com/0x6d61/reconcore/internal/registry"
)

// Func はプロセス内ツールの実体。
type Func func(ctx context.Context, args map[string]any) (*RawResult, error)

// FuncBackend は Go 関数をそのままバックエンドとして公開する。
// 組み込みソース（CT ログ検索、DNS 解決等）はこの形で登録される。
type FuncBackend struct {
	name string
	fn   Func
}

// NewFuncBackend は FuncBackend を構築する。
func NewFuncBackend(name string, fn Func) *FuncBackend {
	return &FuncBackend{name: name, fn: fn}
}

func (b *FuncBackend) Kind() registry.BackendKind { return registry.BackendFunc }

func (b *FuncBackend) Endpoint() string { return b.name }

func (b *FuncBackend) Execute(ctx context.Context, args map[string]any) (*RawResult, error) {
	return b.fn(ctx, args)
}
