package gateway

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/0x6d61/reconcore/internal/fault"
	"github.com/0x6d61/reconcore/internal/phase"
	"github.com/0x6d61/reconcore/internal/registry"
)

// Call はツール呼び出し1件の要求。
type Call struct {
	CorrelationID string // 空なら Gateway が uuid を採番する
	Tool          string
	Args          map[string]any
	Phase         phase.Phase // 要求フェーズ（空なら現在フェーズ）
	At            time.Time
}

// Result はツール呼び出し1件の結果。
type Result struct {
	CorrelationID string
	Tool          string
	Source        string // ソースタグ（Merge エンジンの provenance 用）
	Success       bool
	Raw           []string       // 生出力
	Payload       map[string]any // 正規化済みペイロード
	ExitCode      int
	StartedAt     time.Time
	Latency       time.Duration
	Err           error // 常に *fault.Error（成功時は nil）
}

// Timeouts はバックエンド種別ごとのデフォルトタイムアウト。
type Timeouts struct {
	Func       time.Duration
	Subprocess time.Duration
	RPC        time.Duration
}

// DefaultTimeouts はツールクラス別の既定値。
var DefaultTimeouts = Timeouts{
	Func:       30 * time.Second,
	Subprocess: 300 * time.Second,
	RPC:        120 * time.Second,
}

// Gateway はすべてのツール呼び出しが通る単一の関門。
//   - 引数スキーマ検証（バックエンドに届く前に失敗させる）
//   - フェーズゲート確認（不許可はディスパッチしない。後回しにもしない）
//   - ツールクラス別タイムアウト
//   - バックエンドエンドポイント単位の同時実行上限（超過分は待ち行列）
//   - エラー形状の分類正規化
type Gateway struct {
	reg      *registry.Registry
	machine  *phase.Machine
	store    *LogStore
	log      *logrus.Entry
	timeouts Timeouts
	limit    int64 // エンドポイントあたりの同時実行上限

	mu       sync.Mutex
	funcs    map[string]Func
	backends map[string]Backend             // key: tool name
	gates    map[string]*semaphore.Weighted // key: backend endpoint

	blacklist *Blacklist
}

// Option は Gateway の構築オプション。
type Option func(*Gateway)

// WithTimeouts はクラス別タイムアウトを差し替える。
func WithTimeouts(t Timeouts) Option {
	return func(g *Gateway) { g.timeouts = t }
}

// UniformTimeouts は3クラスすべてに同じ値を適用する Timeouts を返す。
// 設定ファイルの per_tool_timeout_seconds を反映するときに使う。
func UniformTimeouts(d time.Duration) Timeouts {
	return Timeouts{Func: d, Subprocess: d, RPC: d}
}

// WithConcurrencyLimit はエンドポイントあたりの同時実行上限 K を設定する。
func WithConcurrencyLimit(k int) Option {
	return func(g *Gateway) {
		if k > 0 {
			g.limit = int64(k)
		}
	}
}

// WithBlacklist は subprocess 向けブラックリストを設定する。
func WithBlacklist(bl *Blacklist) Option {
	return func(g *Gateway) { g.blacklist = bl }
}

// WithLogStore は生出力の保存先を設定する。
func WithLogStore(store *LogStore) Option {
	return func(g *Gateway) { g.store = store }
}

// New は Gateway を構築する。reg と machine は必須。
func New(reg *registry.Registry, machine *phase.Machine, log *logrus.Entry, opts ...Option) *Gateway {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	g := &Gateway{
		reg:      reg,
		machine:  machine,
		log:      log,
		timeouts: DefaultTimeouts,
		limit:    4,
		funcs:    make(map[string]Func),
		backends: make(map[string]Backend),
		gates:    make(map[string]*semaphore.Weighted),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RegisterFunc は func バックエンドの実体を登録する。
// Descriptor 側の backend: func と対で使う。
func (g *Gateway) RegisterFunc(toolName string, fn Func) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.funcs[toolName] = fn
	delete(g.backends, toolName) // 実体差し替え時はキャッシュを破棄
}

// Call はツールを同期実行する。
// 返る Result.Err は常に fault の分類に正規化されている。
func (g *Gateway) Call(ctx context.Context, call Call) *Result {
	if call.CorrelationID == "" {
		call.CorrelationID = uuid.NewString()
	}
	if call.At.IsZero() {
		call.At = time.Now()
	}
	if call.Phase == "" {
		call.Phase = g.machine.Current()
	}

	res := &Result{
		CorrelationID: call.CorrelationID,
		Tool:          call.Tool,
		Source:        call.Tool,
		StartedAt:     time.Now(),
	}
	finish := func(err error) *Result {
		res.Latency = time.Since(res.StartedAt)
		res.Err = err
		res.Success = err == nil && res.ExitCode == 0
		if g.store != nil {
			g.store.Save(res)
		}
		return res
	}

	def, ok := g.reg.Get(call.Tool)
	if !ok {
		return finish(fault.Newf(fault.KindValidation, "unknown tool %q", call.Tool).WithTool(call.Tool))
	}

	// フェーズゲート。不許可ならディスパッチせず即座に返す。
	if !g.reg.IsAllowed(call.Tool, call.Phase) {
		g.log.WithFields(logrus.Fields{"tool": call.Tool, "phase": call.Phase}).Warn("phase gate rejected call")
		return finish(fault.Newf(fault.KindPermission, "tool %q is not allowed in phase %q", call.Tool, call.Phase).WithTool(call.Tool))
	}

	// 引数検証。不正な入力はバックエンドに到達させない。
	if err := validateArgs(def, call.Args); err != nil {
		return finish(err)
	}

	backend, err := g.backendFor(def)
	if err != nil {
		return finish(err)
	}

	// 同一エンドポイントへの同時呼び出しを K 本に制限する。
	// 超過分は失敗ではなく待ち行列に入る。
	gate := g.gateFor(backend.Endpoint())
	if err := gate.Acquire(ctx, 1); err != nil {
		return finish(fault.Wrap(fault.KindTransport, err, "admission wait cancelled").WithTool(call.Tool))
	}
	defer gate.Release(1)

	timeout := g.timeoutFor(def)
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, execErr := backend.Execute(execCtx, call.Args)
	if execErr != nil {
		return finish(normalizeErr(execErr, call.Tool))
	}
	res.Raw = raw.Lines
	res.Payload = raw.Payload
	res.ExitCode = raw.ExitCode
	return finish(nil)
}

// timeoutFor は Descriptor の timeout 指定、なければクラス別既定値を返す。
func (g *Gateway) timeoutFor(def *registry.Descriptor) time.Duration {
	if def.TimeoutSec > 0 {
		return time.Duration(def.TimeoutSec) * time.Second
	}
	switch def.Backend {
	case registry.BackendFunc:
		return g.timeouts.Func
	case registry.BackendRPC:
		return g.timeouts.RPC
	default:
		return g.timeouts.Subprocess
	}
}

// backendFor は Descriptor に対応する Backend を返す（ツール名でキャッシュ）。
func (g *Gateway) backendFor(def *registry.Descriptor) (Backend, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if b, ok := g.backends[def.Name]; ok {
		return b, nil
	}

	var b Backend
	switch def.Backend {
	case registry.BackendFunc:
		fn, ok := g.funcs[def.Name]
		if !ok {
			return nil, fault.Newf(fault.KindValidation, "no in-process implementation registered for %q", def.Name).WithTool(def.Name)
		}
		b = NewFuncBackend(def.Name, fn)
	case registry.BackendSubprocess:
		b = NewCommandBackend(def, g.blacklist)
	case registry.BackendRPC:
		b = NewRPCBackend(def)
	default:
		return nil, fault.Newf(fault.KindValidation, "unknown backend kind %q", def.Backend).WithTool(def.Name)
	}
	g.backends[def.Name] = b
	return b, nil
}

// gateFor はエンドポイントの admission gate を返す（なければ作る）。
func (g *Gateway) gateFor(endpoint string) *semaphore.Weighted {
	g.mu.Lock()
	defer g.mu.Unlock()
	gate, ok := g.gates[endpoint]
	if !ok {
		gate = semaphore.NewWeighted(g.limit)
		g.gates[endpoint] = gate
	}
	return gate
}

// validateArgs は args を Descriptor の Params スキーマと突き合わせる。
// 必須欠落・型不一致・未知キーはすべて ValidationError。
func validateArgs(def *registry.Descriptor, args map[string]any) error {
	known := make(map[string]registry.ParamSpec, len(def.Params))
	for _, p := range def.Params {
		known[p.Name] = p
		if _, ok := args[p.Name]; p.Required && !ok {
			return fault.Newf(fault.KindValidation, "missing required argument %q", p.Name).WithTool(def.Name)
		}
	}
	for name, val := range args {
		spec, ok := known[name]
		if !ok {
			return fault.Newf(fault.KindValidation, "unknown argument %q", name).WithTool(def.Name)
		}
		if err := checkType(spec, val); err != nil {
			return fault.Wrap(fault.KindValidation, err, "argument type").WithTool(def.Name)
		}
	}
	return nil
}

func checkType(spec registry.ParamSpec, val any) error {
	switch spec.Type {
	case "", "string":
		if _, ok := val.(string); !ok {
			return fmt.Errorf("%q must be a string, got %T", spec.Name, val)
		}
	case "int":
		switch v := val.(type) {
		case int, int64:
		case float64: // JSON/YAML 経由の数値は float64 で届く
			if v != math.Trunc(v) {
				return fmt.Errorf("%q must be an integer, got %v", spec.Name, v)
			}
		default:
			return fmt.Errorf("%q must be an integer, got %T", spec.Name, val)
		}
	case "bool":
		if _, ok := val.(bool); !ok {
			return fmt.Errorf("%q must be a bool, got %T", spec.Name, val)
		}
	case "list":
		switch val.(type) {
		case []any, []string:
		default:
			return fmt.Errorf("%q must be a list, got %T", spec.Name, val)
		}
	default:
		return fmt.Errorf("param %q has unknown type %q", spec.Name, spec.Type)
	}
	return nil
}

// normalizeErr はバックエンド固有のエラー形状を共通分類へ正規化する。
// Gateway より手前で作られる validation / permission は既に fault 型なので
// そのまま通し、それ以外（I/O 起因）は transport に落とす。
func normalizeErr(err error, tool string) error {
	var fe *fault.Error
	if errors.As(err, &fe) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fault.Wrap(fault.KindTransport, err, "tool timeout").WithTool(tool)
	}
	if errors.Is(err, context.Canceled) {
		return fault.Wrap(fault.KindTransport, err, "cancelled").WithTool(tool)
	}
	return fault.Wrap(fault.KindTransport, err, "backend failure").WithTool(tool)
}
