package gateway_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/0x6d61/reconcore/internal/config"
	"github.com/0x6d61/reconcore/internal/fault"
	"github.com/0x6d61/reconcore/internal/gateway"
	"github.com/0x6d61/reconcore/internal/phase"
	"github.com/0x6d61/reconcore/internal/registry"
)

// newTestGateway は func ツール1つを登録した Gateway を組み立てる。
func newTestGateway(t *testing.T, fn gateway.Func, opts ...gateway.Option) (*gateway.Gateway, *phase.Machine) {
	t.Helper()
	reg := registry.New()
	if err := reg.Register(&registry.Descriptor{
		Name:          "probe",
		Backend:       registry.BackendFunc,
		AllowedPhases: []phase.Phase{phase.Informational},
		Params: []registry.ParamSpec{
			{Name: "target", Type: "string", Required: true},
			{Name: "count", Type: "int"},
		},
	}); err != nil {
		t.Fatal(err)
	}
	m := phase.New(nil)
	g := gateway.New(reg, m, nil, opts...)
	g.RegisterFunc("probe", fn)
	return g, m
}

func echoFn(_ context.Context, args map[string]any) (*gateway.RawResult, error) {
	return &gateway.RawResult{
		Lines:   []string{"ok"},
		Payload: map[string]any{"target": args["target"]},
	}, nil
}

func TestGateway_Call_Success(t *testing.T) {
	g, _ := newTestGateway(t, echoFn)

	res := g.Call(context.Background(), gateway.Call{
		Tool: "probe",
		Args: map[string]any{"target": "example.com"},
	})
	if res.Err != nil {
		t.Fatalf("Call: %v", res.Err)
	}
	if !res.Success {
		t.Error("Success = false")
	}
	if res.CorrelationID == "" {
		t.Error("correlation id not assigned")
	}
	if res.Payload["target"] != "example.com" {
		t.Errorf("payload: %v", res.Payload)
	}
	if res.Latency < 0 {
		t.Error("latency not measured")
	}
}

func TestGateway_PhaseGate(t *testing.T) {
	dispatched := false
	g, m := newTestGateway(t, func(ctx context.Context, args map[string]any) (*gateway.RawResult, error) {
		dispatched = true
		return &gateway.RawResult{}, nil
	})

	// exploitation へ進むと probe（informational のみ許可）は拒否される
	if err := m.Advance(phase.Exploitation); err != nil {
		t.Fatal(err)
	}
	res := g.Call(context.Background(), gateway.Call{
		Tool: "probe",
		Args: map[string]any{"target": "example.com"},
	})
	assertKind(t, res.Err, fault.KindPermission)
	if dispatched {
		t.Error("phase-denied call must never reach the backend")
	}
}

func TestGateway_ValidationErrors(t *testing.T) {
	dispatched := false
	g, _ := newTestGateway(t, func(ctx context.Context, args map[string]any) (*gateway.RawResult, error) {
		dispatched = true
		return &gateway.RawResult{}, nil
	})

	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing required", map[string]any{}},
		{"wrong type", map[string]any{"target": 42}},
		{"unknown key", map[string]any{"target": "example.com", "verbose": true}},
		{"wrong int type", map[string]any{"target": "example.com", "count": "three"}},
		{"fractional int", map[string]any{"target": "example.com", "count": 1.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := g.Call(context.Background(), gateway.Call{Tool: "probe", Args: tt.args})
			assertKind(t, res.Err, fault.KindValidation)
		})
	}
	if dispatched {
		t.Error("invalid input must never reach the backend")
	}
}

// TestGateway_IntegralFloatAccepted は JSON 経由で float64 として届く
// 整数値（3.0 等）が int パラメーターとして通ることを確認する。
func TestGateway_IntegralFloatAccepted(t *testing.T) {
	g, _ := newTestGateway(t, echoFn)
	res := g.Call(context.Background(), gateway.Call{
		Tool: "probe",
		Args: map[string]any{"target": "example.com", "count": float64(3)},
	})
	if res.Err != nil {
		t.Fatalf("Call: %v", res.Err)
	}
}

func TestGateway_UnknownTool(t *testing.T) {
	g, _ := newTestGateway(t, echoFn)
	res := g.Call(context.Background(), gateway.Call{Tool: "nonexistent"})
	assertKind(t, res.Err, fault.KindValidation)
}

func TestGateway_TimeoutBecomesTransport(t *testing.T) {
	g, _ := newTestGateway(t, func(ctx context.Context, args map[string]any) (*gateway.RawResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, gateway.WithTimeouts(gateway.Timeouts{Func: 20 * time.Millisecond, Subprocess: time.Second, RPC: time.Second}))

	res := g.Call(context.Background(), gateway.Call{
		Tool: "probe",
		Args: map[string]any{"target": "example.com"},
	})
	assertKind(t, res.Err, fault.KindTransport)
}

// TestGateway_PerToolTimeoutFromConfig は config.yaml の
// per_tool_timeout_seconds が UniformTimeouts 経由でバックエンドの
// 実行デッドラインに届くことを確認する。
func TestGateway_PerToolTimeoutFromConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "orchestrator:\n  per_tool_timeout_seconds: 1\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Orchestrator.PerToolTimeoutSec != 1 {
		t.Fatalf("PerToolTimeoutSec = %d, want 1", cfg.Orchestrator.PerToolTimeoutSec)
	}

	var deadline time.Time
	fn := func(ctx context.Context, args map[string]any) (*gateway.RawResult, error) {
		deadline, _ = ctx.Deadline()
		return &gateway.RawResult{}, nil
	}
	override := time.Duration(cfg.Orchestrator.PerToolTimeoutSec) * time.Second
	g, _ := newTestGateway(t, fn, gateway.WithTimeouts(gateway.UniformTimeouts(override)))

	start := time.Now()
	res := g.Call(context.Background(), gateway.Call{
		Tool: "probe",
		Args: map[string]any{"target": "example.com"},
	})
	if res.Err != nil {
		t.Fatalf("Call: %v", res.Err)
	}
	if deadline.IsZero() {
		t.Fatal("backend did not receive a deadline")
	}
	// クラス既定値（func 30s）が漏れていないこと
	if remaining := deadline.Sub(start); remaining > 2*time.Second {
		t.Errorf("deadline %v from start, want ~1s override", remaining)
	}
}

// TestGateway_ConcurrencyBound は admission gate が同一エンドポイントへの
// 同時実行を K 本以下に抑えることを計測で確認する。
func TestGateway_ConcurrencyBound(t *testing.T) {
	const k = 3
	const calls = 20

	var inflight, maxSeen int64
	fn := func(ctx context.Context, args map[string]any) (*gateway.RawResult, error) {
		cur := atomic.AddInt64(&inflight, 1)
		for {
			prev := atomic.LoadInt64(&maxSeen)
			if cur <= prev || atomic.CompareAndSwapInt64(&maxSeen, prev, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt64(&inflight, -1)
		return &gateway.RawResult{}, nil
	}

	g, _ := newTestGateway(t, fn, gateway.WithConcurrencyLimit(k))

	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := g.Call(context.Background(), gateway.Call{
				Tool: "probe",
				Args: map[string]any{"target": "example.com"},
			})
			if res.Err != nil {
				t.Errorf("call over the ceiling must queue, not fail: %v", res.Err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt64(&maxSeen); got > k {
		t.Errorf("observed %d simultaneous in-flight calls, limit is %d", got, k)
	}
}

func TestGateway_LogStoreKeepsRawOutput(t *testing.T) {
	store := gateway.NewLogStore()
	g, _ := newTestGateway(t, echoFn, gateway.WithLogStore(store))

	res := g.Call(context.Background(), gateway.Call{
		Tool: "probe",
		Args: map[string]any{"target": "example.com"},
	})
	saved, ok := store.Get(res.CorrelationID)
	if !ok {
		t.Fatal("result not saved to log store")
	}
	if len(saved.Raw) != 1 || saved.Raw[0] != "ok" {
		t.Errorf("raw output: %v", saved.Raw)
	}
	if _, ok := store.FullText(res.CorrelationID); !ok {
		t.Error("FullText missing")
	}
}

func assertKind(t *testing.T, err error, want fault.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	var fe *fault.Error
	if !errors.As(err, &fe) || fe.Kind != want {
		t.Fatalf("expected kind %s, got %v", want, err)
	}
}
