package gateway_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/0x6d61/reconcore/internal/fault"
	"github.com/0x6d61/reconcore/internal/gateway"
	"github.com/0x6d61/reconcore/internal/phase"
	"github.com/0x6d61/reconcore/internal/registry"
)

// sseHandler は JSON-RPC over SSE の最小応答を返すテストサーバーハンドラー。
func sseHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "data: %s\n\n", body)
		fmt.Fprint(w, "data: [DONE]\n\n")
	}
}

func newRPCGateway(t *testing.T, url string) *gateway.Gateway {
	t.Helper()
	reg := registry.New()
	if err := reg.Register(&registry.Descriptor{
		Name:          "remote-scan",
		Backend:       registry.BackendRPC,
		AllowedPhases: []phase.Phase{phase.Informational},
		RPC:           &registry.RPCConfig{Transport: "http", URL: url},
	}); err != nil {
		t.Fatal(err)
	}
	return gateway.New(reg, phase.New(nil), nil)
}

func TestRPCBackend_HTTP(t *testing.T) {
	srv := httptest.NewServer(sseHandler(`{"jsonrpc":"2.0","id":1,"result":{"hosts":["a.example.com"]}}`))
	defer srv.Close()

	g := newRPCGateway(t, srv.URL)
	res := g.Call(context.Background(), gateway.Call{Tool: "remote-scan"})
	if res.Err != nil {
		t.Fatalf("Call: %v", res.Err)
	}
	hosts, ok := res.Payload["hosts"].([]any)
	if !ok || len(hosts) != 1 || hosts[0] != "a.example.com" {
		t.Errorf("payload: %v", res.Payload)
	}
}

func TestRPCBackend_ServerErrorIsTransport(t *testing.T) {
	srv := httptest.NewServer(sseHandler(`{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"scanner offline"}}`))
	defer srv.Close()

	g := newRPCGateway(t, srv.URL)
	res := g.Call(context.Background(), gateway.Call{Tool: "remote-scan"})
	assertKind(t, res.Err, fault.KindTransport)
}

func TestRPCBackend_UnreachableIsTransport(t *testing.T) {
	// 閉じたサーバー = 接続拒否
	srv := httptest.NewServer(sseHandler(`{}`))
	url := srv.URL
	srv.Close()

	g := newRPCGateway(t, url)
	res := g.Call(context.Background(), gateway.Call{Tool: "remote-scan"})
	assertKind(t, res.Err, fault.KindTransport)
}

func TestRPCBackend_HTTPStatusErrorIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broken", http.StatusBadGateway)
	}))
	defer srv.Close()

	g := newRPCGateway(t, srv.URL)
	res := g.Call(context.Background(), gateway.Call{Tool: "remote-scan"})
	assertKind(t, res.Err, fault.KindTransport)
}
