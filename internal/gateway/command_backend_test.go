package gateway_test

import (
	"context"
	"testing"

	"github.com/0x6d61/reconcore/internal/fault"
	"github.com/0x6d61/reconcore/internal/gateway"
	"github.com/0x6d61/reconcore/internal/phase"
	"github.com/0x6d61/reconcore/internal/registry"
)

func newEchoGateway(t *testing.T, opts ...gateway.Option) *gateway.Gateway {
	t.Helper()
	reg := registry.New()
	if err := reg.Register(&registry.Descriptor{
		Name:          "echo",
		Backend:       registry.BackendSubprocess,
		Binary:        "echo",
		ArgsTemplate:  "{message!}",
		AllowedPhases: []phase.Phase{phase.Informational},
		Params:        []registry.ParamSpec{{Name: "message", Type: "string", Required: true}},
	}); err != nil {
		t.Fatal(err)
	}
	return gateway.New(reg, phase.New(nil), nil, opts...)
}

func TestCommandBackend_Echo(t *testing.T) {
	g := newEchoGateway(t)
	res := g.Call(context.Background(), gateway.Call{
		Tool: "echo",
		Args: map[string]any{"message": "hello recon"},
	})
	if res.Err != nil {
		t.Fatalf("Call: %v", res.Err)
	}
	if len(res.Raw) != 1 || res.Raw[0] != "hello recon" {
		t.Errorf("raw output: %v", res.Raw)
	}
	if res.ExitCode != 0 || !res.Success {
		t.Errorf("exit=%d success=%v", res.ExitCode, res.Success)
	}
}

func TestCommandBackend_BlacklistBlocks(t *testing.T) {
	bl := gateway.NewBlacklist([]string{`hello`})
	g := newEchoGateway(t, gateway.WithBlacklist(bl))

	res := g.Call(context.Background(), gateway.Call{
		Tool: "echo",
		Args: map[string]any{"message": "hello recon"},
	})
	assertKind(t, res.Err, fault.KindPermission)
}

func TestCommandBackend_MissingBinary(t *testing.T) {
	reg := registry.New()
	if err := reg.Register(&registry.Descriptor{
		Name:          "ghost",
		Backend:       registry.BackendSubprocess,
		Binary:        "definitely-not-a-real-binary-xyz",
		AllowedPhases: []phase.Phase{phase.Informational},
	}); err != nil {
		t.Fatal(err)
	}
	g := gateway.New(reg, phase.New(nil), nil)
	res := g.Call(context.Background(), gateway.Call{Tool: "ghost"})
	assertKind(t, res.Err, fault.KindValidation)
}
