package schema_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/0x6d61/reconcore/internal/fault"
	"github.com/0x6d61/reconcore/internal/gateway"
	"github.com/0x6d61/reconcore/internal/recon"
	"github.com/0x6d61/reconcore/internal/registry"
	"github.com/0x6d61/reconcore/pkg/schema"
)

func TestFromResult_Success(t *testing.T) {
	res := &gateway.Result{
		CorrelationID: "c-1",
		Success:       true,
		Payload:       map[string]any{"domains": []string{"a.example.com"}},
		Latency:       1500 * time.Millisecond,
	}
	out := schema.FromResult(res)
	if !out.Success || out.Error != nil {
		t.Errorf("unexpected result: %+v", out)
	}
	if out.DurationMS != 1500 {
		t.Errorf("expected 1500ms, got %d", out.DurationMS)
	}

	data, err := json.Marshal(out)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"correlation_id", "success", "data", "error", "duration_ms"} {
		if _, ok := m[key]; !ok {
			t.Errorf("missing wire field %q", key)
		}
	}
}

func TestFromResult_Error(t *testing.T) {
	res := &gateway.Result{
		CorrelationID: "c-2",
		Err:           fault.New(fault.KindTransport, "connection reset"),
	}
	out := schema.FromResult(res)
	if out.Success {
		t.Error("expected failure")
	}
	if out.Error == nil || out.Error.Kind != string(fault.KindTransport) {
		t.Errorf("unexpected error envelope: %+v", out.Error)
	}
}

func TestFromEvent(t *testing.T) {
	ev := recon.Event{
		Seq:     7,
		Session: "sess",
		Type:    recon.EventProgress,
		Stage:   "subdomains",
		Percent: 42.5,
		Sources: map[string]recon.SourceStatus{
			"crtsh": {State: recon.SourceOK, Done: 1, Total: 1},
		},
	}
	out := schema.FromEvent(ev)
	if out.Type != "progress" || out.Stage != "subdomains" || out.Percent != 42.5 {
		t.Errorf("unexpected event envelope: %+v", out)
	}
	if out.Sources["crtsh"].Done != 1 {
		t.Errorf("source status not carried over: %+v", out.Sources)
	}
}

func TestFromDescriptors(t *testing.T) {
	defs := []*registry.Descriptor{
		{Name: "crtsh", Tags: []string{"subdomain-enum"}},
		{Name: "dns", Tags: []string{"dns-resolve"}},
	}
	out := schema.FromDescriptors(defs)
	if len(out) != 2 || out[0].Name != "crtsh" || out[1].CapabilityTags[0] != "dns-resolve" {
		t.Errorf("unexpected tool listing: %+v", out)
	}
}
