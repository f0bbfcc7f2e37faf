package sink_test

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/0x6d61/reconcore/internal/fuse"
	"github.com/0x6d61/reconcore/internal/sink"
)

func TestJSONLSink_Commit(t *testing.T) {
	dir := t.TempDir()
	s := sink.NewJSONL(dir)

	entities := []fuse.Entity{
		{
			Kind:  fuse.KindDomain,
			Key:   "www.example.com",
			Attrs: map[string]string{"ip": "93.184.216.34"},
			Provenance: []fuse.Observation{
				{Source: "crtsh", ObservedAt: time.Now(), RawValue: "WWW.EXAMPLE.COM"},
				{Source: "dns", ObservedAt: time.Now(), RawValue: "www.example.com"},
			},
		},
		{
			Kind: fuse.KindEndpoint,
			Key:  "https://www.example.com/login",
			Provenance: []fuse.Observation{
				{Source: "crawler", ObservedAt: time.Now(), RawValue: "https://www.example.com/login"},
			},
		},
	}

	if err := s.Commit(context.Background(), "sess-1", entities); err != nil {
		t.Fatalf("Commit returned error: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "sess-1.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var lines []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("invalid JSON line: %v", err)
		}
		lines = append(lines, m)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0]["key"] != "www.example.com" || lines[0]["session"] != "sess-1" {
		t.Errorf("unexpected first line: %v", lines[0])
	}
	prov, ok := lines[0]["provenance"].([]any)
	if !ok || len(prov) != 2 {
		t.Errorf("expected 2 provenance entries, got %v", lines[0]["provenance"])
	}
}

func TestJSONLSink_Append(t *testing.T) {
	dir := t.TempDir()
	s := sink.NewJSONL(dir)
	e := []fuse.Entity{{Kind: fuse.KindDomain, Key: "a.example.com"}}

	if err := s.Commit(context.Background(), "sess-2", e); err != nil {
		t.Fatal(err)
	}
	if err := s.Commit(context.Background(), "sess-2", e); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "sess-2.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	count := 0
	for _, b := range data {
		if b == '\n' {
			count++
		}
	}
	if count != 2 {
		t.Errorf("expected 2 appended lines, got %d", count)
	}
}
