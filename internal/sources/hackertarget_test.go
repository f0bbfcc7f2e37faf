package sources_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/0x6d61/reconcore/internal/sources"
)

func TestHackerTarget_Handle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "example.com" {
			t.Errorf("unexpected query: %s", got)
		}
		if got := r.URL.Query().Get("apikey"); got != "test-key" {
			t.Errorf("expected apikey to be forwarded, got '%s'", got)
		}
		w.Write([]byte("www.example.com,93.184.216.34\nmail.example.com,93.184.216.35\nbad-line\nother.org,1.2.3.4\n"))
	}))
	defer srv.Close()

	ht := sources.NewHackerTarget("test-key", testLogger())
	ht.SetBaseURL(srv.URL)

	raw, err := ht.Handle(context.Background(), map[string]any{"domain": "example.com"})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	records, ok := raw.Payload["records"].([]map[string]any)
	if !ok {
		t.Fatalf("expected records payload, got %T", raw.Payload["records"])
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0]["value"] != "www.example.com" {
		t.Errorf("unexpected first record: %+v", records[0])
	}
	attrs := records[0]["attrs"].(map[string]any)
	if attrs["ip"] != "93.184.216.34" {
		t.Errorf("expected ip attr, got %+v", attrs)
	}
}

func TestHackerTarget_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("error check your search parameter"))
	}))
	defer srv.Close()

	ht := sources.NewHackerTarget("", testLogger())
	ht.SetBaseURL(srv.URL)

	raw, err := ht.Handle(context.Background(), map[string]any{"domain": "example.com"})
	if err != nil {
		t.Fatalf("API error body must not fail the call: %v", err)
	}
	if len(raw.Payload) != 0 {
		t.Errorf("expected empty payload on API error, got %v", raw.Payload)
	}
}
