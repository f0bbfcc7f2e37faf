package classify_test

import (
	"regexp"
	"testing"

	"github.com/0x6d61/reconcore/internal/classify"
)

func TestEndpoint_Categories(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://example.com/login", "auth"},
		{"https://example.com/api/v2/users", "api"},
		{"https://example.com/admin/panel", "admin"},
		{"https://example.com/upload", "file"},
		{"https://example.com/.git/config", "sensitive"},
		{"https://example.com/app.js", "static"},
		{"https://example.com/view?id=1", "dynamic"},
		{"https://example.com/about", "unknown"},
	}
	for _, tt := range tests {
		if got := classify.Endpoint(tt.url); got != tt.want {
			t.Errorf("Endpoint(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestEndpoint_PrecedenceFirstMatchWins(t *testing.T) {
	// auth と api の両方に一致し得る URL は上位ルール（auth）が勝つ
	if got := classify.Endpoint("https://example.com/api/login"); got != "auth" {
		t.Errorf("got %q, want auth (first match wins)", got)
	}
}

func TestParameter_Types(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"user_id", "id"},
		{"api_key", "token"},
		{"file", "path"},
		{"email", "email"},
		{"redirect", "url"},
		{"search", "query"},
		{"xyz123", "unknown"},
	}
	for _, tt := range tests {
		if got := classify.Parameter(tt.name); got != tt.want {
			t.Errorf("Parameter(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestSeverity_Normalization(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"CRITICAL", "critical"},
		{"crit", "critical"},
		{"High", "high"},
		{"moderate", "medium"},
		{"low", "low"},
		{"informational", "info"},
		{"weird-value", "unknown"},
	}
	for _, tt := range tests {
		if got := classify.Severity(tt.raw); got != tt.want {
			t.Errorf("Severity(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

// TestDeterminism は同じ入力・同じテーブルで常に同じ結果になることを確認する。
func TestDeterminism(t *testing.T) {
	inputs := []string{"https://example.com/login", "https://example.com/nowhere", ""}
	for _, in := range inputs {
		first := classify.Endpoint(in)
		for i := 0; i < 100; i++ {
			if got := classify.Endpoint(in); got != first {
				t.Fatalf("Endpoint(%q) unstable: %q then %q", in, first, got)
			}
		}
	}
}

// TestCustomTable はテーブルがロジックに触れず差し替え可能なことを確認する。
func TestCustomTable(t *testing.T) {
	table := classify.Table{
		{Category: "internal", Pattern: regexp.MustCompile(`^10\.`)},
		{Category: "external", Pattern: regexp.MustCompile(`^\d`)},
	}
	if got := table.Classify("10.0.0.5"); got != "internal" {
		t.Errorf("got %q", got)
	}
	if got := table.Classify("8.8.8.8"); got != "external" {
		t.Errorf("got %q", got)
	}
	if got := table.Classify("not-an-ip"); got != classify.Unknown {
		t.Errorf("no match must yield unknown, got %q", got)
	}
}
