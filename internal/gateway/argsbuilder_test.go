package gateway_test

import (
	"reflect"
	"testing"

	"github.com/0x6d61/reconcore/internal/gateway"
)

func TestBuildCLIArgs(t *testing.T) {
	tests := []struct {
		name     string
		template string
		args     map[string]any
		want     []string
		wantErr  bool
	}{
		{
			name:     "required key expands",
			template: "-d {domain!} -silent",
			args:     map[string]any{"domain": "example.com"},
			want:     []string{"-d", "example.com", "-silent"},
		},
		{
			name:     "missing required errors",
			template: "-d {domain!}",
			args:     map[string]any{},
			wantErr:  true,
		},
		{
			name:     "missing optional drops group",
			template: "-d {domain!} -p {ports}",
			args:     map[string]any{"domain": "example.com"},
			want:     []string{"-d", "example.com"},
		},
		{
			name:     "list value expands to multiple args",
			template: "{targets}",
			args:     map[string]any{"targets": []any{"a.example.com", "b.example.com"}},
			want:     []string{"a.example.com", "b.example.com"},
		},
		{
			name:     "empty template yields nil",
			template: "",
			args:     map[string]any{"domain": "example.com"},
			want:     nil,
		},
		{
			name:     "non-string list element errors",
			template: "{targets}",
			args:     map[string]any{"targets": []any{"ok", 7}},
			wantErr:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := gateway.BuildCLIArgs(tt.template, tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("BuildCLIArgs: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBlacklist(t *testing.T) {
	bl := gateway.NewBlacklist([]string{`rm\s+-rf`, `mkfs`, `(?i)shutdown`})

	if !bl.Match("rm -rf /") {
		t.Error("rm -rf should match")
	}
	if !bl.Match("sudo SHUTDOWN now") {
		t.Error("case-insensitive pattern should match")
	}
	if bl.Match("nmap -sV 10.0.0.5") {
		t.Error("benign command should not match")
	}
}

func TestBlacklist_InvalidPatternSkipped(t *testing.T) {
	// 不正な正規表現はスキップされ、残りは機能する
	bl := gateway.NewBlacklist([]string{`([`, `dd\s+if=`})
	if !bl.Match("dd if=/dev/zero of=/dev/sda") {
		t.Error("valid pattern should still match")
	}
}
