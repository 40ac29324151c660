package config

import (
	"testing"
)

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", "(not set)"},
		{"short", "hunter2", "***"},
		{"long", "s3cr3t-token-abcdef", "s3c...cdef"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskSecret(tt.in); got != tt.want {
				t.Errorf("MaskSecret(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRedactEndpoint(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres://app:pa55@db:5432/orders", "postgres://app:xxxxx@db:5432/orders"},
		{"https://api.example.com/health", "https://api.example.com/health"},
		{"postgres://app@db:5432", "postgres://app@db:5432"},
		{"db:5432", "db:5432"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := RedactEndpoint(tt.in); got != tt.want {
			t.Errorf("RedactEndpoint(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRedacted(t *testing.T) {
	cfg := Default()
	cfg.v.Set("health.database", "postgres://app:pa55@db:5432/orders")

	settings := cfg.Redacted()
	health, ok := settings["health"].(map[string]any)
	if !ok {
		t.Fatalf("expected health section, got %T", settings["health"])
	}
	if health["database"] != "postgres://app:xxxxx@db:5432/orders" {
		t.Errorf("database endpoint not redacted: %v", health["database"])
	}
}

func TestEnvKey(t *testing.T) {
	if got := EnvKey("policy.resolution_threshold"); got != "BUILDCHECK_POLICY_RESOLUTION_THRESHOLD" {
		t.Errorf("EnvKey() = %q", got)
	}
}
