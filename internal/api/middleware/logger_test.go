package middleware

import (
	"strings"
	"testing"
)

func TestRedactQuery(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"empty", "", ""},
		{"benign params untouched", "page=2&sort=desc", "page=2&sort=desc"},
		{"unparsable dropped", "%zz", "[UNPARSABLE]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := redactQuery(tt.raw); got != tt.want {
				t.Errorf("redactQuery(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestRedactQuery_SensitiveValuesNeverSurvive(t *testing.T) {
	for _, raw := range []string{
		"token=sekrit",
		"API_KEY=sekrit&page=2",
		"signature=sekrit",
		"password=sekrit",
	} {
		got := redactQuery(raw)
		if strings.Contains(got, "sekrit") {
			t.Errorf("redactQuery(%q) = %q, leaked value", raw, got)
		}
		if !strings.Contains(got, "REDACTED") {
			t.Errorf("redactQuery(%q) = %q, missing redaction marker", raw, got)
		}
	}
}
