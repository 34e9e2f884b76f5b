package utils

import (
	"strings"
	"testing"
)

func TestExcerpt(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		maxLen int
		want   string
	}{
		{"short passthrough", `{"error":"model not found"}`, 200, `{"error":"model not found"}`},
		{"whitespace collapsed", "a\n\n  b\tc", 200, "a b c"},
		{"cut with ellipsis", "hello world", 5, "hello..."},
		{"no limit", strings.Repeat("x", 300), 0, strings.Repeat("x", 300)},
		{"empty", "", 10, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Excerpt([]byte(tt.in), tt.maxLen); got != tt.want {
				t.Errorf("Excerpt(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
			}
		})
	}
}
