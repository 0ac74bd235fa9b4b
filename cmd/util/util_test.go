package util

import (
	"strings"
	"testing"
)

func TestWrapString(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"empty", "", ""},
		{"short", "hello world", "hello world"},
		{"collapses whitespace", "  a   b  ", "a b"},
		{"wraps", strings.Repeat("word ", 12), strings.TrimSpace(strings.Repeat("word ", 10)) + "\n" + "word word"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WrapString(tt.text); got != tt.want {
				t.Errorf("WrapString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHashString(t *testing.T) {
	// FNV-1a reference values
	if got := HashString(""); got != 14695981039346656037 {
		t.Errorf("HashString(\"\") = %d, want offset basis", got)
	}
	if got := HashString("a"); got != 0xaf63dc4c8601ec8c {
		t.Errorf("HashString(\"a\") = %#x, want 0xaf63dc4c8601ec8c", got)
	}
	if HashString("node-1") == HashString("node-2") {
		t.Error("HashString() returned the same ID for different replicas")
	}
}
