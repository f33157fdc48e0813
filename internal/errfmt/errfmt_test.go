package errfmt

import (
	"strings"
	"testing"
)

func TestTruncate(t *testing.T) {
	short := "hello"
	if got := Truncate(short); got != short {
		t.Errorf("Truncate(%q) = %q", short, got)
	}

	long := strings.Repeat("a", MaxLen+100)
	if got := Truncate(long); len(got) != MaxLen {
		t.Errorf("len = %d, want %d", len(got), MaxLen)
	}
}

func TestTruncateUTF8Boundary(t *testing.T) {
	// Build a string whose MaxLen byte falls inside a multi-byte rune.
	s := strings.Repeat("a", MaxLen-1) + "世界"
	got := Truncate(s)
	if len(got) > MaxLen {
		t.Fatalf("len = %d, exceeds %d", len(got), MaxLen)
	}
	for _, r := range got {
		if r == '�' {
			t.Fatal("truncation produced a replacement rune")
		}
	}
}

func TestSanitizeStopReason(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"end_turn", "end_turn"},
		{"max_tokens", "max_tokens"},
		{"", ""},
		{"bad\nreason", ""},
		{"bad\x00reason", ""},
		{strings.Repeat("x", 200), strings.Repeat("x", MaxStopReasonLen)},
	}
	for _, tt := range tests {
		if got := SanitizeStopReason(tt.raw); got != tt.want {
			t.Errorf("SanitizeStopReason(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
