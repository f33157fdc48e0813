// Package errfmt bounds and sanitizes text received from the agent
// before it is propagated into errors, callbacks, or logs.
package errfmt

import (
	"unicode"
	"unicode/utf8"
)

// MaxLen caps error content to prevent unbounded propagation.
const MaxLen = 4096

// MaxStopReasonLen caps stop reasons (short identifiers like "end_turn").
const MaxStopReasonLen = 64

// Truncate caps s at MaxLen bytes, backtracking to a UTF-8 boundary.
func Truncate(s string) string {
	return truncateUTF8(s, MaxLen)
}

// SanitizeStopReason validates and truncates a raw stopReason string.
// Strings containing control characters come back empty — a stop
// reason is an identifier, not free text.
func SanitizeStopReason(raw string) string {
	for _, r := range raw {
		if unicode.IsControl(r) {
			return ""
		}
	}
	return truncateUTF8(raw, MaxStopReasonLen)
}

func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	end := limit
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	return s[:end]
}
