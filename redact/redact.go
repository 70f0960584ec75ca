package redact

import (
	"strings"
)

// String masks the middle of a sensitive value for logging, keeping roughly
// a quarter of it visible at each end. Output length matches input length so
// truncation issues stay diagnosable.
func String(s string) string {
	keep := len(s) / 4

	return s[:keep] + strings.Repeat("*", len(s)-2*keep) + s[len(s)-keep:]
}
