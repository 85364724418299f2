package util

import "strings"

// SanitizeText strips bytes that break downstream consumers: NUL (rejected
// by Postgres text columns, common in PDF extraction output) and non-printing
// control characters other than ordinary whitespace.
func SanitizeText(s string) string {
	if s == "" {
		return s
	}
	s = strings.ReplaceAll(s, "\x00", "")

	out := make([]rune, 0, len(s))
	for _, ch := range s {
		switch {
		case ch == '\n' || ch == '\r' || ch == '\t':
			out = append(out, ch)
		case ch < 0x20:
			// dropped
		default:
			out = append(out, ch)
		}
	}
	return strings.TrimSpace(string(out))
}
