package util

import "testing"

func TestSanitizeText(t *testing.T) {
	cases := []struct{ in, want string }{
		{"ab\x00cd\x01\x02\n\txy", "abcd\n\txy"},
		{"  plain text  ", "plain text"},
		{"", ""},
	}
	for _, c := range cases {
		if got := SanitizeText(c.in); got != c.want {
			t.Fatalf("SanitizeText(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
