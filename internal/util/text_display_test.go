package util

import (
	"strings"
	"testing"
)

func TestDisplaySnippetSanitizesAndTruncates(t *testing.T) {
	in := "Refund\x00   window \n\t details " + strings.Repeat("x", 500)
	out := DisplaySnippet(in, 40)
	if out == "" {
		t.Fatalf("expected non-empty snippet")
	}
	if !strings.HasSuffix(out, "...") {
		t.Fatalf("expected truncation marker, got: %q", out)
	}
	if strings.ContainsRune(out, '\x00') {
		t.Fatalf("control characters must be stripped")
	}
}

func TestDisplayEvidenceSnippetPrefersMatchingSentence(t *testing.T) {
	chunk := "Standard returns are accepted within thirty days. Refunds are issued to the original payment method within five business days. Gift wrapping is available in December."
	q := "How long do refunds take to process?"
	out := DisplayEvidenceSnippet(chunk, q, 200)
	if !strings.Contains(strings.ToLower(out), "refunds") {
		t.Fatalf("expected refund sentence in snippet, got: %q", out)
	}
}

func TestDisplayEvidenceSnippetEmptyChunk(t *testing.T) {
	if out := DisplayEvidenceSnippet("", "anything", 100); out != "" {
		t.Fatalf("expected empty snippet, got: %q", out)
	}
}
