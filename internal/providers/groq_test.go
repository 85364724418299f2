package providers

import "testing"

func TestNewGroqProviderDefaults(t *testing.T) {
	// Key resolution is environment-dependent; only the defaults are checked.
	p := NewGroqProvider("alias1")
	if p == nil {
		t.Fatal("expected provider instance")
	}
	if p.model == "" {
		t.Fatal("expected a default model")
	}
}
