package providers

import (
	"errors"
	"testing"
)

func TestClassifyError(t *testing.T) {
	cases := map[string]ErrorType{
		"insufficient_quota":          ErrorQuota,
		"429 rate":                    ErrorRate,
		"context too long":            ErrorContext,
		"timeout":                     ErrorTransient,
		"service unavailable (503)":   ErrorTransient,
		"bad request":                 ErrorPermanent,
		"model not found":             ErrorPermanent,
	}
	for msg, want := range cases {
		if got := ClassifyError(errors.New(msg)); got != want {
			t.Fatalf("classify %q: got %s want %s", msg, got, want)
		}
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(errors.New("429 rate limited")) {
		t.Fatalf("rate limit should be retryable")
	}
	if Retryable(errors.New("insufficient_quota")) {
		t.Fatalf("quota exhaustion should not be retryable")
	}
	if Retryable(nil) {
		t.Fatalf("nil error should not be retryable")
	}
}
