package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffRetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	b := Backoff{Attempts: 3, Initial: time.Millisecond}
	err := b.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("429 rate limited")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestBackoffStopsOnPermanentError(t *testing.T) {
	calls := 0
	b := Backoff{Attempts: 5, Initial: time.Millisecond}
	err := b.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("invalid api key")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestBackoffExhaustsAttempts(t *testing.T) {
	calls := 0
	b := Backoff{Attempts: 2, Initial: time.Millisecond}
	err := b.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("timeout")
	})
	require.Error(t, err)
	require.Equal(t, 2, calls)
}

func TestBackoffHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := Backoff{Attempts: 3, Initial: time.Minute}
	err := b.Do(ctx, func(context.Context) error {
		return errors.New("timeout")
	})
	require.ErrorIs(t, err, context.Canceled)
}
