package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDoSucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), Options{Attempts: 3, Timeout: time.Second}, func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, got)
	require.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), Options{Attempts: 5, Timeout: time.Second}, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", got)
	require.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), Options{Attempts: 3, Timeout: time.Second}, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("always fails")
	})
	require.Error(t, err)
	require.Equal(t, 3, calls)
}

func TestDoAbortsOnParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := Do(ctx, Options{Attempts: 5, Timeout: time.Second}, func(attemptCtx context.Context) (int, error) {
		calls++
		return 0, errors.New("transient")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestDoInvokesOnRetryCallback(t *testing.T) {
	retries := 0
	_, err := Do(context.Background(), Options{
		Attempts: 3,
		Timeout:  time.Second,
		OnRetry:  func(attempt, attempts int, err error) { retries++ },
	}, func(ctx context.Context) (int, error) {
		return 0, errors.New("fails")
	})
	require.Error(t, err)
	require.Equal(t, 3, retries)
}
