package reliability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsWithoutRetryingOnFirstSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), DefaultRetryConfig(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryRetriesUntilSuccess(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		return errors.New("always fails")
	})
	assert.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryHonorsRetryableErrorsPredicate(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:     5,
		InitialDelay:    time.Millisecond,
		MaxDelay:        time.Millisecond,
		Multiplier:      1,
		RetryableErrors: func(error) bool { return false },
	}
	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		return errors.New("permanent")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls, "a non-retryable error stops after the first attempt")
}

func TestRetryStopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	err := Retry(ctx, cfg, func() error { return errors.New("boom") })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryOperationExecuteRecordsStats(t *testing.T) {
	op := &RetryOperation{
		Name:   "replay",
		Config: RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1},
	}
	calls := 0
	err := op.Execute(context.Background(), func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.True(t, op.Success)
	assert.Equal(t, 2, op.Attempts)

	stats := op.GetStats()
	assert.Equal(t, "replay", stats["name"])
	assert.Equal(t, true, stats["success"])
}

func TestExponentialBackoffGrowsAndCaps(t *testing.T) {
	base := 10 * time.Millisecond
	max := 100 * time.Millisecond

	assert.Equal(t, base, ExponentialBackoff(1, base, max))
	assert.Equal(t, 2*base, ExponentialBackoff(2, base, max))
	assert.Equal(t, 4*base, ExponentialBackoff(3, base, max))
	assert.Equal(t, max, ExponentialBackoff(10, base, max))
}

func TestLinearBackoffGrowsAndCaps(t *testing.T) {
	base := 10 * time.Millisecond
	max := 25 * time.Millisecond

	assert.Equal(t, base, LinearBackoff(1, base, max))
	assert.Equal(t, 2*base, LinearBackoff(2, base, max))
	assert.Equal(t, max, LinearBackoff(5, base, max))
}

func TestFibonacciBackoffGrowsAndCaps(t *testing.T) {
	base := 10 * time.Millisecond
	max := 100 * time.Millisecond

	assert.Equal(t, base, FibonacciBackoff(1, base, max))
	assert.Equal(t, base, FibonacciBackoff(2, base, max))
	assert.Equal(t, 2*base, FibonacciBackoff(3, base, max))
	assert.Equal(t, 3*base, FibonacciBackoff(4, base, max))
	assert.Equal(t, max, FibonacciBackoff(50, base, max))
}

func TestRetryableErrorWrapsAndUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	wrapped := RetryableError{Err: cause}
	assert.ErrorIs(t, wrapped, cause)
	assert.Contains(t, wrapped.Error(), "connection reset")
}

func TestPermanentErrorWrapsAndUnwraps(t *testing.T) {
	cause := errors.New("invalid state transition")
	wrapped := PermanentError{Err: cause}
	assert.ErrorIs(t, wrapped, cause)
	assert.Contains(t, wrapped.Error(), "invalid state transition")
}

func TestIsRetryableClassifiesKnownCases(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(RetryableError{Err: errors.New("x")}))
	assert.False(t, IsRetryable(PermanentError{Err: errors.New("x")}))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(context.DeadlineExceeded))
	assert.True(t, IsRetryable(errors.New("some other error")))
}
