package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	r := NewExponentialBackoffRetryer(WithMaxRetries(3), WithDelays(time.Millisecond, 5*time.Millisecond), WithoutJitter())

	calls := 0
	err := r.Retry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_GivesUp(t *testing.T) {
	r := NewExponentialBackoffRetryer(WithMaxRetries(2), WithDelays(time.Millisecond, time.Millisecond))
	sentinel := errors.New("still broken")

	calls := 0
	err := r.Retry(context.Background(), func() error {
		calls++
		return sentinel
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestRetry_StopsOnCancel(t *testing.T) {
	r := NewExponentialBackoffRetryer(WithDelays(time.Hour, time.Hour))
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := r.Retry(ctx, func() error {
		calls++
		cancel()
		return errors.New("fail")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestCalculateDelay_Capped(t *testing.T) {
	r := NewExponentialBackoffRetryer(WithDelays(100*time.Millisecond, 300*time.Millisecond), WithoutJitter())
	assert.Equal(t, 100*time.Millisecond, r.calculateDelay(0))
	assert.Equal(t, 200*time.Millisecond, r.calculateDelay(1))
	assert.Equal(t, 300*time.Millisecond, r.calculateDelay(5))
}

func TestRetry_PermanentStopsImmediately(t *testing.T) {
	r := NewExponentialBackoffRetryer(WithMaxRetries(5), WithDelays(time.Millisecond, time.Millisecond))
	conflict := errors.New("conflict")

	calls := 0
	err := r.Retry(context.Background(), func() error {
		calls++
		return Permanent(conflict)
	})

	assert.Same(t, conflict, err)
	assert.Equal(t, 1, calls)
	assert.NoError(t, Permanent(nil))
}
