package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewRetryPolicy_Defaults(t *testing.T) {
	policy := NewRetryPolicy(RetryConfig{MaxAttempts: -1, BackoffMultiplier: 0.5})
	assert.Equal(t, DefaultRetryConfig(), policy.config)
}

func TestRetryPolicy_NextRetryDelay(t *testing.T) {
	policy := NewRetryPolicy(RetryConfig{
		MaxAttempts:       5,
		InitialDelay:      10 * time.Millisecond,
		MaxDelay:          50 * time.Millisecond,
		BackoffMultiplier: 2,
	})

	assert.Equal(t, 10*time.Millisecond, policy.NextRetryDelay(0))
	assert.Equal(t, 10*time.Millisecond, policy.NextRetryDelay(1))
	assert.Equal(t, 20*time.Millisecond, policy.NextRetryDelay(2))
	assert.Equal(t, 40*time.Millisecond, policy.NextRetryDelay(3))
	assert.Equal(t, 50*time.Millisecond, policy.NextRetryDelay(4), "capped at max delay")
}

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	policy := NewRetryPolicy(RetryConfig{MaxAttempts: 2})
	assert.False(t, policy.ShouldRetry(1, nil))
	assert.True(t, policy.ShouldRetry(1, errors.New("x")))
	assert.False(t, policy.ShouldRetry(2, errors.New("x")))
}

func TestRetryPolicy_Do(t *testing.T) {
	policy := NewRetryPolicy(RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond})

	t.Run("succeeds after failures", func(t *testing.T) {
		calls := 0
		err := policy.Do(context.Background(), func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("returns last error", func(t *testing.T) {
		calls := 0
		err := policy.Do(context.Background(), func(ctx context.Context) error {
			calls++
			return errors.New("down")
		})
		assert.EqualError(t, err, "down")
		assert.Equal(t, 3, calls)
	})

	t.Run("stops when context is done", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		calls := 0
		err := policy.Do(ctx, func(ctx context.Context) error {
			calls++
			return errors.New("down")
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}
