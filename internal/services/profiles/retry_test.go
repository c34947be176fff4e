package profiles

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"titan/internal/api"
)

func always(error) bool { return true }

func TestRetryWithBackoff(t *testing.T) {
	ctx := context.Background()

	t.Run("Should succeed on first attempt", func(t *testing.T) {
		attemptCount := 0
		err := retryWithBackoff(ctx, func() error {
			attemptCount++
			return nil
		}, 3, time.Millisecond, always)

		assert.NoError(t, err)
		assert.Equal(t, 1, attemptCount)
	})

	t.Run("Should retry up to maxAttempts times", func(t *testing.T) {
		attemptCount := 0
		err := retryWithBackoff(ctx, func() error {
			attemptCount++
			return errors.New("temporary error")
		}, 3, time.Millisecond, always)

		assert.Error(t, err)
		assert.Equal(t, 3, attemptCount)
		assert.Contains(t, err.Error(), "failed after 3 attempts")
	})

	t.Run("Should succeed on second attempt", func(t *testing.T) {
		attemptCount := 0
		err := retryWithBackoff(ctx, func() error {
			attemptCount++
			if attemptCount < 2 {
				return errors.New("temporary error")
			}
			return nil
		}, 3, time.Millisecond, always)

		assert.NoError(t, err)
		assert.Equal(t, 2, attemptCount)
	})

	t.Run("Should stop on errors that are not retryable", func(t *testing.T) {
		attemptCount := 0
		permanent := &api.Error{Kind: api.ErrStatus, StatusCode: 404}
		err := retryWithBackoff(ctx, func() error {
			attemptCount++
			return permanent
		}, 3, time.Millisecond, transient)

		assert.Same(t, permanent, err)
		assert.Equal(t, 1, attemptCount)
	})

	t.Run("Should apply growing backoff delays", func(t *testing.T) {
		var attemptTimes []time.Time
		err := retryWithBackoff(ctx, func() error {
			attemptTimes = append(attemptTimes, time.Now())
			if len(attemptTimes) < 3 {
				return errors.New("temporary error")
			}
			return nil
		}, 3, 20*time.Millisecond, always)

		assert.NoError(t, err)
		assert.Len(t, attemptTimes, 3)
		assert.GreaterOrEqual(t, attemptTimes[1].Sub(attemptTimes[0]), 20*time.Millisecond)
		assert.GreaterOrEqual(t, attemptTimes[2].Sub(attemptTimes[1]), 80*time.Millisecond)
	})

	t.Run("Should abort the wait when the context ends", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		attemptCount := 0
		err := retryWithBackoff(cctx, func() error {
			attemptCount++
			cancel()
			return errors.New("temporary error")
		}, 3, time.Hour, always)

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, attemptCount)
	})
}

func TestTransient(t *testing.T) {
	assert.True(t, transient(&api.Error{Kind: api.ErrTransport}))
	assert.False(t, transient(&api.Error{Kind: api.ErrStatus}))
	assert.False(t, transient(errors.New("other")))
}
