package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/workflowrt/internal/dispatcher"
)

func TestShouldRetry(t *testing.T) {
	t.Run("nil error never retries", func(t *testing.T) {
		rp := DefaultRetryPolicy()
		assert.False(t, rp.ShouldRetry(nil))
	})

	t.Run("no patterns retries everything", func(t *testing.T) {
		rp := DefaultRetryPolicy()
		assert.True(t, rp.ShouldRetry(errors.New("anything")))
	})

	t.Run("pattern match required when configured", func(t *testing.T) {
		rp := &RetryPolicy{RetryableErrors: []string{"connection refused"}}
		assert.True(t, rp.ShouldRetry(errors.New("dial tcp: connection refused")))
		assert.False(t, rp.ShouldRetry(errors.New("bad request")))
	})

	t.Run("predicate takes precedence over patterns", func(t *testing.T) {
		rp := &RetryPolicy{
			RetryableErrors: []string{"never matches"},
			RetryIf:         dispatcher.IsTransient,
		}
		assert.True(t, rp.ShouldRetry(dispatcher.NewTransient("APICall", errors.New("status 503"))))
		assert.False(t, rp.ShouldRetry(dispatcher.NewPermanent("APICall", errors.New("status 404"))))
		// A permanent error whose message happens to contain the word
		// Transient still must not be retried.
		assert.False(t, rp.ShouldRetry(dispatcher.NewPermanent("APICall", errors.New("upstream said (Transient)"))))
	})
}

func TestGetDelay(t *testing.T) {
	tests := []struct {
		name     string
		strategy BackoffStrategy
		attempt  int
		want     time.Duration
	}{
		{"zero attempt", BackoffConstant, 0, 0},
		{"constant", BackoffConstant, 3, time.Second},
		{"linear", BackoffLinear, 3, 3 * time.Second},
		{"exponential first", BackoffExponential, 1, time.Second},
		{"exponential third", BackoffExponential, 3, 4 * time.Second},
		{"unknown strategy falls back", BackoffStrategy("??"), 2, time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rp := &RetryPolicy{
				InitialDelay:    time.Second,
				MaxDelay:        time.Minute,
				BackoffStrategy: tt.strategy,
			}
			assert.Equal(t, tt.want, rp.GetDelay(tt.attempt))
		})
	}

	t.Run("capped at MaxDelay", func(t *testing.T) {
		rp := &RetryPolicy{
			InitialDelay:    time.Second,
			MaxDelay:        5 * time.Second,
			BackoffStrategy: BackoffExponential,
		}
		assert.Equal(t, 5*time.Second, rp.GetDelay(10))
	})
}

func TestExecute_SucceedsFirstAttempt(t *testing.T) {
	rp := &RetryPolicy{MaxAttempts: 3, BackoffStrategy: BackoffConstant}

	calls := 0
	err := rp.Execute(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestExecute_RetriesUntilSuccess(t *testing.T) {
	rp := &RetryPolicy{
		MaxAttempts:     3,
		InitialDelay:    time.Millisecond,
		MaxDelay:        time.Millisecond,
		BackoffStrategy: BackoffConstant,
	}

	calls := 0
	err := rp.Execute(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient hiccup")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExecute_ExhaustsAttempts(t *testing.T) {
	rp := &RetryPolicy{
		MaxAttempts:     2,
		InitialDelay:    time.Millisecond,
		MaxDelay:        time.Millisecond,
		BackoffStrategy: BackoffConstant,
	}

	calls := 0
	err := rp.Execute(context.Background(), func() error {
		calls++
		return fmt.Errorf("attempt %d failed", calls)
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Contains(t, err.Error(), "all retry attempts failed")
}

func TestExecute_StopsOnNonRetryable(t *testing.T) {
	rp := &RetryPolicy{
		MaxAttempts: 5,
		RetryIf:     dispatcher.IsTransient,
	}

	calls := 0
	err := rp.Execute(context.Background(), func() error {
		calls++
		return dispatcher.NewPermanent("DataMapper", errors.New("bad config"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "permanent failures must not be retried")
}

func TestExecute_OnRetryCallback(t *testing.T) {
	var seen []int
	rp := &RetryPolicy{
		MaxAttempts:     3,
		InitialDelay:    time.Millisecond,
		MaxDelay:        time.Millisecond,
		BackoffStrategy: BackoffConstant,
		OnRetry:         func(attempt int, err error) { seen = append(seen, attempt) },
	}

	_ = rp.Execute(context.Background(), func() error { return errors.New("boom") })
	assert.Equal(t, []int{1, 2}, seen)
}

func TestExecute_CancelledContext(t *testing.T) {
	rp := DefaultRetryPolicy()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := rp.Execute(ctx, func() error { return errors.New("never reached") })
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecute_CancelledDuringBackoff(t *testing.T) {
	rp := &RetryPolicy{
		MaxAttempts:     3,
		InitialDelay:    time.Minute,
		MaxDelay:        time.Minute,
		BackoffStrategy: BackoffConstant,
	}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		// Let the first attempt fail, then cancel while Execute sleeps.
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := rp.Execute(ctx, func() error {
		calls++
		return errors.New("fail into backoff")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, IsRetryableError(nil))
	assert.False(t, IsRetryableError(context.Canceled))
	assert.False(t, IsRetryableError(context.DeadlineExceeded))
	assert.True(t, IsRetryableError(errors.New("connection reset")))
	assert.True(t, IsRetryableError(&fakeNetError{temporary: true}))
	assert.False(t, IsRetryableError(&fakeNetError{temporary: false}))
}

type fakeNetError struct{ temporary bool }

func (e *fakeNetError) Error() string   { return "fake net error" }
func (e *fakeNetError) Temporary() bool { return e.temporary }
