package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     1.5,
		JitterFraction: 0,
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetryConfig(3), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(eris.New("launch race"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := eris.New("binary not found")
	err := Do(context.Background(), fastRetryConfig(5), func(ctx context.Context) error {
		calls++
		return permanent
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetryConfig(3), func(ctx context.Context) error {
		calls++
		return NewTransientError(eris.New("still failing"))
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ContextCancellationStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, fastRetryConfig(10), func(ctx context.Context) error {
		calls++
		cancel()
		return NewTransientError(eris.New("boom"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_ReturnsValue(t *testing.T) {
	calls := 0
	val, err := DoVal(context.Background(), fastRetryConfig(3), func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", NewTransientError(eris.New("not yet"))
		}
		return "session-1", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "session-1", val)
}

func TestDoVal_CustomShouldRetry(t *testing.T) {
	cfg := fastRetryConfig(3)
	cfg.ShouldRetry = func(err error) bool { return true }

	calls := 0
	_, err := DoVal(context.Background(), cfg, func(ctx context.Context) (int, error) {
		calls++
		return 0, eris.New("always retried")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(eris.New("no such video")))
	assert.True(t, IsTransient(NewTransientError(eris.New("x"))))
	assert.True(t, IsTransient(eris.Wrap(NewTransientError(eris.New("x")), "outer")))
	assert.True(t, IsTransient(eris.New("read tcp: connection reset by peer")))
	assert.True(t, IsTransient(eris.New("websocket: close 1006")))
}

func TestComputeBackoff_IsCapped(t *testing.T) {
	cfg := applyDefaults(RetryConfig{
		InitialBackoff: time.Second,
		MaxBackoff:     2 * time.Second,
		Multiplier:     10,
		JitterFraction: 0,
	})
	assert.LessOrEqual(t, computeBackoff(5, cfg), 2*time.Second)
}
