package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2,
	}
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(3), func(_ context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransientUntilSuccess(t *testing.T) {
	var calls int
	var retried []int
	cfg := fastRetry(3)
	cfg.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("busy"), 503)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(3), func(_ context.Context) error {
		calls++
		return NewTransientError(errors.New("always"), 500)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentNotRetried(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(3), func(_ context.Context) error {
		calls++
		return NewPermanentError(errors.New("gone"), 404)
	})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelledStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	cfg := fastRetry(5)
	cfg.InitialBackoff = time.Hour
	cfg.MaxBackoff = time.Hour
	cfg.OnRetry = func(int, error) { cancel() }

	err := Do(ctx, cfg, func(_ context.Context) error {
		calls++
		return NewTransientError(errors.New("busy"), 503)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_CustomShouldRetry(t *testing.T) {
	var calls int
	cfg := fastRetry(4)
	cfg.ShouldRetry = func(error) bool { return true }
	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		return errors.New("plain")
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls)
}

func TestDoVal_ReturnsValue(t *testing.T) {
	var calls int
	got, err := DoVal(context.Background(), fastRetry(3), func(_ context.Context) ([]byte, error) {
		calls++
		if calls == 1 {
			return nil, NewTransientError(errors.New("busy"), 429)
		}
		return []byte("ok"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", string(got))
	assert.Equal(t, 2, calls)
}

func TestBackoff(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: time.Second, MaxBackoff: 30 * time.Second, Multiplier: 2}
	assert.Equal(t, time.Second, Backoff(0, cfg))
	assert.Equal(t, 2*time.Second, Backoff(1, cfg))
	assert.Equal(t, 4*time.Second, Backoff(2, cfg))
	assert.Equal(t, 30*time.Second, Backoff(10, cfg))

	cfg.JitterFraction = 0.5
	for i := 0; i < 20; i++ {
		d := Backoff(1, cfg)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 3*time.Second)
	}
}

func TestFromRetryConfig(t *testing.T) {
	cfg := FromRetryConfig(5, 250)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.InitialBackoff)

	def := FromRetryConfig(0, 0)
	assert.Equal(t, DefaultRetryConfig().MaxAttempts, def.MaxAttempts)
	assert.Equal(t, time.Second, def.InitialBackoff)
}

func TestRetryLogger(t *testing.T) {
	fn := RetryLogger("sec_nport", "download")
	assert.NotPanics(t, func() { fn(1, errors.New("busy")) })
}
