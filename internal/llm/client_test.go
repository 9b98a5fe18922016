package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nishiki-ai/tapestry/internal/circuitbreaker"
	"github.com/nishiki-ai/tapestry/internal/retry"
)

func fastOptions() Options {
	opts := DefaultOptions()
	opts.Retry = retry.Policy{
		MaxAttempts:      3,
		InitialDelay:     time.Millisecond,
		MaxDelay:         5 * time.Millisecond,
		Multiplier:       2.0,
		JitterFactor:     0,
		MaxTotalDuration: time.Second,
	}
	return opts
}

func TestGenerateSuccess(t *testing.T) {
	c := NewClient("mock", "m1", func(ctx context.Context, prompt string) (string, error) {
		return "echo: " + prompt, nil
	}, nil, fastOptions(), zaptest.NewLogger(t))

	out, err := c.Generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "echo: hello", out)
	assert.Equal(t, "mock", c.Name())
	assert.Equal(t, "m1", c.Model())
}

func TestGenerateRetriesTransient(t *testing.T) {
	calls := 0
	c := NewClient("mock", "m1", func(ctx context.Context, prompt string) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("connection reset by peer")
		}
		return "ok", nil
	}, nil, fastOptions(), zaptest.NewLogger(t))

	out, err := c.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, calls)
}

func TestGenerateTerminalNotRetried(t *testing.T) {
	calls := 0
	c := NewClient("mock", "m1", func(ctx context.Context, prompt string) (string, error) {
		calls++
		return "", errors.New("invalid api key")
	}, nil, fastOptions(), zaptest.NewLogger(t))

	_, err := c.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, KindAuthFailed, pe.Kind)
	assert.Equal(t, HintCheckCredentials, pe.Hint)
	assert.Equal(t, "generate", pe.Operation)
	assert.Equal(t, "mock", pe.Provider)
	assert.Equal(t, "m1", pe.Model)
	assert.NotEmpty(t, pe.CorrelationID)
	assert.Equal(t, 1, pe.Attempt)
	assert.Equal(t, 3, pe.MaxAttempts)
}

func TestGenerateExhaustsRetries(t *testing.T) {
	calls := 0
	c := NewClient("mock", "m1", func(ctx context.Context, prompt string) (string, error) {
		calls++
		return "", errors.New("503 service unavailable")
	}, nil, fastOptions(), zaptest.NewLogger(t))

	_, err := c.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, KindUnavailable, pe.Kind)
	assert.True(t, pe.Transient())
}

func TestGenerateFailsFastWhenBreakerOpen(t *testing.T) {
	cbCfg := circuitbreaker.DefaultConfig()
	cbCfg.FailureThreshold = 1
	cbCfg.OpenDuration = time.Minute
	opts := fastOptions()
	opts.Breakers = circuitbreaker.NewRegistry(cbCfg, zaptest.NewLogger(t))

	calls := 0
	c := NewClient("mock", "m1", func(ctx context.Context, prompt string) (string, error) {
		calls++
		return "", errors.New("boom")
	}, nil, opts, zaptest.NewLogger(t))

	_, err := c.Generate(context.Background(), "p")
	require.Error(t, err)
	callsAfterFirst := calls

	// The breaker is open now: the vendor must not be invoked again.
	_, err = c.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.Equal(t, callsAfterFirst, calls)

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, KindUnavailable, pe.Kind)
	assert.True(t, errors.Is(err, circuitbreaker.ErrOpen))
}

func TestGenerateRateLimiterExhaustion(t *testing.T) {
	opts := fastOptions()
	opts.RateCapacity = 1
	opts.RateRefillPerSecond = 0.001
	opts.RateMaxWait = 10 * time.Millisecond

	c := NewClient("mock", "m1", func(ctx context.Context, prompt string) (string, error) {
		return "ok", nil
	}, nil, opts, zaptest.NewLogger(t))

	_, err := c.Generate(context.Background(), "p")
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "p")
	require.Error(t, err)
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, KindRateLimit, pe.Kind)
	assert.Equal(t, HintRetryWithBackoff, pe.Hint)
}

func TestGeneratePreservesVendorRetryAfter(t *testing.T) {
	vendorErr := &ProviderError{
		Kind:       KindRateLimit,
		RetryAfter: 7 * time.Second,
		Err:        errors.New("429 too many requests"),
	}
	opts := fastOptions()
	opts.Retry.MaxAttempts = 1

	c := NewClient("mock", "m1", func(ctx context.Context, prompt string) (string, error) {
		return "", vendorErr
	}, nil, opts, zaptest.NewLogger(t))

	_, err := c.Generate(context.Background(), "p")
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, KindRateLimit, pe.Kind)
	assert.Equal(t, 7*time.Second, pe.RetryAfter)
}
