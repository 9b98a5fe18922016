// Package retry implements the bounded exponential-backoff-with-jitter loop
// used by the provider layer. Only errors the caller classifies as
// transient are retried; everything else surfaces immediately.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Policy configures the retry loop.
type Policy struct {
	MaxAttempts      int
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	Multiplier       float64
	JitterFactor     float64
	MaxTotalDuration time.Duration
}

// DefaultPolicy returns the provider-layer defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:      4,
		InitialDelay:     250 * time.Millisecond,
		MaxDelay:         10 * time.Second,
		Multiplier:       2.0,
		JitterFactor:     0.2,
		MaxTotalDuration: 60 * time.Second,
	}
}

// Do runs fn until it succeeds, returns a non-transient error, or the
// attempt/time budget runs out. fn receives the 1-based attempt number.
// The last error and the number of attempts made are returned.
func (p Policy) Do(ctx context.Context, logger *zap.Logger, transient func(error) bool, fn func(attempt int) error) (int, error) {
	attempts := 0

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialDelay
	eb.MaxInterval = p.MaxDelay
	eb.Multiplier = p.Multiplier
	eb.RandomizationFactor = p.JitterFactor
	eb.MaxElapsedTime = p.MaxTotalDuration
	eb.Reset()

	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var b backoff.BackOff = backoff.WithContext(eb, ctx)
	b = backoff.WithMaxRetries(b, uint64(maxAttempts-1))

	op := func() error {
		attempts++
		err := fn(attempts)
		if err == nil {
			return nil
		}
		if !transient(err) {
			return backoff.Permanent(err)
		}
		if logger != nil {
			logger.Warn("Transient failure, will retry",
				zap.Int("attempt", attempts),
				zap.Int("max_attempts", maxAttempts),
				zap.Error(err),
			)
		}
		return err
	}

	err := backoff.Retry(op, b)
	if perm, ok := err.(*backoff.PermanentError); ok {
		err = perm.Err
	}
	return attempts, err
}
