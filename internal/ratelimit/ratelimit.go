// Package ratelimit provides the token-bucket admission controller used in
// front of every model provider call.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

// ErrExhausted is returned when a token could not be acquired within the
// limiter's maximum wait.
var ErrExhausted = errors.New("rate limiter: no token within max wait")

// Limiter is a token bucket with a bounded blocking acquire.
type Limiter struct {
	bucket  *rate.Limiter
	maxWait time.Duration
}

// New creates a limiter with the given burst capacity and refill rate
// (tokens per second). Acquire blocks for at most maxWait.
func New(capacity int, refillPerSecond float64, maxWait time.Duration) *Limiter {
	return &Limiter{
		bucket:  rate.NewLimiter(rate.Limit(refillPerSecond), capacity),
		maxWait: maxWait,
	}
}

// Acquire blocks until a token is available, the max wait elapses, or ctx
// is done. It returns ErrExhausted when the wait budget ran out and the
// context error when the caller was cancelled.
func (l *Limiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	if err := l.bucket.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrExhausted
	}
	return nil
}

// Tokens reports the tokens currently available, for observability.
func (l *Limiter) Tokens() float64 {
	return l.bucket.Tokens()
}
