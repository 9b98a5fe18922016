package llm

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nishiki-ai/tapestry/internal/circuitbreaker"
	"github.com/nishiki-ai/tapestry/internal/metrics"
	"github.com/nishiki-ai/tapestry/internal/ratelimit"
	"github.com/nishiki-ai/tapestry/internal/retry"
)

const generateOp = "generate"

// Options configures the resilience wrappers around a client.
type Options struct {
	RateCapacity        int           // token-bucket burst (default 20)
	RateRefillPerSecond float64       // tokens per second (default 10)
	RateMaxWait         time.Duration // blocking acquire bound (default 30s)
	Retry               retry.Policy
	Breakers            *circuitbreaker.Registry // shared across clients; created if nil
}

// DefaultOptions returns the provider-layer defaults.
func DefaultOptions() Options {
	return Options{
		RateCapacity:        20,
		RateRefillPerSecond: 10,
		RateMaxWait:         30 * time.Second,
		Retry:               retry.DefaultPolicy(),
	}
}

// Client is a Provider composed from a vendor InvokeFunc plus orthogonal
// wrappers. One Client instance owns one rate limiter; circuit breakers
// are keyed per provider:model and may be shared across clients.
type Client struct {
	name     string
	model    string
	invoke   InvokeFunc
	classify Classifier
	limiter  *ratelimit.Limiter
	breakers *circuitbreaker.Registry
	policy   retry.Policy
	logger   *zap.Logger
}

// NewClient builds a resilient provider around a vendor invoke function.
// classify may be nil, in which case the shared message heuristics apply.
func NewClient(name, model string, invoke InvokeFunc, classify Classifier, opts Options, logger *zap.Logger) *Client {
	if opts.RateCapacity <= 0 {
		opts.RateCapacity = 20
	}
	if opts.RateRefillPerSecond <= 0 {
		opts.RateRefillPerSecond = 10
	}
	if opts.RateMaxWait <= 0 {
		opts.RateMaxWait = 30 * time.Second
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultPolicy()
	}
	if opts.Breakers == nil {
		opts.Breakers = circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig(), logger)
	}
	if classify == nil {
		classify = ClassifyMessage
	}
	return &Client{
		name:     name,
		model:    model,
		invoke:   invoke,
		classify: classify,
		limiter:  ratelimit.New(opts.RateCapacity, opts.RateRefillPerSecond, opts.RateMaxWait),
		breakers: opts.Breakers,
		policy:   opts.Retry,
		logger:   logger,
	}
}

func (c *Client) Name() string  { return c.name }
func (c *Client) Model() string { return c.model }

// Generate runs the wrapped call chain: rate limiter, circuit breaker,
// retry loop, vendor invoke. Every failure is a *ProviderError carrying
// the correlation ID minted for this call.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	correlationID := uuid.NewString()
	start := time.Now()
	metrics.ProviderCalls.WithLabelValues(c.name, c.model).Inc()

	if err := c.limiter.Acquire(ctx); err != nil {
		if errors.Is(err, ratelimit.ErrExhausted) {
			metrics.ProviderFailures.WithLabelValues(c.name, c.model, KindRateLimit.String()).Inc()
			return "", c.wrap(KindRateLimit, correlationID, start, 0, err)
		}
		// Caller cancelled while waiting for admission.
		return "", c.wrap(KindTimeout, correlationID, start, 0, err)
	}

	breaker := c.breakers.Get(c.name + ":" + c.model)

	var output string
	attempts := 0
	breakerErr := breaker.Execute(ctx, func() error {
		var lastErr error
		attempts, lastErr = c.policy.Do(ctx, c.logger,
			func(err error) bool { return c.classifyError(err).Transient() },
			func(attempt int) error {
				if attempt > 1 {
					metrics.ProviderRetries.WithLabelValues(c.name, c.model).Inc()
				}
				// Cooperative cancellation point between admission and the
				// network call.
				if err := ctx.Err(); err != nil {
					return err
				}
				out, err := c.invoke(ctx, prompt)
				if err != nil {
					return err
				}
				output = out
				return nil
			})
		return lastErr
	})

	if breakerErr != nil {
		kind := c.classifyError(breakerErr)
		if errors.Is(breakerErr, circuitbreaker.ErrOpen) || errors.Is(breakerErr, circuitbreaker.ErrTooManyProbes) {
			kind = KindUnavailable
		}
		metrics.ProviderFailures.WithLabelValues(c.name, c.model, kind.String()).Inc()
		c.logger.Warn("Provider call failed",
			zap.String("provider", c.name),
			zap.String("model", c.model),
			zap.String("kind", kind.String()),
			zap.String("correlation_id", correlationID),
			zap.Int("attempts", attempts),
			zap.Error(breakerErr),
		)
		return "", c.wrap(kind, correlationID, start, attempts, breakerErr)
	}

	metrics.ProviderCallDuration.WithLabelValues(c.name, c.model).Observe(time.Since(start).Seconds())
	return output, nil
}

// classifyError resolves the failure kind, preferring structured
// information already attached to the error chain.
func (c *Client) classifyError(err error) Kind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return c.classify(err)
}

func (c *Client) wrap(kind Kind, correlationID string, start time.Time, attempts int, err error) *ProviderError {
	pe := &ProviderError{
		Kind:          kind,
		Operation:     generateOp,
		Provider:      c.name,
		Model:         c.model,
		CorrelationID: correlationID,
		Duration:      time.Since(start),
		Attempt:       attempts,
		MaxAttempts:   c.policy.MaxAttempts,
		Hint:          kind.Hint(),
		Err:           err,
	}
	// Preserve a vendor backoff hint when the adapter supplied one.
	var inner *ProviderError
	if errors.As(err, &inner) && inner.RetryAfter > 0 {
		pe.RetryAfter = inner.RetryAfter
	}
	return pe
}
