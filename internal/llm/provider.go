// Package llm provides the model provider abstraction: a generate call
// wrapped by a token-bucket rate limiter, a per-provider+model circuit
// breaker, and a bounded retry loop, in that order.
package llm

import "context"

// Provider is the contract the rest of the system depends on. A provider
// turns a fully rendered prompt into text. All failures are
// *ProviderError values.
type Provider interface {
	// Generate produces text for the prompt, blocking until the response
	// arrives, the per-call budget runs out, or ctx is done.
	Generate(ctx context.Context, prompt string) (string, error)
	// Name identifies the vendor (e.g. "openai").
	Name() string
	// Model identifies the model within the vendor.
	Model() string
}

// InvokeFunc is the vendor-specific core call. It performs exactly one
// request with no retry or admission control of its own.
type InvokeFunc func(ctx context.Context, prompt string) (string, error)
