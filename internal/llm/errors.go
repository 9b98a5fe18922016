package llm

import (
	"fmt"
	"time"
)

// Kind is the closed set of provider failure categories.
type Kind int

const (
	// KindUnknown is an unclassified failure; treated as terminal.
	KindUnknown Kind = iota
	// KindAuthFailed: missing or invalid credentials. Terminal.
	KindAuthFailed
	// KindRateLimit: provider throttling. Retryable with backoff.
	KindRateLimit
	// KindTimeout: the call or an admission wait timed out. Retryable.
	KindTimeout
	// KindNetwork: connection-level failure. Retryable.
	KindNetwork
	// KindUnavailable: HTTP 5xx or open circuit breaker. Retryable.
	KindUnavailable
	// KindInvalidRequest: 4xx other than rate limit. Terminal.
	KindInvalidRequest
	// KindSizeExceeded: prompt or response exceeds limits. Terminal.
	KindSizeExceeded
)

func (k Kind) String() string {
	switch k {
	case KindAuthFailed:
		return "auth_failed"
	case KindRateLimit:
		return "rate_limit_exceeded"
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network_error"
	case KindUnavailable:
		return "service_unavailable"
	case KindInvalidRequest:
		return "invalid_request"
	case KindSizeExceeded:
		return "size_exceeded"
	default:
		return "unknown"
	}
}

// Transient reports whether the retry loop may re-attempt this kind.
func (k Kind) Transient() bool {
	switch k {
	case KindRateLimit, KindTimeout, KindNetwork, KindUnavailable:
		return true
	default:
		return false
	}
}

// RecoveryHint classifies what the caller should do about a failure.
type RecoveryHint string

const (
	HintRetryWithBackoff   RecoveryHint = "retry_with_backoff"
	HintCheckCredentials   RecoveryHint = "check_credentials"
	HintFixConfiguration   RecoveryHint = "fix_configuration"
	HintUserActionRequired RecoveryHint = "user_action_required"
)

// Hint returns the recovery hint for a failure kind.
func (k Kind) Hint() RecoveryHint {
	switch k {
	case KindAuthFailed:
		return HintCheckCredentials
	case KindInvalidRequest:
		return HintFixConfiguration
	case KindSizeExceeded, KindUnknown:
		return HintUserActionRequired
	default:
		return HintRetryWithBackoff
	}
}

// ProviderError is the single error type surfaced by the provider layer.
// Every instance carries the correlation ID of the outer Generate call and
// enough context to diagnose the failure without the logs.
type ProviderError struct {
	Kind          Kind
	Operation     string
	Provider      string
	Model         string
	CorrelationID string
	Duration      time.Duration
	Attempt       int
	MaxAttempts   int
	RetryAfter    time.Duration // optional provider backoff hint
	Hint          RecoveryHint
	Err           error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: %s %s/%s failed after %s (attempt %d/%d, correlation %s)",
		e.Kind, e.Operation, e.Provider, e.Model,
		e.Duration.Round(time.Millisecond), e.Attempt, e.MaxAttempts, e.CorrelationID)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Transient reports whether the failure kind is retryable.
func (e *ProviderError) Transient() bool { return e.Kind.Transient() }
