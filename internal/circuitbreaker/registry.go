package circuitbreaker

import (
	"sync"

	"go.uber.org/zap"
)

// Registry hands out one breaker per key, creating them lazily from a
// shared config. The provider layer keys breakers as "provider:model" so
// a misbehaving model does not trip unrelated ones.
type Registry struct {
	config Config
	logger *zap.Logger

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewRegistry creates an empty registry.
func NewRegistry(config Config, logger *zap.Logger) *Registry {
	return &Registry{
		config:   config,
		logger:   logger,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Get returns the breaker for key, creating it on first use.
func (r *Registry) Get(key string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.breakers[key]
	if !ok {
		cb = New(key, r.config, r.logger)
		r.breakers[key] = cb
	}
	return cb
}

// States returns a snapshot of every breaker's state, for observability.
func (r *Registry) States() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]State, len(r.breakers))
	for key, cb := range r.breakers {
		out[key] = cb.State()
	}
	return out
}
