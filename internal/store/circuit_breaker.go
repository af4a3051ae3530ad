package store

import (
	"context"
	"errors"
	"sync"
	"time"
)

type CircuitBreakerState int

const (
	CircuitBreakerClosed CircuitBreakerState = iota
	CircuitBreakerOpen
	CircuitBreakerHalfOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case CircuitBreakerOpen:
		return "open"
	case CircuitBreakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

type CircuitBreakerConfig struct {
	MaxFailures      int           `json:"max_failures"`
	Timeout          time.Duration `json:"timeout"`
	HalfOpenMaxCalls int           `json:"half_open_max_calls"`
}

func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		MaxFailures:      5,
		Timeout:          30 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

// CircuitBreaker fails calls fast after MaxFailures consecutive failures and
// lets probes through again once Timeout has elapsed. It never retries.
type CircuitBreaker struct {
	mu              sync.Mutex
	state           CircuitBreakerState
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	now             func() time.Time

	maxFailures      int
	timeout          time.Duration
	halfOpenMaxCalls int
}

func NewCircuitBreaker(config *CircuitBreakerConfig) *CircuitBreaker {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}

	return &CircuitBreaker{
		state:            CircuitBreakerClosed,
		now:              time.Now,
		maxFailures:      config.MaxFailures,
		timeout:          config.Timeout,
		halfOpenMaxCalls: config.HalfOpenMaxCalls,
	}
}

// Execute runs fn unless the circuit is open. Errors for which ignore returns
// true count as successes.
func (cb *CircuitBreaker) Execute(fn func() error, ignore ...func(error) bool) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}

	err := fn()
	if err != nil && !ignored(err, ignore) {
		cb.recordFailure()
		return err
	}

	cb.recordSuccess()
	return err
}

func ignored(err error, preds []func(error) bool) bool {
	for _, pred := range preds {
		if pred(err) {
			return true
		}
	}
	return false
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitBreakerClosed:
		return true
	case CircuitBreakerOpen:
		if cb.now().Sub(cb.lastFailureTime) >= cb.timeout {
			cb.state = CircuitBreakerHalfOpen
			cb.successCount = 0
			return true
		}
		return false
	case CircuitBreakerHalfOpen:
		return cb.successCount < cb.halfOpenMaxCalls
	default:
		return false
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.lastFailureTime = cb.now()

	switch cb.state {
	case CircuitBreakerClosed:
		if cb.failureCount >= cb.maxFailures {
			cb.state = CircuitBreakerOpen
		}
	case CircuitBreakerHalfOpen:
		cb.state = CircuitBreakerOpen
		cb.successCount = 0
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitBreakerClosed:
		cb.failureCount = 0
	case CircuitBreakerHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.halfOpenMaxCalls {
			cb.state = CircuitBreakerClosed
			cb.failureCount = 0
			cb.successCount = 0
		}
	}
}

func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) GetStats() map[string]interface{} {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return map[string]interface{}{
		"state":           cb.state.String(),
		"failure_count":   cb.failureCount,
		"success_count":   cb.successCount,
		"last_failure":    cb.lastFailureTime.Unix(),
		"max_failures":    cb.maxFailures,
		"timeout_seconds": cb.timeout.Seconds(),
	}
}

// BreakerBackend guards another Backend with a CircuitBreaker. A missing key
// is a normal answer and does not count against the backend.
type BreakerBackend struct {
	Backend
	breaker *CircuitBreaker
}

func NewBreakerBackend(inner Backend, config *CircuitBreakerConfig) *BreakerBackend {
	return &BreakerBackend{Backend: inner, breaker: NewCircuitBreaker(config)}
}

func (b *BreakerBackend) Breaker() *CircuitBreaker {
	return b.breaker
}

func (b *BreakerBackend) Load(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := b.breaker.Execute(func() error {
		var err error
		data, err = b.Backend.Load(ctx, key)
		return err
	}, isNotFound)
	return data, err
}

func (b *BreakerBackend) Save(ctx context.Context, key string, data []byte) error {
	return b.breaker.Execute(func() error {
		return b.Backend.Save(ctx, key, data)
	})
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
