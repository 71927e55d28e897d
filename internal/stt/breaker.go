package stt

import (
	"github.com/superbloom-tech/ai-voice-keyboard-sub000/internal/observability"
	"github.com/superbloom-tech/ai-voice-keyboard-sub000/internal/resilience"
)

// callWithBreaker runs fn through cb and keeps the breaker metrics current.
// A nil breaker just runs fn.
func callWithBreaker(cb *resilience.CircuitBreaker, fn func() error) error {
	if cb == nil {
		return fn()
	}

	err := cb.Call(fn)

	observability.UpdateCircuitBreakerState(cb.Name(), int(cb.GetState()))
	if err != nil {
		observability.IncrementCircuitBreakerFailures(cb.Name())
	}
	return err
}
