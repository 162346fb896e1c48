package router

import (
	"sync"
	"time"
)

const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half-open"

	DefaultFailureLimit = 5
	DefaultCooldown     = 30 * time.Second
)

// CircuitBreaker tracks consecutive dispatch failures per protocol. After
// failureLimit failures the protocol is refused until the cooldown elapses,
// then a single probe is let through.
type CircuitBreaker struct {
	mu           sync.Mutex
	states       map[string]*breakerState
	failureLimit int
	cooldown     time.Duration
	now          func() time.Time
}

type breakerState struct {
	protocol string
	state    string
	failures int
	openedAt time.Time
	probing  bool
}

func NewCircuitBreaker(failureLimit int, cooldown time.Duration) *CircuitBreaker {
	if failureLimit <= 0 {
		failureLimit = DefaultFailureLimit
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &CircuitBreaker{
		states:       make(map[string]*breakerState),
		failureLimit: failureLimit,
		cooldown:     cooldown,
		now:          time.Now,
	}
}

func (cb *CircuitBreaker) Allow(protocol string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state := cb.getOrCreateState(protocol)

	switch state.state {
	case StateOpen:
		if cb.now().Sub(state.openedAt) < cb.cooldown {
			return ErrCircuitBreakerOpen
		}
		cb.setState(state, StateHalfOpen)
		state.probing = true
		return nil
	case StateHalfOpen:
		if state.probing {
			return ErrCircuitBreakerOpen
		}
		state.probing = true
		return nil
	}
	return nil
}

func (cb *CircuitBreaker) RecordSuccess(protocol string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state := cb.getOrCreateState(protocol)
	state.failures = 0
	state.probing = false
	cb.setState(state, StateClosed)
}

func (cb *CircuitBreaker) RecordFailure(protocol string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state := cb.getOrCreateState(protocol)
	state.failures++
	state.probing = false

	if state.state == StateHalfOpen || state.failures >= cb.failureLimit {
		state.openedAt = cb.now()
		cb.setState(state, StateOpen)
	}
}

// Release clears a probe slot when the attempt ended before reaching the
// counterparty.
func (cb *CircuitBreaker) Release(protocol string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if state, ok := cb.states[protocol]; ok {
		state.probing = false
	}
}

func (cb *CircuitBreaker) GetState(protocol string) string {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state, ok := cb.states[protocol]
	if !ok {
		return StateClosed
	}
	return state.state
}

func (cb *CircuitBreaker) getOrCreateState(protocol string) *breakerState {
	state, ok := cb.states[protocol]
	if !ok {
		state = &breakerState{
			protocol: protocol,
			state:    StateClosed,
		}
		cb.states[protocol] = state
	}
	return state
}

func (cb *CircuitBreaker) setState(state *breakerState, next string) {
	state.state = next
	var v float64
	switch next {
	case StateOpen:
		v = 1
	case StateHalfOpen:
		v = 2
	}
	CircuitBreakerMetric.WithLabelValues(state.protocol).Set(v)
}
