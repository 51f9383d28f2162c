package utils

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// CircuitState represents the state of the circuit breaker
type CircuitState string

const (
	// StateClosed allows calls to pass through
	StateClosed CircuitState = "closed"
	// StateOpen rejects calls until the reset timeout elapses
	StateOpen CircuitState = "open"
	// StateHalfOpen lets a single probe through to test recovery
	StateHalfOpen CircuitState = "half-open"
)

var (
	// ErrCircuitOpen is returned when circuit breaker is open
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned when a probe is already in flight
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// CircuitBreaker guards a downstream dependency such as Kafka or the owner webhook
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	log          logrus.FieldLogger
	now          func() time.Time

	mutex       sync.Mutex
	state       CircuitState
	failures    int
	lastFailure time.Time
	probing     bool
}

// CircuitStats is a snapshot of the breaker for health endpoints
type CircuitStats struct {
	Name     string       `json:"name"`
	State    CircuitState `json:"state"`
	Failures int          `json:"failures"`
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(name string, maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:         name,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		log:          logrus.WithField("circuit", name),
		now:          time.Now,
		state:        StateClosed,
	}
}

// Call executes fn with circuit breaker protection
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.before(); err != nil {
		return err
	}

	err := fn()

	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	if err != nil {
		cb.onFailure()
		return err
	}
	cb.onSuccess()
	return nil
}

func (cb *CircuitBreaker) before() error {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.lastFailure) < cb.resetTimeout {
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
	}

	if cb.state == StateHalfOpen {
		if cb.probing {
			return ErrTooManyRequests
		}
		cb.probing = true
	}
	return nil
}

func (cb *CircuitBreaker) onFailure() {
	cb.failures++
	cb.lastFailure = cb.now()

	switch {
	case cb.state == StateHalfOpen:
		cb.probing = false
		cb.transition(StateOpen)
	case cb.failures >= cb.maxFailures && cb.state == StateClosed:
		cb.transition(StateOpen)
	}
}

func (cb *CircuitBreaker) onSuccess() {
	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.probing = false
		cb.transition(StateClosed)
	}
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	if cb.state == to {
		return
	}
	cb.log.WithFields(logrus.Fields{
		"from":     cb.state,
		"to":       to,
		"failures": cb.failures,
	}).Warn("Circuit breaker state changed")
	cb.state = to
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

// Stats returns a snapshot of the breaker
func (cb *CircuitBreaker) Stats() CircuitStats {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return CircuitStats{Name: cb.name, State: cb.state, Failures: cb.failures}
}

// Reset resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.transition(StateClosed)
	cb.failures = 0
	cb.probing = false
}
