// Package resilience keeps vendor failures from cascading into interview
// sessions.
//
// [CircuitBreaker] is a three-state breaker (closed → open → half-open)
// around one vendor. [FallbackGroup] chains several vendors of the same kind
// behind per-vendor breakers; [LLMFallback] and [ASRFallback] specialise it
// for the two vendor kinds this server calls.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// refuses calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is a [CircuitBreaker] operating mode.
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects every call with [ErrCircuitOpen] until the reset
	// timeout elapses.
	StateOpen

	// StateHalfOpen admits a bounded number of probe calls; their outcomes
	// decide between closing and re-opening.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Defaults sized for the calls this server shields: seconds-long vendor
// dials and completions, where a short failure streak almost always means
// quota exhaustion or an outage rather than a blip.
const (
	defaultMaxFailures  = 3
	defaultResetTimeout = 30 * time.Second
	defaultHalfOpenMax  = 2
)

// CircuitBreakerConfig tunes one [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels the breaker in log lines, usually the vendor name.
	Name string

	// MaxFailures is the consecutive-failure streak that trips the breaker.
	// Default 3.
	MaxFailures int

	// ResetTimeout is how long a tripped breaker rejects calls before
	// probing again. Default 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the probe budget of the half-open state. Default 2.
	HalfOpenMax int
}

// CircuitBreaker guards one vendor. The zero value is not usable; construct
// with [NewCircuitBreaker].
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int

	mu            sync.Mutex
	state         State
	failStreak    int
	lastFailureAt time.Time
	probesSent    int
	probesFailed  int
}

// NewCircuitBreaker creates a breaker, substituting defaults for zero config
// fields.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = defaultMaxFailures
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = defaultResetTimeout
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = defaultHalfOpenMax
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		state:        StateClosed,
	}
}

// Execute runs fn when the breaker admits the call and feeds the outcome
// back into the state machine. While the breaker is open it returns
// [ErrCircuitOpen] without calling fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.observe(probe, err)
	return err
}

// admit decides whether one call may proceed, reporting whether it counts
// against the half-open probe budget.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailureAt) < cb.resetTimeout {
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probesSent = 0
		cb.probesFailed = 0
		slog.Info("circuit breaker probing", "name", cb.name)

	case StateHalfOpen:
		if cb.probesSent >= cb.halfOpenMax {
			return false, ErrCircuitOpen
		}
	}

	if cb.state == StateHalfOpen {
		cb.probesSent++
		return true, nil
	}
	return false, nil
}

// observe records one call outcome.
func (cb *CircuitBreaker) observe(probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		if probe {
			if cb.probesSent-cb.probesFailed >= cb.halfOpenMax {
				cb.state = StateClosed
				cb.failStreak = 0
				cb.probesSent = 0
				cb.probesFailed = 0
				slog.Info("circuit breaker closed", "name", cb.name)
			}
			return
		}
		cb.failStreak = 0
		return
	}

	cb.lastFailureAt = time.Now()
	if probe {
		// One failed probe re-opens immediately.
		cb.probesFailed++
		cb.state = StateOpen
		cb.failStreak = cb.maxFailures
		slog.Warn("circuit breaker re-opened", "name", cb.name)
		return
	}
	cb.failStreak++
	if cb.failStreak >= cb.maxFailures {
		cb.state = StateOpen
		slog.Warn("circuit breaker opened", "name", cb.name, "failure_streak", cb.failStreak)
	}
}

// State returns the breaker's current mode. An open breaker whose reset
// timeout has elapsed reports [StateHalfOpen]; the stored transition happens
// on the next [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.lastFailureAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to [StateClosed] and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failStreak = 0
	cb.probesSent = 0
	cb.probesFailed = 0
	slog.Info("circuit breaker reset", "name", cb.name)
}
