// Package resilience guards the upstream AI services used by the scoring
// pipeline.
//
// The central type is [CircuitBreaker], a three-state breaker
// (closed → open → half-open). [GuardSTT], [GuardTTS] and [GuardLLM] wrap a
// provider so that every call goes through its own breaker. Nothing in this
// package retries: a failed call is reported to the caller as-is, and an open
// breaker fails fast with [ErrCircuitOpen].
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while a breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Breaker defaults.
const (
	DefaultMaxFailures  = 5
	DefaultResetTimeout = 30 * time.Second
	DefaultHalfOpenMax  = 1
)

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// has passed since the last counted failure.
	StateOpen

	// StateHalfOpen lets up to HalfOpenMax probe calls through. One failed
	// probe re-opens the breaker; HalfOpenMax successful probes close it.
	StateHalfOpen
)

// String returns the state name used in logs, metrics and readiness output.
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

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels the breaker in logs, metrics and readiness output, e.g.
	// "stt".
	Name string

	// MaxFailures is the number of consecutive counted failures that opens
	// the breaker. Default: [DefaultMaxFailures].
	MaxFailures int

	// ResetTimeout is how long the breaker stays open. Default:
	// [DefaultResetTimeout].
	ResetTimeout time.Duration

	// HalfOpenMax is the number of probe calls allowed in the half-open
	// state. Default: [DefaultHalfOpenMax]. Scoring calls run for minutes, so
	// one probe is usually enough.
	HalfOpenMax int

	// IsFailure decides whether an error counts against the upstream. Nil
	// counts every error. [context.Canceled] is never counted: the caller
	// gave up, the service did not fail.
	IsFailure func(error) bool

	// OnStateChange, if set, is called after every transition. It runs with
	// the breaker lock held and must not call back into the breaker.
	OnStateChange func(name string, from, to State)
}

// Snapshot is a point-in-time view of a breaker.
type Snapshot struct {
	Name                string
	State               State
	ConsecutiveFailures int

	// RetryAt is when an open breaker will admit a probe. Zero unless the
	// state is [StateOpen].
	RetryAt time.Time
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int
	isFailure    func(error) bool
	onChange     func(name string, from, to State)
	now          func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	openedAt    time.Time
	probes      int
	probePasses int
}

// NewCircuitBreaker creates a closed [CircuitBreaker]. Zero-value config
// fields take their defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultResetTimeout
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = DefaultHalfOpenMax
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		isFailure:    cfg.IsFailure,
		onChange:     cfg.OnStateChange,
		now:          time.Now,
	}
}

// Name returns the label the breaker was created with.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs fn unless the breaker rejects the call with [ErrCircuitOpen].
// fn's error is returned unchanged.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}

	err = fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch {
	case errors.Is(err, context.Canceled):
		if probe {
			cb.probes--
		}
	case err != nil && cb.counts(err):
		cb.onFailure(probe)
	case probe:
		cb.onProbePass()
	default:
		// Uncounted errors leave the failure streak alone.
		if err == nil {
			cb.failures = 0
		}
	}
	return err
}

// admit decides whether a call may proceed and whether it is a probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			return false, ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
		cb.probes, cb.probePasses = 0, 0
		slog.Info("circuit breaker half-open, probing upstream", "breaker", cb.name)
	}
	if cb.state == StateHalfOpen {
		if cb.probes >= cb.halfOpenMax {
			return false, ErrCircuitOpen
		}
		cb.probes++
		return true, nil
	}
	return false, nil
}

func (cb *CircuitBreaker) counts(err error) bool {
	return cb.isFailure == nil || cb.isFailure(err)
}

// onFailure must be called with cb.mu held.
func (cb *CircuitBreaker) onFailure(probe bool) {
	cb.failures++
	if probe {
		cb.open()
		slog.Warn("circuit breaker probe failed, re-opened", "breaker", cb.name)
		return
	}
	if cb.state == StateClosed && cb.failures >= cb.maxFailures {
		cb.open()
		slog.Warn("circuit breaker opened", "breaker", cb.name, "consecutive_failures", cb.failures)
	}
}

// onProbePass must be called with cb.mu held.
func (cb *CircuitBreaker) onProbePass() {
	cb.probePasses++
	if cb.probePasses < cb.halfOpenMax {
		return
	}
	cb.setState(StateClosed)
	cb.failures = 0
	slog.Info("circuit breaker closed", "breaker", cb.name)
}

func (cb *CircuitBreaker) open() {
	cb.openedAt = cb.now()
	cb.setState(StateOpen)
}

// State returns the current [State]. An open breaker whose reset timeout has
// passed reports [StateHalfOpen]; the transition itself happens on the next
// [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	return cb.Snapshot().State
}

// Snapshot returns the breaker's current state and counters.
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s := Snapshot{Name: cb.name, State: cb.state, ConsecutiveFailures: cb.failures}
	if cb.state == StateOpen {
		retry := cb.openedAt.Add(cb.resetTimeout)
		if cb.now().Before(retry) {
			s.RetryAt = retry
		} else {
			s.State = StateHalfOpen
		}
	}
	return s
}

// Reset forces the breaker closed and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.setState(StateClosed)
	cb.failures, cb.probes, cb.probePasses = 0, 0, 0
	slog.Info("circuit breaker reset", "breaker", cb.name)
}

// setState must be called with cb.mu held.
func (cb *CircuitBreaker) setState(to State) {
	from := cb.state
	cb.state = to
	if from != to && cb.onChange != nil {
		cb.onChange(cb.name, from, to)
	}
}
