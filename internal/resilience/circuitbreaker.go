// Package resilience provides per-provider circuit breaking for synthesis
// calls.
//
// [CircuitBreaker] is a three-state breaker (closed → open → half-open). A
// provider that keeps failing is short-circuited for a while instead of
// letting every request wait for its timeout. [Set] hands out one breaker per
// provider ID, created on first use.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker is
// open and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// elapses.
	StateOpen

	// StateHalfOpen lets a limited number of trial calls through. Enough
	// successes close the breaker; any failure re-opens it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
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

// Config holds tuning knobs for a [CircuitBreaker].
type Config struct {
	// Name labels log messages, normally the provider ID.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of trial calls allowed while half-open.
	// Default: 1.
	HalfOpenMax int

	// IsFailure decides whether an error counts against the breaker. The
	// default ignores context cancellation, which reflects the caller and
	// not the provider.
	IsFailure func(error) bool
}

func (c Config) withDefaults() Config {
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.HalfOpenMax <= 0 {
		c.HalfOpenMax = 1
	}
	if c.IsFailure == nil {
		c.IsFailure = countsAsFailure
	}
	return c
}

func countsAsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	cfg Config
	now func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	openedAt    time.Time
	trialCalls  int
	trialPassed int
}

// NewCircuitBreaker creates a [CircuitBreaker]. Zero-value config fields take
// their defaults.
func NewCircuitBreaker(cfg Config) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg.withDefaults(), now: time.Now}
}

// Execute runs fn under ctx if the breaker admits the call. It returns
// [ErrCircuitOpen] without calling fn while open, and ctx.Err() without
// calling fn if ctx is already done.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	trial, err := cb.admit()
	if err != nil {
		return err
	}

	err = runRecovered(ctx, fn)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.cfg.IsFailure(err) {
		cb.onFailure(trial)
	} else {
		cb.onSuccess(trial)
	}
	return err
}

// runRecovered calls fn and turns a panic into an error, so a crashing
// provider counts as a failure and a half-open trial is always settled.
func runRecovered(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panicked: %v", r)
		}
	}()
	return fn(ctx)
}

// admit decides whether a call may proceed and whether it is a half-open
// trial.
func (cb *CircuitBreaker) admit() (trial bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cfg.ResetTimeout {
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.trialCalls, cb.trialPassed = 0, 0
		slog.Info("circuit breaker half-open", "provider", cb.cfg.Name)
	case StateHalfOpen:
		if cb.trialCalls >= cb.cfg.HalfOpenMax {
			return false, ErrCircuitOpen
		}
	}
	if cb.state == StateHalfOpen {
		cb.trialCalls++
		return true, nil
	}
	return false, nil
}

// onFailure must be called with cb.mu held.
func (cb *CircuitBreaker) onFailure(trial bool) {
	if trial {
		cb.open()
		slog.Warn("circuit breaker re-opened after failed trial", "provider", cb.cfg.Name)
		return
	}
	cb.failures++
	if cb.state == StateClosed && cb.failures >= cb.cfg.MaxFailures {
		cb.open()
		slog.Warn("circuit breaker opened", "provider", cb.cfg.Name, "consecutive_failures", cb.failures)
	}
}

// onSuccess must be called with cb.mu held.
func (cb *CircuitBreaker) onSuccess(trial bool) {
	if !trial {
		cb.failures = 0
		return
	}
	cb.trialPassed++
	if cb.state == StateHalfOpen && cb.trialPassed >= cb.cfg.HalfOpenMax {
		cb.state = StateClosed
		cb.failures = 0
		slog.Info("circuit breaker closed", "provider", cb.cfg.Name)
	}
}

func (cb *CircuitBreaker) open() {
	cb.state = StateOpen
	cb.openedAt = cb.now()
	cb.failures = 0
}

// State returns the current [State]. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to [StateClosed].
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.trialCalls, cb.trialPassed = 0, 0
}

// Set holds one [CircuitBreaker] per provider, created lazily from a shared
// template config.
type Set struct {
	template Config

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewSet returns an empty Set whose breakers use template (Name is replaced
// by the provider ID).
func NewSet(template Config) *Set {
	return &Set{template: template, breakers: make(map[string]*CircuitBreaker)}
}

// Get returns the breaker for id, creating it on first use.
func (s *Set) Get(id string) *CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	cb, ok := s.breakers[id]
	if !ok {
		cfg := s.template
		cfg.Name = id
		cb = NewCircuitBreaker(cfg)
		s.breakers[id] = cb
	}
	return cb
}

// States returns a snapshot of every breaker's state keyed by provider ID.
func (s *Set) States() map[string]State {
	s.mu.Lock()
	breakers := maps.Clone(s.breakers)
	s.mu.Unlock()

	out := make(map[string]State, len(breakers))
	for id, cb := range breakers {
		out[id] = cb.State()
	}
	return out
}
