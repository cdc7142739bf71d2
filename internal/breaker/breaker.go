// Package breaker provides a circuit breaker with
// closed → open → half-open state transitions that guards calls to
// degraded upstream services.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ErrOpen is returned when the circuit is open and the call was rejected
// without being attempted.
var ErrOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // Normal: calls flow through
	StateOpen                  // Tripped: calls are rejected
	StateHalfOpen              // Probing: one call allowed to test recovery
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

var stateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "kestrel",
	Subsystem: "circuitbreaker",
	Name:      "state_transitions_total",
	Help:      "Circuit breaker state transitions by name, from-state, and to-state.",
}, []string{"name", "from_state", "to_state"})

func init() {
	prometheus.MustRegister(stateTransitions)
}

// outcome is one completed call in the rolling window.
type outcome struct {
	at     time.Time
	failed bool
}

// Breaker guards a single upstream dependency. Calls run under a per-call
// timeout; a timeout counts as a failure. The circuit trips open when the
// failure rate over the rolling window reaches the error threshold, but
// only once the window holds at least the volume threshold of calls.
// After the reset timeout one probe is allowed; its outcome decides
// whether the circuit closes again or re-opens.
type Breaker struct {
	name string
	cfg  domain.BreakerConfig

	mu       sync.Mutex
	state    State
	window   []outcome
	openedAt time.Time
	probing  bool

	onStateChange func(name string, from, to State)

	now func() time.Time // test seam
}

// New creates a circuit breaker with the given name and configuration.
func New(name string, cfg domain.BreakerConfig) *Breaker {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 3 * time.Second
	}
	if cfg.ErrorThresholdPct <= 0 {
		cfg.ErrorThresholdPct = 50
	}
	if cfg.VolumeThreshold <= 0 {
		cfg.VolumeThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 10 * time.Second
	}
	if cfg.RollingWindow <= 0 {
		cfg.RollingWindow = 10 * time.Second
	}
	return &Breaker{
		name: name,
		cfg:  cfg,
		now:  time.Now,
	}
}

// OnStateChange sets a callback invoked on state changes.
func (b *Breaker) OnStateChange(fn func(name string, from, to State)) {
	b.mu.Lock()
	b.onStateChange = fn
	b.mu.Unlock()
}

// State returns the current state, transitioning open → half-open when the
// reset timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return b.state
}

// Execute runs fn under the breaker. When the circuit is open the call is
// rejected with ErrOpen without invoking fn. fn runs with a context bound
// by the per-call timeout.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.acquire(); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, b.cfg.CallTimeout)
	defer cancel()

	err := fn(callCtx)
	if err == nil && callCtx.Err() != nil {
		err = callCtx.Err()
	}
	b.record(err)
	if err != nil {
		return fmt.Errorf("guarded call %s failed: %w", b.name, err)
	}
	return nil
}

// acquire decides whether a call may proceed.
func (b *Breaker) acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeHalfOpen()

	switch b.state {
	case StateClosed:
		return nil
	case StateHalfOpen:
		if b.probing {
			return ErrOpen
		}
		b.probing = true
		return nil
	default:
		return ErrOpen
	}
}

// record feeds a call outcome back into the breaker.
func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	failed := err != nil

	if b.state == StateHalfOpen {
		b.probing = false
		if failed {
			b.transition(StateOpen)
			b.openedAt = b.now()
		} else {
			b.transition(StateClosed)
			b.window = nil
		}
		return
	}

	now := b.now()
	b.window = append(b.window, outcome{at: now, failed: failed})
	b.prune(now)

	if len(b.window) < b.cfg.VolumeThreshold {
		return
	}
	failures := 0
	for _, o := range b.window {
		if o.failed {
			failures++
		}
	}
	rate := float64(failures) / float64(len(b.window)) * 100
	if rate >= float64(b.cfg.ErrorThresholdPct) {
		b.transition(StateOpen)
		b.openedAt = now
	}
}

// prune drops outcomes older than the rolling window.
// Caller must hold b.mu.
func (b *Breaker) prune(now time.Time) {
	cutoff := now.Add(-b.cfg.RollingWindow)
	i := 0
	for i < len(b.window) && b.window[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		b.window = b.window[i:]
	}
}

// maybeHalfOpen moves an open circuit to half-open once the reset timeout
// has elapsed. Caller must hold b.mu.
func (b *Breaker) maybeHalfOpen() {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		b.transition(StateHalfOpen)
		b.probing = false
	}
}

// transition changes state and fires the callback if set.
// Caller must hold b.mu.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	stateTransitions.WithLabelValues(b.name, from.String(), to.String()).Inc()
	if b.onStateChange != nil {
		fn := b.onStateChange
		go fn(b.name, from, to)
	}
}
