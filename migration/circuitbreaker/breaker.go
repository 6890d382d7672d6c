package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/taskmesh/lib-migration/migration/log"
)

// ErrCircuitOpen is returned when a breaker short-circuits a call and no
// fallback is available.
var ErrCircuitOpen = errors.New("circuitbreaker: circuit is open")

// Breaker is the circuit breaker state machine for a single backend.
//
// The mutex guards only transition bookkeeping (state, counters, openedAt,
// the single-flight probe flag). Primary and fallback calls always execute
// outside the lock so a slow backend never blocks other callers'
// bookkeeping.
type Breaker struct {
	name   string
	config Config
	logger log.Logger

	// now is the monotonic clock source, replaceable in tests.
	now func() time.Time

	// onStateChange is invoked outside the lock after each transition.
	onStateChange func(name string, from, to State)

	mu            sync.Mutex
	state         State
	failureCount  int
	successCount  int
	openedAt      time.Time
	probeInFlight bool

	totalCalls       uint64
	successfulCalls  uint64
	failedCalls      uint64
	circuitOpenCount uint64
	totalLatency     time.Duration
}

// NewBreaker creates a closed breaker for a backend identifier.
func NewBreaker(name string, config Config, logger log.Logger) (*Breaker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = &log.NoneLogger{}
	}

	return &Breaker{
		name:   name,
		config: config,
		logger: logger,
		now:    time.Now,
		state:  StateClosed,
	}, nil
}

// Name returns the backend identifier the breaker guards.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state
}

// Metrics returns cumulative call statistics. TotalCalls counts every Call,
// including short-circuited ones; SuccessfulCalls and FailedCalls count
// only primary attempts, and AverageResponseTime is averaged over them.
func (b *Breaker) Metrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	m := Metrics{
		TotalCalls:       b.totalCalls,
		SuccessfulCalls:  b.successfulCalls,
		FailedCalls:      b.failedCalls,
		CircuitOpenCount: b.circuitOpenCount,
	}

	if attempted := b.successfulCalls + b.failedCalls; attempted > 0 {
		m.AverageResponseTime = b.totalLatency / time.Duration(attempted)
	}

	return m
}

// Reset is an administrative operation forcing the breaker closed with
// zeroed state counters. It is not part of normal traffic flow.
func (b *Breaker) Reset() {
	b.mu.Lock()

	var t *transition
	if b.state != StateClosed {
		t = b.transitionLocked(StateClosed)
	} else {
		b.failureCount = 0
		b.successCount = 0
	}

	b.mu.Unlock()

	b.notify(t)
}

// Call runs primary through the state machine, serving fallback whenever
// primary is skipped or fails.
func (b *Breaker) Call(ctx context.Context, primary, fallback CallFunc) (any, error) {
	result, _, err := b.CallWithInfo(ctx, primary, fallback)
	return result, err
}

// CallWithInfo is Call plus a CallInfo describing whether the primary was
// attempted and whether the result came from the fallback.
func (b *Breaker) CallWithInfo(ctx context.Context, primary, fallback CallFunc) (any, CallInfo, error) {
	attempt, probe, t := b.beforeCall()
	b.notify(t)

	var info CallInfo

	if !attempt {
		return b.serveFallback(ctx, fallback, info, fmt.Errorf("backend %s unavailable: %w", b.name, ErrCircuitOpen))
	}

	start := b.now()
	result, err := primary(ctx)
	t = b.afterCall(probe, err, b.now().Sub(start))
	b.notify(t)

	info.PrimaryAttempted = true

	if err == nil {
		return result, info, nil
	}

	info.PrimaryErr = err

	return b.serveFallback(ctx, fallback, info, err)
}

// beforeCall decides whether the primary may be attempted. It returns
// probe=true when this caller holds the single-flight half-open gate.
func (b *Breaker) beforeCall() (attempt, probe bool, t *transition) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalCalls++

	switch b.state {
	case StateClosed:
		return true, false, nil

	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.config.RecoveryTimeout {
			t = b.transitionLocked(StateHalfOpen)
			b.probeInFlight = true

			return true, true, t
		}

		return false, false, nil

	case StateHalfOpen:
		if !b.probeInFlight {
			b.probeInFlight = true
			return true, true, nil
		}

		return false, false, nil
	}

	return false, false, nil
}

// afterCall records the primary outcome and applies the failure predicate.
func (b *Breaker) afterCall(probe bool, err error, latency time.Duration) *transition {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe {
		b.probeInFlight = false
	}

	if err == nil {
		b.successfulCalls++
	} else {
		b.failedCalls++
	}

	b.totalLatency += latency

	if b.config.countsAsFailure(err) {
		switch b.state {
		case StateClosed:
			b.failureCount++
			if b.failureCount >= b.config.FailureThreshold {
				return b.transitionLocked(StateOpen)
			}
		case StateHalfOpen:
			// A failed probe reopens immediately and restarts the clock.
			return b.transitionLocked(StateOpen)
		}

		return nil
	}

	if err != nil {
		// Error excluded by the predicate: neither a failure nor a
		// recovery signal.
		return nil
	}

	switch b.state {
	case StateClosed:
		b.failureCount = 0
	case StateHalfOpen:
		if probe {
			b.successCount++
			if b.successCount >= b.config.SuccessThreshold {
				return b.transitionLocked(StateClosed)
			}
		}
	}

	return nil
}

// transition records one edge of the legal state graph.
type transition struct {
	from State
	to   State
}

// transitionLocked moves to a new state. Callers must hold b.mu.
func (b *Breaker) transitionLocked(to State) *transition {
	t := &transition{from: b.state, to: to}
	b.state = to

	switch to {
	case StateOpen:
		b.openedAt = b.now()
		b.circuitOpenCount++
		b.successCount = 0
	case StateHalfOpen:
		b.successCount = 0
	case StateClosed:
		b.failureCount = 0
		b.successCount = 0
		b.probeInFlight = false
	}

	return t
}

// notify logs a transition and forwards it to the state-change callback,
// always outside the lock.
func (b *Breaker) notify(t *transition) {
	if t == nil {
		return
	}

	b.logger.Warnf("circuit breaker [%s] state changed: %s -> %s", b.name, t.from, t.to)

	if b.onStateChange != nil {
		b.onStateChange(b.name, t.from, t.to)
	}
}

func (b *Breaker) serveFallback(ctx context.Context, fallback CallFunc, info CallInfo, cause error) (any, CallInfo, error) {
	if fallback == nil {
		return nil, info, cause
	}

	info.FallbackUsed = true

	result, err := fallback(ctx)

	return result, info, err
}
