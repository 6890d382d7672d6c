package circuitbreaker

import (
	"context"
	"time"
)

// State represents circuit breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
	StateUnknown  State = "unknown"
)

// CallFunc is a primary or fallback operation run through a breaker.
type CallFunc func(ctx context.Context) (any, error)

// CallInfo describes how a breaker served a call.
type CallInfo struct {
	// PrimaryAttempted is true when the primary was actually invoked rather
	// than short-circuited.
	PrimaryAttempted bool
	// PrimaryErr holds the primary's error when it was attempted and failed.
	PrimaryErr error
	// FallbackUsed is true when the returned result came from the fallback.
	FallbackUsed bool
}

// Metrics represents breaker call statistics.
type Metrics struct {
	TotalCalls          uint64
	SuccessfulCalls     uint64
	FailedCalls         uint64
	CircuitOpenCount    uint64
	AverageResponseTime time.Duration
}

// StateChangeListener is notified when a breaker changes state.
type StateChangeListener interface {
	// OnStateChange is called with the backend identifier and the edge taken.
	OnStateChange(name string, from State, to State)
}

// Manager manages circuit breakers keyed by backend identifier.
type Manager interface {
	// GetOrCreate returns the existing breaker for name or creates one.
	GetOrCreate(name string, config Config) *Breaker

	// Call runs primary through the breaker for name, falling back when the
	// breaker short-circuits or primary fails. The breaker must exist.
	Call(ctx context.Context, name string, primary, fallback CallFunc) (any, CallInfo, error)

	// State returns the current state, or StateUnknown for unknown names.
	State(name string) State

	// Metrics returns call statistics for a breaker.
	Metrics(name string) Metrics

	// IsHealthy reports whether the breaker for name is closed.
	IsHealthy(name string) bool

	// Reset forces the breaker for name back to closed with zeroed counters.
	Reset(name string)

	// RegisterStateChangeListener registers a listener for state changes on
	// every managed breaker.
	RegisterStateChangeListener(listener StateChangeListener)
}

// ProbeFunc checks whether a backend has recovered.
type ProbeFunc func(ctx context.Context) error

// HealthChecker drives out-of-band recovery for open breakers.
type HealthChecker interface {
	// Register adds a backend probe.
	Register(name string, probe ProbeFunc)

	// Start begins the probe loop in a separate goroutine.
	Start()

	// Stop gracefully stops the probe loop.
	Stop()

	// HealthStatus returns the breaker state of every registered backend.
	HealthStatus() map[string]string

	// StateChangeListener lets the checker schedule an immediate probe when
	// a breaker opens.
	StateChangeListener
}
