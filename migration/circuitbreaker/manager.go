package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/taskmesh/lib-migration/migration/log"
)

// ErrBreakerNotFound is returned by Call for an unknown backend identifier.
var ErrBreakerNotFound = errors.New("circuitbreaker: breaker not found (call GetOrCreate first)")

type manager struct {
	breakers  map[string]*Breaker
	listeners []StateChangeListener
	mu        sync.RWMutex
	logger    log.Logger
}

// NewManager creates a circuit breaker manager. Breakers are created once
// per backend identifier and live for the process lifetime; Reset is the
// only way to clear one.
func NewManager(logger log.Logger) Manager {
	if logger == nil {
		logger = &log.NoneLogger{}
	}

	return &manager{
		breakers: make(map[string]*Breaker),
		logger:   logger,
	}
}

func (m *manager) GetOrCreate(name string, config Config) *Breaker {
	m.mu.RLock()
	breaker, exists := m.breakers[name]
	m.mu.RUnlock()

	if exists {
		return breaker
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if breaker, exists = m.breakers[name]; exists {
		return breaker
	}

	breaker, err := NewBreaker(name, config, m.logger)
	if err != nil {
		m.logger.Errorf("invalid breaker config for %s (%v), falling back to defaults", name, err)

		breaker, _ = NewBreaker(name, DefaultConfig(), m.logger)
	}

	breaker.onStateChange = m.handleStateChange
	m.breakers[name] = breaker

	m.logger.Infof("created circuit breaker for backend: %s", name)

	return breaker
}

func (m *manager) Call(ctx context.Context, name string, primary, fallback CallFunc) (any, CallInfo, error) {
	m.mu.RLock()
	breaker, exists := m.breakers[name]
	m.mu.RUnlock()

	if !exists {
		return nil, CallInfo{}, fmt.Errorf("%w: %s", ErrBreakerNotFound, name)
	}

	return breaker.CallWithInfo(ctx, primary, fallback)
}

func (m *manager) State(name string) State {
	m.mu.RLock()
	breaker, exists := m.breakers[name]
	m.mu.RUnlock()

	if !exists {
		return StateUnknown
	}

	return breaker.State()
}

func (m *manager) Metrics(name string) Metrics {
	m.mu.RLock()
	breaker, exists := m.breakers[name]
	m.mu.RUnlock()

	if !exists {
		return Metrics{}
	}

	return breaker.Metrics()
}

func (m *manager) IsHealthy(name string) bool {
	// Only a closed breaker is healthy. Open and half-open both need the
	// health checker or live traffic to finish recovery.
	return m.State(name) == StateClosed
}

func (m *manager) Reset(name string) {
	m.mu.RLock()
	breaker, exists := m.breakers[name]
	m.mu.RUnlock()

	if !exists {
		return
	}

	m.logger.Infof("resetting circuit breaker for backend: %s", name)
	breaker.Reset()
}

func (m *manager) RegisterStateChangeListener(listener StateChangeListener) {
	if listener == nil {
		m.logger.Warnf("attempted to register a nil state change listener")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.listeners = append(m.listeners, listener)
}

// handleStateChange fans a breaker transition out to listeners.
func (m *manager) handleStateChange(name string, from, to State) {
	switch to {
	case StateOpen:
		m.logger.Errorf("circuit breaker [%s] OPENED - backend is unhealthy, calls will fast-fail to fallback", name)
	case StateHalfOpen:
		m.logger.Infof("circuit breaker [%s] HALF-OPEN - probing backend recovery", name)
	case StateClosed:
		m.logger.Infof("circuit breaker [%s] CLOSED - backend is healthy", name)
	}

	m.mu.RLock()
	listeners := make([]StateChangeListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.RUnlock()

	for _, listener := range listeners {
		// Notify in goroutine to avoid blocking breaker transitions.
		go func(l StateChangeListener) {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Errorf("state change listener panic for backend %s: %v", name, r)
				}
			}()

			l.OnStateChange(name, from, to)
		}(listener)
	}
}
