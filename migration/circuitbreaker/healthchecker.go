package circuitbreaker

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/taskmesh/lib-migration/migration/log"
)

var (
	// ErrInvalidProbeInterval indicates the probe interval must be positive.
	ErrInvalidProbeInterval = errors.New("circuitbreaker: probe interval must be positive")
	// ErrInvalidProbeTimeout indicates the probe timeout must be positive.
	ErrInvalidProbeTimeout = errors.New("circuitbreaker: probe timeout must be positive")
)

// healthChecker periodically probes backends whose breakers are not closed
// and resets the breaker once a probe succeeds.
type healthChecker struct {
	manager        Manager
	probes         map[string]ProbeFunc
	interval       time.Duration
	probeTimeout   time.Duration
	logger         log.Logger
	stopChan       chan struct{}
	immediateCheck chan string
	wg             sync.WaitGroup
	mu             sync.RWMutex
}

// NewHealthChecker creates a health checker.
// interval: how often to sweep unhealthy backends.
// probeTimeout: timeout for each individual probe.
func NewHealthChecker(manager Manager, interval, probeTimeout time.Duration, logger log.Logger) (HealthChecker, error) {
	if interval <= 0 {
		return nil, ErrInvalidProbeInterval
	}

	if probeTimeout <= 0 {
		return nil, ErrInvalidProbeTimeout
	}

	if logger == nil {
		logger = &log.NoneLogger{}
	}

	return &healthChecker{
		manager:        manager,
		probes:         make(map[string]ProbeFunc),
		interval:       interval,
		probeTimeout:   probeTimeout,
		logger:         logger,
		stopChan:       make(chan struct{}),
		immediateCheck: make(chan string, 10),
	}, nil
}

func (hc *healthChecker) Register(name string, probe ProbeFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	hc.probes[name] = probe
	hc.logger.Infof("registered recovery probe for backend: %s", name)
}

func (hc *healthChecker) Start() {
	hc.wg.Add(1)

	go hc.probeLoop()

	hc.logger.Infof("health checker started - probing unhealthy backends every %v", hc.interval)
}

func (hc *healthChecker) Stop() {
	close(hc.stopChan)
	hc.wg.Wait()
	hc.logger.Info("health checker stopped")
}

func (hc *healthChecker) probeLoop() {
	defer hc.wg.Done()

	ticker := time.NewTicker(hc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			hc.sweep()
		case name := <-hc.immediateCheck:
			hc.probeBackend(name)
		case <-hc.stopChan:
			return
		}
	}
}

// sweep probes every registered backend whose breaker is not closed.
func (hc *healthChecker) sweep() {
	hc.mu.RLock()
	probes := make(map[string]ProbeFunc, len(hc.probes))
	maps.Copy(probes, hc.probes)
	hc.mu.RUnlock()

	for name := range probes {
		if hc.manager.IsHealthy(name) {
			continue
		}

		hc.probeBackend(name)
	}
}

// probeBackend runs one probe and resets the breaker on success.
func (hc *healthChecker) probeBackend(name string) {
	hc.mu.RLock()
	probe, exists := hc.probes[name]
	hc.mu.RUnlock()

	if !exists {
		hc.logger.Warnf("no recovery probe registered for backend: %s", name)
		return
	}

	if hc.manager.IsHealthy(name) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), hc.probeTimeout)
	err := probe(ctx)

	cancel()

	if err == nil {
		hc.logger.Infof("backend %s recovered - resetting circuit breaker", name)
		hc.manager.Reset(name)

		return
	}

	hc.logger.Warnf("backend %s still unhealthy: %v - will retry in %v", name, err, hc.interval)
}

func (hc *healthChecker) HealthStatus() map[string]string {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	status := make(map[string]string, len(hc.probes))
	for name := range hc.probes {
		status[name] = string(hc.manager.State(name))
	}

	return status
}

// OnStateChange implements StateChangeListener. A breaker that just opened
// gets an immediate probe instead of waiting for the next sweep.
func (hc *healthChecker) OnStateChange(name string, _, to State) {
	if to != StateOpen {
		return
	}

	select {
	case hc.immediateCheck <- name:
	default:
		hc.logger.Warnf("immediate probe channel full for %s, will probe on next sweep", name)
	}
}
