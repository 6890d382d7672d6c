package migration

import (
	"fmt"
	"sort"
)

// BackendType identifies a workflow execution backend targeted by the
// migration.
type BackendType string

const (
	// BackendLegacyQueue is the original task queue. It is the terminal
	// fallback and is assumed perpetually available.
	BackendLegacyQueue BackendType = "legacy_queue"
	// BackendUnifiedQueue is the consolidated task queue.
	BackendUnifiedQueue BackendType = "unified_queue"
	// BackendTaskAbstraction is the backend-agnostic task layer.
	BackendTaskAbstraction BackendType = "task_abstraction"
	// BackendHatchet is the Hatchet orchestrator (experimental).
	BackendHatchet BackendType = "hatchet"
	// BackendTemporal is the Temporal orchestrator (experimental).
	BackendTemporal BackendType = "temporal"
)

// backendPriority is the selection priority table. Higher values are
// preferred. Priorities live here, not in declaration order, so reordering
// the constants above never silently changes routing behavior.
var backendPriority = map[BackendType]int{
	BackendTemporal:        50,
	BackendHatchet:         40,
	BackendTaskAbstraction: 30,
	BackendUnifiedQueue:    20,
	BackendLegacyQueue:     10,
}

// Priority returns the selection priority for the backend. Unknown backends
// have priority 0 and sort last.
func (b BackendType) Priority() int {
	return backendPriority[b]
}

// Valid reports whether the backend is a known member of the taxonomy.
func (b BackendType) Valid() bool {
	_, ok := backendPriority[b]
	return ok
}

// String returns the wire identifier of the backend.
func (b BackendType) String() string {
	return string(b)
}

// Experimental reports whether the backend is one of the experimental
// orchestrators.
func (b BackendType) Experimental() bool {
	return b == BackendHatchet || b == BackendTemporal
}

// AllBackends returns every known backend in descending priority order.
func AllBackends() []BackendType {
	backends := make([]BackendType, 0, len(backendPriority))
	for b := range backendPriority {
		backends = append(backends, b)
	}

	sort.Slice(backends, func(i, j int) bool {
		return backends[i].Priority() > backends[j].Priority()
	})

	return backends
}

// ParseBackendType converts a wire identifier into a BackendType.
func ParseBackendType(s string) (BackendType, error) {
	b := BackendType(s)
	if !b.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownBackend, s)
	}

	return b, nil
}
