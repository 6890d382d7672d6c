package selector

import (
	"context"

	"github.com/taskmesh/lib-migration/migration"
	"github.com/taskmesh/lib-migration/migration/flags"
	"github.com/taskmesh/lib-migration/migration/log"
)

// backendFlagKeys maps each selectable backend to its enablement flag.
// LegacyQueue has no flag: it is the default and the guaranteed terminal
// fallback.
var backendFlagKeys = map[migration.BackendType]string{
	migration.BackendTemporal:        "temporal_enabled",
	migration.BackendHatchet:         "hatchet_enabled",
	migration.BackendTaskAbstraction: "task_abstraction_enabled",
	migration.BackendUnifiedQueue:    "unified_queue_enabled",
}

// backendOrgOverrideKeys maps each backend to the flag that hard-pins an
// organization to it. Overrides are evaluated with the organization ID as
// the entity and take precedence over per-user rollout.
var backendOrgOverrideKeys = map[migration.BackendType]string{
	migration.BackendTemporal:        "org_override_temporal",
	migration.BackendHatchet:         "org_override_hatchet",
	migration.BackendTaskAbstraction: "org_override_task_abstraction",
	migration.BackendUnifiedQueue:    "org_override_unified_queue",
	migration.BackendLegacyQueue:     "org_override_legacy_queue",
}

// FlagKey returns the enablement flag for a backend, if it has one.
func FlagKey(backend migration.BackendType) (string, bool) {
	key, ok := backendFlagKeys[backend]
	return key, ok
}

// AvailabilityCheck is a health-probe hook consulted while building
// chains. Returning false skips the backend.
type AvailabilityCheck func(backend migration.BackendType) bool

// Config holds selector configuration.
type Config struct {
	// Namespace is the flag namespace, flags.DefaultNamespace when empty.
	Namespace string

	// RolloutPercentages optionally gates a backend's flag by percentage
	// rollout. Absent entries mean the flag alone decides.
	RolloutPercentages map[migration.BackendType]int

	// Availability is the health-probe hook. Nil means every backend is
	// considered available.
	Availability AvailabilityCheck
}

func (c Config) namespace() string {
	if c.Namespace == "" {
		return flags.DefaultNamespace
	}

	return c.Namespace
}

// Selector decides the primary backend and the fallback chain.
type Selector struct {
	evaluator *flags.Evaluator
	config    Config
	logger    log.Logger
}

// New creates a Selector. A nil logger falls back to NoneLogger.
func New(evaluator *flags.Evaluator, config Config, logger log.Logger) *Selector {
	if logger == nil {
		logger = &log.NoneLogger{}
	}

	return &Selector{evaluator: evaluator, config: config, logger: logger}
}

// SelectBackend decides the primary backend for a workflow request.
// A non-nil preferred backend is an explicit override and wins outright.
func (s *Selector) SelectBackend(ctx context.Context, mctx migration.Context, preferred *migration.BackendType) migration.BackendType {
	if preferred != nil {
		s.logger.Debugf("workflow %s: preferred backend override %s", mctx.WorkflowName, *preferred)
		return *preferred
	}

	if backend, ok := s.orgOverride(ctx, mctx); ok {
		s.logger.Infof("workflow %s: organization %s pinned to backend %s", mctx.WorkflowName, mctx.OrganizationID, backend)
		return backend
	}

	for _, backend := range migration.AllBackends() {
		if backend == migration.BackendLegacyQueue {
			continue
		}

		if s.backendEnabled(ctx, backend, mctx) && s.CheckBackendAvailability(backend) {
			return backend
		}
	}

	return migration.BackendLegacyQueue
}

// FallbackChain builds the ordered, deduplicated chain for a request:
// the selected backend first, then every other enabled backend in
// descending priority, always terminating in LegacyQueue.
func (s *Selector) FallbackChain(ctx context.Context, mctx migration.Context) []migration.BackendType {
	selected := s.SelectBackend(ctx, mctx, nil)

	chain := make([]migration.BackendType, 0, len(backendFlagKeys)+1)
	seen := make(map[migration.BackendType]bool, len(backendFlagKeys)+1)

	chain = append(chain, selected)
	seen[selected] = true

	for _, backend := range migration.AllBackends() {
		if seen[backend] || backend == migration.BackendLegacyQueue {
			continue
		}

		if s.backendEnabled(ctx, backend, mctx) && s.CheckBackendAvailability(backend) {
			chain = append(chain, backend)
			seen[backend] = true
		}
	}

	if !seen[migration.BackendLegacyQueue] {
		chain = append(chain, migration.BackendLegacyQueue)
	}

	return chain
}

// CheckBackendAvailability consults the health-probe hook, defaulting to
// available.
func (s *Selector) CheckBackendAvailability(backend migration.BackendType) bool {
	if s.config.Availability == nil {
		return true
	}

	return s.config.Availability(backend)
}

// orgOverride scans for an organization hard override in descending
// backend priority.
func (s *Selector) orgOverride(ctx context.Context, mctx migration.Context) (migration.BackendType, bool) {
	if mctx.OrganizationID == "" {
		return "", false
	}

	for _, backend := range migration.AllBackends() {
		key := backendOrgOverrideKeys[backend]
		if !s.evaluator.IsEnabled(ctx, key, s.config.namespace(), mctx.OrganizationID, mctx.FlagContext()) {
			continue
		}

		if !s.CheckBackendAvailability(backend) {
			s.logger.Warnf("organization %s pinned to unavailable backend %s, ignoring override", mctx.OrganizationID, backend)
			continue
		}

		return backend, true
	}

	return "", false
}

// backendEnabled evaluates a backend's flag for the user, applying the
// percentage rollout gate when one is configured.
func (s *Selector) backendEnabled(ctx context.Context, backend migration.BackendType, mctx migration.Context) bool {
	key, ok := backendFlagKeys[backend]
	if !ok {
		return false
	}

	if !s.evaluator.IsEnabled(ctx, key, s.config.namespace(), mctx.UserID, mctx.FlagContext()) {
		return false
	}

	if pct, ok := s.config.RolloutPercentages[backend]; ok {
		return s.evaluator.InRollout(key, mctx.UserID, pct)
	}

	return true
}
