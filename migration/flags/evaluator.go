package flags

import (
	"context"

	"github.com/taskmesh/lib-migration/migration/log"
)

// DefaultNamespace is the flag namespace used by backend selection.
const DefaultNamespace = "default"

// Client is the boundary to the external flag-evaluation capability. Any
// flag backend (local config, remote service, vendor SDK) can implement it.
type Client interface {
	// CheckFeatureFlagStatus evaluates a boolean flag for an entity.
	CheckFeatureFlagStatus(ctx context.Context, flagKey, namespace, entityID string, flagContext map[string]any) (bool, error)
}

// Evaluator wraps a Client with fail-closed semantics and rollout hashing.
type Evaluator struct {
	client Client
	logger log.Logger
}

// NewEvaluator creates an Evaluator. A nil logger falls back to NoneLogger.
func NewEvaluator(client Client, logger log.Logger) *Evaluator {
	if logger == nil {
		logger = &log.NoneLogger{}
	}

	return &Evaluator{client: client, logger: logger}
}

// IsEnabled evaluates a boolean flag. Any error from the flag service is
// treated as false (fail-closed) and logged, never propagated to callers.
func (e *Evaluator) IsEnabled(ctx context.Context, flagKey, namespace, entityID string, flagContext map[string]any) bool {
	if e.client == nil {
		return false
	}

	enabled, err := e.client.CheckFeatureFlagStatus(ctx, flagKey, namespace, entityID, flagContext)
	if err != nil {
		e.logger.Warnf("flag evaluation failed for %s/%s, failing closed: %v", namespace, flagKey, err)
		return false
	}

	return enabled
}

// InRollout reports whether the entity falls inside the rollout percentage
// for the flag. The decision is a pure function of entityID: identical
// inputs always yield identical results, regardless of concurrency or call
// ordering.
func (e *Evaluator) InRollout(flagKey, entityID string, percentage int) bool {
	if percentage <= 0 {
		return false
	}

	if percentage >= 100 {
		return true
	}

	return RolloutBucket(entityID) < percentage
}
