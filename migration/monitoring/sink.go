package monitoring

import (
	"context"

	"github.com/taskmesh/lib-migration/migration/log"
)

// Event types emitted by the execution manager.
const (
	EventBackendSelected   = "migration.backend_selected"
	EventFallbackUsed      = "migration.fallback_used"
	EventBreakerTransition = "migration.circuit_breaker_transition"
	EventChainExhausted    = "migration.chain_exhausted"
)

// Sink receives migration events, fire-and-forget.
type Sink interface {
	RecordMigrationEvent(ctx context.Context, eventType string, payload map[string]any)
}

// NoopSink drops every event.
type NoopSink struct{}

// RecordMigrationEvent implements Sink.
func (NoopSink) RecordMigrationEvent(_ context.Context, _ string, _ map[string]any) {}

// LogSink writes events through a Logger.
type LogSink struct {
	logger log.Logger
}

// NewLogSink creates a Sink that logs events at debug level.
func NewLogSink(logger log.Logger) *LogSink {
	if logger == nil {
		logger = &log.NoneLogger{}
	}

	return &LogSink{logger: logger}
}

// RecordMigrationEvent implements Sink.
func (s *LogSink) RecordMigrationEvent(_ context.Context, eventType string, payload map[string]any) {
	s.logger.Debugf("migration event %s: %v", eventType, payload)
}
