package monitoring

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/taskmesh/lib-migration/migration/log"
)

const (
	otelMeterName = "github.com/taskmesh/lib-migration/migration/monitoring"

	// metricMigrationEvents counts events per type and backend.
	metricMigrationEvents = "migration.events"
)

// payloadAttributeKeys are the payload fields promoted to metric
// attributes. Everything else stays out of the metric to bound
// cardinality.
var payloadAttributeKeys = []string{"backend", "from_backend", "to_backend", "from", "to", "workflow_name"}

// OTelSink records migration events as OpenTelemetry counters.
type OTelSink struct {
	meter  metric.Meter
	logger log.Logger

	mu       sync.RWMutex
	counters map[string]metric.Int64Counter
}

// OTelSinkOption customizes an OTelSink.
type OTelSinkOption func(*OTelSink)

// WithMeterProvider overrides the global meter provider.
func WithMeterProvider(provider metric.MeterProvider) OTelSinkOption {
	return func(s *OTelSink) {
		s.meter = provider.Meter(otelMeterName)
	}
}

// WithSinkLogger sets the logger for instrument creation failures.
func WithSinkLogger(logger log.Logger) OTelSinkOption {
	return func(s *OTelSink) {
		s.logger = logger
	}
}

// NewOTelSink creates a Sink backed by the OpenTelemetry metric API.
func NewOTelSink(opts ...OTelSinkOption) *OTelSink {
	s := &OTelSink{
		meter:    otel.GetMeterProvider().Meter(otelMeterName),
		logger:   &log.NoneLogger{},
		counters: make(map[string]metric.Int64Counter),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// RecordMigrationEvent implements Sink. Instrument failures are logged and
// swallowed.
func (s *OTelSink) RecordMigrationEvent(ctx context.Context, eventType string, payload map[string]any) {
	counter, err := s.counter(metricMigrationEvents)
	if err != nil {
		s.logger.Warnf("failed to create counter %s: %v", metricMigrationEvents, err)
		return
	}

	attrs := make([]attribute.KeyValue, 0, len(payloadAttributeKeys)+1)
	attrs = append(attrs, attribute.String("event_type", eventType))

	for _, key := range payloadAttributeKeys {
		if value, ok := payload[key].(string); ok {
			attrs = append(attrs, attribute.String(key, value))
		}
	}

	counter.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// counter returns a cached counter instrument, creating it on first use.
func (s *OTelSink) counter(name string) (metric.Int64Counter, error) {
	s.mu.RLock()
	counter, exists := s.counters[name]
	s.mu.RUnlock()

	if exists {
		return counter, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if counter, exists = s.counters[name]; exists {
		return counter, nil
	}

	counter, err := s.meter.Int64Counter(name,
		metric.WithDescription("Migration routing events by type"))
	if err != nil {
		return nil, err
	}

	s.counters[name] = counter

	return counter, nil
}
