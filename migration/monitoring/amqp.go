package monitoring

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/taskmesh/lib-migration/migration/log"
)

const (
	defaultExchange   = "migration.events"
	defaultPublishTTL = 5 * time.Second
)

// AMQPChannel is the minimal publishing surface of an AMQP channel, an
// interface so tests run without a broker.
type AMQPChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink publishes migration events as JSON messages to an exchange,
// best-effort. Publish failures are logged and dropped; the sink never
// blocks the execution path beyond the publish timeout.
type AMQPSink struct {
	ch             AMQPChannel
	exchange       string
	publishTimeout time.Duration
	logger         log.Logger
}

// AMQPSinkOption customizes an AMQPSink.
type AMQPSinkOption func(*AMQPSink)

// WithExchange overrides the target exchange.
func WithExchange(exchange string) AMQPSinkOption {
	return func(s *AMQPSink) {
		s.exchange = exchange
	}
}

// WithPublishTimeout bounds each publish attempt.
func WithPublishTimeout(timeout time.Duration) AMQPSinkOption {
	return func(s *AMQPSink) {
		s.publishTimeout = timeout
	}
}

// WithAMQPLogger sets the logger for publish failures.
func WithAMQPLogger(logger log.Logger) AMQPSinkOption {
	return func(s *AMQPSink) {
		s.logger = logger
	}
}

// NewAMQPSink creates a Sink publishing to an AMQP exchange.
func NewAMQPSink(ch AMQPChannel, opts ...AMQPSinkOption) *AMQPSink {
	s := &AMQPSink{
		ch:             ch,
		exchange:       defaultExchange,
		publishTimeout: defaultPublishTTL,
		logger:         &log.NoneLogger{},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// amqpEvent is the wire envelope for a published event.
type amqpEvent struct {
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload"`
	EmittedAt time.Time      `json:"emitted_at"`
}

// RecordMigrationEvent implements Sink.
func (s *AMQPSink) RecordMigrationEvent(ctx context.Context, eventType string, payload map[string]any) {
	if s.ch == nil {
		return
	}

	body, err := json.Marshal(amqpEvent{
		EventType: eventType,
		Payload:   payload,
		EmittedAt: time.Now().UTC(),
	})
	if err != nil {
		s.logger.Warnf("failed to encode migration event %s: %v", eventType, err)
		return
	}

	publishCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()

	err = s.ch.PublishWithContext(publishCtx, s.exchange, eventType, false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now().UTC(),
		Body:        body,
	})
	if err != nil {
		s.logger.Warnf("failed to publish migration event %s: %v", eventType, err)
	}
}
