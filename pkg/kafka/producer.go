package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aitormf/books-server/pkg/config"
	apperrors "github.com/aitormf/books-server/pkg/errors"
	"github.com/aitormf/books-server/pkg/metrics"
	"github.com/segmentio/kafka-go"
)

// Producer publishes JSON-encoded envelopes to Kafka. Its lifecycle is
// scoped: Start acquires the broker connection exactly once, Stop releases
// it, and calling Start twice without an intervening Stop is a usage error.
type Producer struct {
	cfg     config.KafkaConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	writer *kafka.Writer
}

// NewProducer creates a Producer for the configured brokers. The producer is
// inert until Start is called. metrics may be nil.
func NewProducer(cfg config.KafkaConfig, m *metrics.Metrics) *Producer {
	return &Producer{
		cfg:     cfg,
		logger:  slog.Default().With("component", "kafka-producer"),
		metrics: m,
	}
}

// Start acquires the Kafka writer. Returns ErrAlreadyStarted if the producer
// is already running.
func (p *Producer) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writer != nil {
		return fmt.Errorf("%w: kafka producer", apperrors.ErrAlreadyStarted)
	}
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(p.cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}
	p.logger.Info("kafka producer started", "brokers", p.cfg.Brokers)
	return nil
}

// Stop flushes pending writes and releases the Kafka writer.
func (p *Producer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writer == nil {
		return fmt.Errorf("%w: kafka producer", apperrors.ErrNotStarted)
	}
	err := p.writer.Close()
	p.writer = nil
	p.logger.Info("kafka producer stopped")
	return err
}

// Publish builds an envelope for data, encodes it, and writes it to topic.
// The call returns only after the brokers have acknowledged the write
// (RequiredAcks=all); any delivery error is surfaced to the caller, which
// owns the decision to fail its request or proceed degraded.
func (p *Producer) Publish(ctx context.Context, topic string, data map[string]any, correlationID string) error {
	p.mu.Lock()
	writer := p.writer
	p.mu.Unlock()
	if writer == nil {
		return fmt.Errorf("%w: kafka producer", apperrors.ErrNotStarted)
	}

	env := NewEnvelope(topic, data, correlationID)
	value, err := env.Encode()
	if err != nil {
		return err
	}

	if err := writer.WriteMessages(ctx, kafka.Message{Topic: topic, Value: value}); err != nil {
		if p.metrics != nil {
			p.metrics.EventsPublishedTotal.WithLabelValues(topic, "error").Inc()
		}
		p.logger.Error("failed to publish event",
			"topic", topic,
			"event_id", env.EventID,
			"correlation_id", env.CorrelationID,
			"error", err,
		)
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	if p.metrics != nil {
		p.metrics.EventsPublishedTotal.WithLabelValues(topic, "ok").Inc()
	}
	p.logger.Info("event published",
		"topic", topic,
		"event_id", env.EventID,
		"correlation_id", env.CorrelationID,
	)
	return nil
}
