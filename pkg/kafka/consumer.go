package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aitormf/books-server/pkg/config"
	apperrors "github.com/aitormf/books-server/pkg/errors"
	"github.com/aitormf/books-server/pkg/logger"
	"github.com/aitormf/books-server/pkg/metrics"
	"github.com/aitormf/books-server/pkg/resilience"
	"github.com/segmentio/kafka-go"
)

// HandlerFunc is invoked with the envelope's data payload for each message
// whose event type matches the registration. A nil return acknowledges the
// message; an error triggers the bounded retry schedule.
type HandlerFunc func(ctx context.Context, data map[string]any) error

// Consumer reads messages from the topics it has handlers for and dispatches
// them strictly in delivery order, one at a time per reader: a message must
// reach a terminal state (acknowledged or dead-lettered) before the next one
// begins, because cache upserts are order-sensitive for the same key.
//
// Handler registration is last-write-wins and freezes when Start is called,
// so dispatch never races a mutation of the registry.
type Consumer struct {
	cfg         config.KafkaConfig
	deadLetters DeadLetterSink
	metrics     *metrics.Metrics
	logger      *slog.Logger

	mu       sync.Mutex
	handlers map[string]HandlerFunc
	reader   *kafka.Reader
	started  bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewConsumer creates a Consumer. sink and m may be nil; a nil sink falls
// back to the structured-log sink.
func NewConsumer(cfg config.KafkaConfig, sink DeadLetterSink, m *metrics.Metrics) *Consumer {
	if sink == nil {
		sink = NewLogSink()
	}
	return &Consumer{
		cfg:         cfg,
		deadLetters: sink,
		metrics:     m,
		logger:      slog.Default().With("component", "kafka-consumer"),
		handlers:    make(map[string]HandlerFunc),
	}
}

// RegisterHandler maps an event type to a handler. The last registration for
// a given type wins. Registering after Start is an error: the registry is
// frozen once the consume loop begins.
func (c *Consumer) RegisterHandler(eventType string, handler HandlerFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return fmt.Errorf("%w: cannot register handler for %q", apperrors.ErrConsumerRunning, eventType)
	}
	c.handlers[eventType] = handler
	return nil
}

// Topics returns the event types with registered handlers. By convention the
// topic name equals the event type, so this is also the subscription list.
func (c *Consumer) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	topics := make([]string, 0, len(c.handlers))
	for t := range c.handlers {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// Start freezes the handler registry, joins the consumer group over the
// registered topics, and launches the consume loop. Returns an error when no
// handlers are registered or the consumer is already running.
func (c *Consumer) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return fmt.Errorf("%w: kafka consumer", apperrors.ErrAlreadyStarted)
	}
	if len(c.handlers) == 0 {
		return fmt.Errorf("%w: no handlers registered", apperrors.ErrInvalidInput)
	}

	frozen := make(map[string]HandlerFunc, len(c.handlers))
	topics := make([]string, 0, len(c.handlers))
	for t, h := range c.handlers {
		frozen[t] = h
		topics = append(topics, t)
	}
	sort.Strings(topics)
	c.handlers = frozen

	c.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:     c.cfg.Brokers,
		GroupID:     c.cfg.ConsumerGroup,
		GroupTopics: topics,
		MinBytes:    1e3,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.started = true
	go c.run(ctx)
	c.logger.Info("consumer started", "group", c.cfg.ConsumerGroup, "topics", topics)
	return nil
}

// Stop halts intake of new messages, waits for any in-flight message to
// reach a terminal state, then releases the broker connection. No message is
// abandoned mid-retry during shutdown.
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return fmt.Errorf("%w: kafka consumer", apperrors.ErrNotStarted)
	}
	cancel, done, reader := c.cancel, c.done, c.reader
	c.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for consumer drain: %w", ctx.Err())
	}

	err := reader.Close()
	c.mu.Lock()
	c.started = false
	c.reader = nil
	c.mu.Unlock()
	c.logger.Info("consumer stopped")
	return err
}

// run is the consume loop: fetch, dispatch to a terminal state, commit.
// Commits advance the group's durable read position, so an acknowledged
// message is never redelivered on restart.
func (c *Consumer) run(ctx context.Context) {
	defer close(c.done)
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer intake halted")
				return
			}
			c.logger.Error("failed to fetch message", "error", err)
			continue
		}

		// A message fetched before shutdown finishes its retries; only
		// intake observes the cancellation.
		dispatchCtx := context.WithoutCancel(ctx)
		c.process(dispatchCtx, msg)

		if err := c.reader.CommitMessages(dispatchCtx, msg); err != nil {
			c.logger.Error("failed to commit message",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// process drives one message to a terminal state. Every path returns with
// the message acknowledgeable: decode failures and exhausted handlers are
// recorded as dead letters, unknown event types are skipped.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	env, err := Decode(msg.Value)
	if err != nil {
		// Malformed wire data never becomes valid by retrying.
		c.countConsumed(msg.Topic, "decode_error")
		c.countDeadLetter(msg.Topic, "decode")
		c.deadLetters.Record(ctx, DeadLetter{
			Topic:      msg.Topic,
			Partition:  msg.Partition,
			Offset:     msg.Offset,
			Value:      msg.Value,
			Attempts:   1,
			Reason:     "decode",
			LastErr:    err,
			OccurredAt: time.Now().UTC(),
		})
		return
	}

	eventType := env.EventType
	if eventType == "" {
		eventType = msg.Topic
	}

	handler, ok := c.handlers[eventType]
	if !ok {
		// Forward-compatible: producers may introduce event types this
		// deployment does not know yet.
		c.logger.Debug("no handler registered, skipping", "event_type", eventType)
		c.countConsumed(eventType, "skipped")
		return
	}

	ctx = logger.WithCorrelationID(ctx, env.CorrelationID)
	retryCfg := resilience.RetryConfig{
		MaxAttempts:  c.cfg.MaxRetries,
		InitialDelay: c.cfg.RetryBaseWait,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			if c.metrics != nil {
				c.metrics.EventRetriesTotal.WithLabelValues(eventType).Inc()
			}
		},
	}

	start := time.Now()
	err = resilience.Retry(ctx, eventType, retryCfg, func() error {
		return handler(ctx, env.Data)
	})
	if c.metrics != nil {
		c.metrics.HandlerDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	}

	if err != nil {
		attempts := c.cfg.MaxRetries
		if attempts <= 0 {
			attempts = 3
		}
		c.countConsumed(eventType, "dead_letter")
		c.countDeadLetter(msg.Topic, "handler")
		c.deadLetters.Record(ctx, DeadLetter{
			Topic:      msg.Topic,
			Partition:  msg.Partition,
			Offset:     msg.Offset,
			Envelope:   &env,
			Value:      msg.Value,
			Attempts:   attempts,
			Reason:     "handler",
			LastErr:    err,
			OccurredAt: time.Now().UTC(),
		})
		return
	}

	c.countConsumed(eventType, "processed")
	c.logger.Info("event processed",
		"event_type", eventType,
		"event_id", env.EventID,
		"correlation_id", env.CorrelationID,
	)
}

func (c *Consumer) countConsumed(eventType, outcome string) {
	if c.metrics != nil {
		c.metrics.EventsConsumedTotal.WithLabelValues(eventType, outcome).Inc()
	}
}

func (c *Consumer) countDeadLetter(topic, reason string) {
	if c.metrics != nil {
		c.metrics.DeadLettersTotal.WithLabelValues(topic, reason).Inc()
	}
}

// IsDecodeError reports whether err stems from a malformed envelope.
func IsDecodeError(err error) bool {
	return errors.Is(err, ErrDecode)
}
