package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aitormf/books-server/pkg/config"
	apperrors "github.com/aitormf/books-server/pkg/errors"
)

// captureSink records dead letters for assertions.
type captureSink struct {
	mu      sync.Mutex
	records []DeadLetter
}

func (s *captureSink) Record(ctx context.Context, dl DeadLetter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, dl)
}

func (s *captureSink) all() []DeadLetter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DeadLetter(nil), s.records...)
}

func testKafkaConfig() config.KafkaConfig {
	return config.KafkaConfig{
		Brokers:       []string{"localhost:9092"},
		ConsumerGroup: "test-group",
		MaxRetries:    3,
		RetryBaseWait: time.Millisecond,
	}
}

func message(t *testing.T, topic string, env Envelope) kafka.Message {
	t.Helper()
	value, err := env.Encode()
	require.NoError(t, err)
	return kafka.Message{Topic: topic, Value: value}
}

func TestRegisterHandlerLastWins(t *testing.T) {
	c := NewConsumer(testKafkaConfig(), &captureSink{}, nil)

	var firstCalled, secondCalled bool
	require.NoError(t, c.RegisterHandler("book.created", func(ctx context.Context, data map[string]any) error {
		firstCalled = true
		return nil
	}))
	require.NoError(t, c.RegisterHandler("book.created", func(ctx context.Context, data map[string]any) error {
		secondCalled = true
		return nil
	}))

	c.process(context.Background(), message(t, "book.created", NewEnvelope("book.created", nil, "")))
	assert.False(t, firstCalled, "the replaced handler must not run")
	assert.True(t, secondCalled)
}

func TestRegisterHandlerAfterStartFails(t *testing.T) {
	c := NewConsumer(testKafkaConfig(), &captureSink{}, nil)
	require.NoError(t, c.RegisterHandler("book.created", func(ctx context.Context, data map[string]any) error {
		return nil
	}))

	c.mu.Lock()
	c.started = true
	c.mu.Unlock()

	err := c.RegisterHandler("book.updated", func(ctx context.Context, data map[string]any) error {
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConsumerRunning)
}

func TestTopicsSorted(t *testing.T) {
	c := NewConsumer(testKafkaConfig(), &captureSink{}, nil)
	noop := func(ctx context.Context, data map[string]any) error { return nil }
	require.NoError(t, c.RegisterHandler("book.updated", noop))
	require.NoError(t, c.RegisterHandler("book.created", noop))
	require.NoError(t, c.RegisterHandler("book_author.linked", noop))

	assert.Equal(t, []string{"book.created", "book.updated", "book_author.linked"}, c.Topics())
}

func TestStartWithoutHandlersFails(t *testing.T) {
	c := NewConsumer(testKafkaConfig(), &captureSink{}, nil)
	err := c.Start()
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestStopBeforeStartFails(t *testing.T) {
	c := NewConsumer(testKafkaConfig(), &captureSink{}, nil)
	err := c.Stop(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotStarted)
}

func TestProcessDecodeFailureDeadLettersWithoutRetry(t *testing.T) {
	sink := &captureSink{}
	c := NewConsumer(testKafkaConfig(), sink, nil)

	var handlerCalls int
	require.NoError(t, c.RegisterHandler("book.created", func(ctx context.Context, data map[string]any) error {
		handlerCalls++
		return nil
	}))

	c.process(context.Background(), kafka.Message{
		Topic:     "book.created",
		Partition: 2,
		Offset:    17,
		Value:     []byte("not an envelope"),
	})

	assert.Zero(t, handlerCalls, "handlers never see undecodable messages")
	records := sink.all()
	require.Len(t, records, 1)
	dl := records[0]
	assert.Equal(t, "decode", dl.Reason)
	assert.Nil(t, dl.Envelope)
	assert.Equal(t, 1, dl.Attempts)
	assert.Equal(t, "book.created", dl.Topic)
	assert.Equal(t, 2, dl.Partition)
	assert.Equal(t, int64(17), dl.Offset)
	assert.True(t, IsDecodeError(dl.LastErr))
	assert.Equal(t, []byte("not an envelope"), dl.Value)
}

func TestProcessUnknownEventTypeIsAcknowledgedNoOp(t *testing.T) {
	sink := &captureSink{}
	c := NewConsumer(testKafkaConfig(), sink, nil)

	var handlerCalls int
	require.NoError(t, c.RegisterHandler("book.created", func(ctx context.Context, data map[string]any) error {
		handlerCalls++
		return nil
	}))

	c.process(context.Background(), message(t, "book.archived", NewEnvelope("book.archived", nil, "")))
	assert.Zero(t, handlerCalls)
	assert.Empty(t, sink.all(), "unknown event types are skipped, not dead-lettered")
}

func TestProcessRetriesThenDeadLetters(t *testing.T) {
	sink := &captureSink{}
	c := NewConsumer(testKafkaConfig(), sink, nil)

	handlerErr := errors.New("cache row locked")
	var attempts int
	require.NoError(t, c.RegisterHandler("book.updated", func(ctx context.Context, data map[string]any) error {
		attempts++
		return handlerErr
	}))

	env := NewEnvelope("book.updated", map[string]any{"book_id": float64(5)}, "corr-dl")
	c.process(context.Background(), message(t, "book.updated", env))

	assert.Equal(t, 3, attempts, "handler runs exactly MaxRetries times")
	records := sink.all()
	require.Len(t, records, 1)
	dl := records[0]
	assert.Equal(t, "handler", dl.Reason)
	assert.Equal(t, 3, dl.Attempts)
	require.NotNil(t, dl.Envelope)
	assert.Equal(t, env.EventID, dl.Envelope.EventID)
	assert.ErrorIs(t, dl.LastErr, handlerErr)
}

func TestProcessSucceedsWithoutRetry(t *testing.T) {
	sink := &captureSink{}
	c := NewConsumer(testKafkaConfig(), sink, nil)

	var attempts int
	var got map[string]any
	require.NoError(t, c.RegisterHandler("book.created", func(ctx context.Context, data map[string]any) error {
		attempts++
		got = data
		return nil
	}))

	env := NewEnvelope("book.created", map[string]any{"book_id": float64(1), "title": "Invisible Cities"}, "")
	c.process(context.Background(), message(t, "book.created", env))

	assert.Equal(t, 1, attempts)
	assert.Equal(t, env.Data, got)
	assert.Empty(t, sink.all())
}

func TestProcessRecoversBeforeExhaustingRetries(t *testing.T) {
	sink := &captureSink{}
	c := NewConsumer(testKafkaConfig(), sink, nil)

	var attempts int
	require.NoError(t, c.RegisterHandler("book.updated", func(ctx context.Context, data map[string]any) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	}))

	c.process(context.Background(), message(t, "book.updated", NewEnvelope("book.updated", nil, "")))
	assert.Equal(t, 3, attempts)
	assert.Empty(t, sink.all(), "recovered messages are not dead-lettered")
}

func TestProcessEmptyEventTypeFallsBackToTopic(t *testing.T) {
	sink := &captureSink{}
	c := NewConsumer(testKafkaConfig(), sink, nil)

	var handlerCalls int
	require.NoError(t, c.RegisterHandler("book.deleted", func(ctx context.Context, data map[string]any) error {
		handlerCalls++
		return nil
	}))

	// A producer that omits event_type still routes by topic name.
	c.process(context.Background(), kafka.Message{
		Topic: "book.deleted",
		Value: []byte(`{"event_id":"e-1","correlation_id":"c-1","data":{"book_id":4}}`),
	})
	assert.Equal(t, 1, handlerCalls)
	assert.Empty(t, sink.all())
}
