package kafka

import (
	"context"
	"log/slog"
	"time"
)

// DeadLetter is the terminal record of a message that could not be applied:
// either its envelope failed to decode, or its handler exhausted all retry
// attempts. Dead-lettered messages are still acknowledged so a poisoned
// message never blocks the topic.
type DeadLetter struct {
	Topic      string
	Partition  int
	Offset     int64
	Envelope   *Envelope // nil when the envelope failed to decode
	Value      []byte
	Attempts   int
	Reason     string // "decode" or "handler"
	LastErr    error
	OccurredAt time.Time
}

// DeadLetterSink receives terminal failure records. Record must not fail the
// dispatch path; implementations absorb their own errors.
type DeadLetterSink interface {
	Record(ctx context.Context, dl DeadLetter)
}

// LogSink writes dead letters to the structured log, including the full
// envelope and the last error, so operators can replay them by hand.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink on the default logger.
func NewLogSink() *LogSink {
	return &LogSink{logger: slog.Default().With("component", "dead-letter")}
}

// Record logs the dead letter at error level.
func (s *LogSink) Record(ctx context.Context, dl DeadLetter) {
	attrs := []any{
		"topic", dl.Topic,
		"partition", dl.Partition,
		"offset", dl.Offset,
		"reason", dl.Reason,
		"attempts", dl.Attempts,
		"error", dl.LastErr,
		"payload", string(dl.Value),
	}
	if dl.Envelope != nil {
		attrs = append(attrs,
			"event_type", dl.Envelope.EventType,
			"event_id", dl.Envelope.EventID,
			"correlation_id", dl.Envelope.CorrelationID,
		)
	}
	s.logger.ErrorContext(ctx, "event dead-lettered", attrs...)
}
