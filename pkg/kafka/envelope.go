// Package kafka provides the event envelope codec plus producer and consumer
// clients backed by segmentio/kafka-go. Every event crossing a service
// boundary travels inside an Envelope; the consumer dispatches decoded
// envelopes to handlers registered per event type.
package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrDecode marks a malformed envelope. Decode failures are never retried:
// bad wire data does not become valid by retrying, so they route straight to
// the dead-letter sink.
var ErrDecode = errors.New("malformed event envelope")

// Envelope is the wire format shared by every event. It is immutable once
// published; consumers only project Data into their local cache rows.
//
// Data carries the post-change state of the entity (for deleted/unlinked
// events, just the identifying key). Unknown extra fields inside Data are
// preserved so schema evolution on the producing side does not break older
// consumers.
type Envelope struct {
	EventType     string         `json:"event_type"`
	EventID       string         `json:"event_id"`
	Timestamp     time.Time      `json:"timestamp"`
	CorrelationID string         `json:"correlation_id"`
	Data          map[string]any `json:"data"`
}

// NewEnvelope builds an Envelope for the given event type, generating the
// event id and publish timestamp. An empty correlationID gets a fresh id so
// the event is always traceable.
func NewEnvelope(eventType string, data map[string]any, correlationID string) Envelope {
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	return Envelope{
		EventType:     eventType,
		EventID:       uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          data,
	}
}

// Encode serialises the envelope to its JSON wire form.
func (e Envelope) Encode() ([]byte, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding envelope %s: %w", e.EventType, err)
	}
	return value, nil
}

// Decode parses a wire message into an Envelope. Failures wrap ErrDecode.
// Envelope-level fields the decoder does not know are ignored, keeping the
// format forward-compatible.
func Decode(value []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(value, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return e, nil
}
