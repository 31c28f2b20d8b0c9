package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelopeGeneratesIdentifiers(t *testing.T) {
	data := map[string]any{"author_id": int64(7), "name": "Ursula K. Le Guin"}
	env := NewEnvelope("author.created", data, "corr-123")

	assert.Equal(t, "author.created", env.EventType)
	assert.Equal(t, "corr-123", env.CorrelationID)
	assert.Equal(t, data, env.Data)

	_, err := uuid.Parse(env.EventID)
	assert.NoError(t, err, "event id must be a valid uuid")
	assert.Equal(t, time.UTC, env.Timestamp.Location())
	assert.WithinDuration(t, time.Now().UTC(), env.Timestamp, time.Minute)
}

func TestNewEnvelopeUniqueEventIDs(t *testing.T) {
	a := NewEnvelope("author.created", nil, "")
	b := NewEnvelope("author.created", nil, "")
	assert.NotEqual(t, a.EventID, b.EventID)
}

func TestNewEnvelopeCorrelationFallback(t *testing.T) {
	env := NewEnvelope("book.created", nil, "")
	require.NotEmpty(t, env.CorrelationID)
	_, err := uuid.Parse(env.CorrelationID)
	assert.NoError(t, err, "fallback correlation id must be a valid uuid")
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	env := NewEnvelope("book.updated", map[string]any{
		"book_id": float64(42),
		"title":   "The Dispossessed",
	}, "corr-rt")

	value, err := env.Encode()
	require.NoError(t, err)

	decoded, err := Decode(value)
	require.NoError(t, err)
	assert.Equal(t, env.EventType, decoded.EventType)
	assert.Equal(t, env.EventID, decoded.EventID)
	assert.Equal(t, env.CorrelationID, decoded.CorrelationID)
	assert.Equal(t, env.Data, decoded.Data)
	assert.True(t, env.Timestamp.Equal(decoded.Timestamp))
}

func TestEncodeWireFieldNames(t *testing.T) {
	env := NewEnvelope("author.deleted", map[string]any{"author_id": float64(3)}, "corr-w")
	value, err := env.Encode()
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(value, &raw))
	for _, field := range []string{"event_type", "event_id", "timestamp", "correlation_id", "data"} {
		assert.Contains(t, raw, field)
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := []struct {
		name  string
		value []byte
	}{
		{"not json", []byte("definitely not json")},
		{"truncated", []byte(`{"event_type":"author.created","data":`)},
		{"wrong field type", []byte(`{"event_type":12,"data":{}}`)},
		{"bad timestamp", []byte(`{"event_type":"a","timestamp":"yesterday"}`)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.value)
			require.Error(t, err)
			assert.True(t, IsDecodeError(err))
		})
	}
}

func TestDecodeIgnoresUnknownEnvelopeFields(t *testing.T) {
	value := []byte(`{
		"event_type": "book.created",
		"event_id": "e-1",
		"correlation_id": "c-1",
		"schema_version": 2,
		"producer": "books-service",
		"data": {"book_id": 9, "title": "Orsinia", "edition": "first"}
	}`)
	env, err := Decode(value)
	require.NoError(t, err)
	assert.Equal(t, "book.created", env.EventType)
	// Unknown keys inside data survive for forward compatibility.
	assert.Equal(t, "first", env.Data["edition"])
}
