package stream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Envelope is one published unit on a topic. The bus assigns ID and
// Timestamp; producers only choose the key and payload.
type Envelope struct {
	ID        uuid.UUID       `json:"id"`
	Topic     Topic           `json:"topic"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEnvelope marshals payload and stamps the envelope with a fresh ID and ts.
func NewEnvelope(topic Topic, key string, payload any, ts time.Time) (Envelope, error) {
	var raw json.RawMessage
	switch p := payload.(type) {
	case json.RawMessage:
		raw = append(json.RawMessage(nil), p...)
	case []byte:
		if !json.Valid(p) {
			return Envelope{}, fmt.Errorf("payload for %s is not valid JSON", topic)
		}
		raw = append(json.RawMessage(nil), p...)
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal payload for %s: %w", topic, err)
		}
		raw = data
	}

	return Envelope{
		ID:        uuid.New(),
		Topic:     topic,
		Key:       key,
		Payload:   raw,
		Timestamp: ts.UTC(),
	}, nil
}

// Decode unmarshals the payload into v
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("envelope %s on %s has empty payload", e.ID, e.Topic)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode envelope %s on %s: %w", e.ID, e.Topic, err)
	}
	return nil
}

// Clone returns a copy that shares no memory with e
func (e Envelope) Clone() Envelope {
	c := e
	c.Payload = append(json.RawMessage(nil), e.Payload...)
	return c
}
