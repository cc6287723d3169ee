package eventcore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Record is the storage unit of an envelope for a persistent backend.
type Record struct {
	EventID       uuid.UUID       `json:"event_id"`
	AggregateID   string          `json:"aggregate_id"`
	Version       uint64          `json:"version"`
	Position      uint64          `json:"position"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	CausationID   string          `json:"causation_id,omitempty"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// NewRecord converts env into its storage form.
func NewRecord(env *Envelope) (Record, error) {
	if env == nil || env.Event == nil {
		return Record{}, fmt.Errorf("%w: envelope without event", ErrInvalidEventBatch)
	}
	payload, err := json.Marshal(env.Event)
	if err != nil {
		return Record{}, fmt.Errorf("encode %s: %w", env.Event.EventType(), err)
	}
	return Record{
		EventID:       env.EventID,
		AggregateID:   env.StreamID,
		Version:       env.Version,
		Position:      env.Position,
		EventType:     env.Event.EventType(),
		Payload:       payload,
		CorrelationID: env.CorrelationID,
		CausationID:   env.CausationID,
		Metadata:      env.Metadata,
		Timestamp:     env.OccurredAt,
	}, nil
}

// Envelope decodes the record back into an envelope. The event type must have
// been registered.
func (r Record) Envelope() (*Envelope, error) {
	ev, err := DecodeEvent(r.EventType, r.Payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		EventID:       r.EventID,
		StreamID:      r.AggregateID,
		Version:       r.Version,
		Position:      r.Position,
		CorrelationID: r.CorrelationID,
		CausationID:   r.CausationID,
		Metadata:      r.Metadata,
		Event:         ev,
		OccurredAt:    r.Timestamp,
	}, nil
}

// MarshalRecord encodes env as a JSON record.
func MarshalRecord(env *Envelope) ([]byte, error) {
	rec, err := NewRecord(env)
	if err != nil {
		return nil, err
	}
	return json.Marshal(rec)
}

// UnmarshalRecord decodes a JSON record produced by MarshalRecord.
func UnmarshalRecord(data []byte) (*Envelope, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return rec.Envelope()
}
