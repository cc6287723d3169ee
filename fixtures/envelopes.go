package fixtures

import (
	"time"

	"github.com/google/uuid"
	"github.com/terraskye/eventcore"
)

// EnvelopeOption is a functional option for configuring an Envelope.
type EnvelopeOption func(*eventcore.Envelope)

// NewEnvelope creates an Envelope with the given event and options.
func NewEnvelope(event eventcore.Event, opts ...EnvelopeOption) *eventcore.Envelope {
	env := &eventcore.Envelope{
		EventID:    uuid.New(),
		StreamID:   event.AggregateID(),
		Event:      event,
		OccurredAt: time.Now(),
		Metadata:   make(map[string]any),
	}

	for _, opt := range opts {
		opt(env)
	}

	return env
}

// Envelopes wraps events into unpersisted envelopes, ready for Append.
func Envelopes(events ...eventcore.Event) []eventcore.Envelope {
	out := make([]eventcore.Envelope, len(events))
	for i, ev := range events {
		out[i] = *NewEnvelope(ev)
	}
	return out
}

// WithEventID sets a specific event ID.
func WithEventID(id uuid.UUID) EnvelopeOption {
	return func(e *eventcore.Envelope) {
		e.EventID = id
	}
}

// WithVersion sets the stream version.
func WithVersion(v uint64) EnvelopeOption {
	return func(e *eventcore.Envelope) {
		e.Version = v
	}
}

// WithPosition sets the global position.
func WithPosition(p uint64) EnvelopeOption {
	return func(e *eventcore.Envelope) {
		e.Position = p
	}
}

// WithCorrelation sets the correlation and causation ids.
func WithCorrelation(correlationID, causationID string) EnvelopeOption {
	return func(e *eventcore.Envelope) {
		e.CorrelationID = correlationID
		e.CausationID = causationID
	}
}

// WithMetadata adds a metadata entry.
func WithMetadata(key string, value any) EnvelopeOption {
	return func(e *eventcore.Envelope) {
		e.Metadata[key] = value
	}
}
