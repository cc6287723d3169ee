package eventcore

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is a domain event describing a change that has happened to an aggregate.
type Event interface {
	AggregateID() string
	EventType() string
}

// Envelope wraps an Event with the data needed to store, trace and replay it.
//
// Envelopes are built by the repository when an aggregate is saved and stamped
// by the event store with their stream version and global position. Once
// persisted an envelope is never modified.
type Envelope struct {
	EventID  uuid.UUID
	StreamID string
	// Version is the 0-based position of the event inside its stream.
	Version uint64
	// Position is the 1-based global sequence number assigned by the store.
	Position      uint64
	CorrelationID string
	CausationID   string
	Metadata      map[string]any
	Event         Event
	OccurredAt    time.Time
}

// TypeName returns the Go type name of v, e.g. "user.Registered".
func TypeName(v any) string {
	return fmt.Sprintf("%T", v)
}
