package eventcore

import "time"

var now = time.Now

// Aggregate is the interface that all event-sourced aggregates must implement.
type Aggregate interface {

	// AggregateID returns the stream id of the aggregate.
	AggregateID() string

	// Version returns the version of the last applied event, -1 if none.
	Version() int64

	// PersistedVersion returns the version the aggregate had when it was
	// loaded, i.e. Version minus the number of uncommitted events.
	PersistedVersion() int64

	// UncommittedEvents returns the events staged since the aggregate was loaded.
	UncommittedEvents() []Event

	// MarkCommitted clears the staged events. It must only be called once the
	// events have been persisted.
	MarkCommitted()
}

// AggregateBase carries the bookkeeping shared by all aggregates. Embed it
// and call Record from mutators after the event has been applied.
type AggregateBase struct {
	id      string
	version int64
	changes []Event
}

// NewAggregateBase creates an aggregate base with no applied events.
func NewAggregateBase(id string) AggregateBase {
	return AggregateBase{
		id:      id,
		version: -1,
	}
}

// AggregateID implements the AggregateID method of the Aggregate interface.
func (a *AggregateBase) AggregateID() string {
	return a.id
}

// SetAggregateID sets the stream id, used when rebuilding from history.
func (a *AggregateBase) SetAggregateID(id string) {
	a.id = id
}

// Version implements the Version method of the Aggregate interface.
func (a *AggregateBase) Version() int64 {
	return a.version
}

// SetVersion sets the version of the aggregate.
func (a *AggregateBase) SetVersion(v int64) {
	a.version = v
}

// PersistedVersion implements the PersistedVersion method of the Aggregate interface.
func (a *AggregateBase) PersistedVersion() int64 {
	return a.version - int64(len(a.changes))
}

// UncommittedEvents returns a copy of the staged events.
func (a *AggregateBase) UncommittedEvents() []Event {
	out := make([]Event, len(a.changes))
	copy(out, a.changes)
	return out
}

// MarkCommitted implements the MarkCommitted method of the Aggregate interface.
func (a *AggregateBase) MarkCommitted() {
	a.changes = nil
}

// Record stages an already applied event and advances the version.
func (a *AggregateBase) Record(event Event) {
	a.changes = append(a.changes, event)
	a.version++
}
