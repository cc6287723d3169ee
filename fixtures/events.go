// Package fixtures provides test doubles for the eventcore contracts.
package fixtures

import (
	"fmt"

	"github.com/terraskye/eventcore"
)

// TestEvent is a configurable test event implementing the Event interface.
type TestEvent struct {
	ID   string
	Type string
	Data string
}

func (e TestEvent) AggregateID() string { return e.ID }
func (e TestEvent) EventType() string   { return e.Type }

// OtherEvent is a second event type, useful for routing tests.
type OtherEvent struct {
	ID string
}

func (e OtherEvent) AggregateID() string { return e.ID }
func (e OtherEvent) EventType() string   { return "OtherEvent" }

// NewTestEvents creates count events for stream id, typed "TestEvent" with
// Data set to their index.
func NewTestEvents(id string, count int) []eventcore.Event {
	events := make([]eventcore.Event, count)
	for i := range events {
		events[i] = TestEvent{ID: id, Type: "TestEvent", Data: fmt.Sprintf("%d", i)}
	}
	return events
}
