package user

import (
	"time"

	"github.com/terraskye/eventcore"
)

// Event is the closed set of events of the user aggregate.
type Event interface {
	eventcore.Event
	userEvent()
}

// Registered is the first event of every user stream.
type Registered struct {
	UserID ID        `json:"user_id"`
	Name   Name      `json:"name"`
	At     time.Time `json:"timestamp"`
}

func (e Registered) AggregateID() string { return StreamID(e.UserID) }
func (Registered) EventType() string     { return "UserRegistered" }
func (Registered) userEvent()            {}

// Renamed changes the name of a registered user.
type Renamed struct {
	UserID  ID        `json:"user_id"`
	NewName Name      `json:"new_name"`
	At      time.Time `json:"timestamp"`
}

func (e Renamed) AggregateID() string { return StreamID(e.UserID) }
func (Renamed) EventType() string     { return "UserRenamed" }
func (Renamed) userEvent()            {}

// IsEvent reports whether ev belongs to the user aggregate.
func IsEvent(ev eventcore.Event) bool {
	_, ok := ev.(Event)
	return ok
}

func init() {
	eventcore.RegisterEvent[Registered]()
	eventcore.RegisterEvent[Renamed]()
}
