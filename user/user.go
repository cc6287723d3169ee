// Package user holds the user aggregate, its repository and command service.
package user

import (
	"fmt"
	"time"

	"github.com/terraskye/eventcore"
)

var now = time.Now

// User is an event-sourced aggregate. It is owned by the operation that
// created or loaded it and must not be shared across goroutines.
type User struct {
	eventcore.AggregateBase

	id           ID
	name         Name
	registered   bool
	registeredAt time.Time
	renamedAt    time.Time
}

// New validates id and name and stages a Registered event. Uniqueness is
// checked by the Registrar, not here.
func New(id uint32, name string) (*User, error) {
	uid, err := NewID(id)
	if err != nil {
		return nil, err
	}
	n, err := NewName(name)
	if err != nil {
		return nil, err
	}

	u := &User{AggregateBase: eventcore.NewAggregateBase(StreamID(uid))}
	u.raise(Registered{UserID: uid, Name: n, At: now().UTC()})
	return u, nil
}

// Rename stages a Renamed event. The new name must differ from the current
// one ignoring case.
func (u *User) Rename(name string) error {
	if !u.registered {
		return fmt.Errorf("rename %s: user was never registered: %w", u.AggregateID(), eventcore.ErrInvalidState)
	}
	n, err := NewName(name)
	if err != nil {
		return err
	}
	if n.SameAs(u.name) {
		return eventcore.NewValidationError("name", "new name %q is the same as the current name", n)
	}

	u.raise(Renamed{UserID: u.id, NewName: n, At: now().UTC()})
	return nil
}

func (u *User) raise(ev Event) {
	u.apply(ev)
	u.Record(ev)
}

// apply is the pure state transition of the aggregate.
func (u *User) apply(ev eventcore.Event) {
	switch e := ev.(type) {
	case Registered:
		u.id = e.UserID
		u.name = e.Name
		u.registered = true
		u.registeredAt = e.At
	case Renamed:
		u.name = e.NewName
		u.renamedAt = e.At
	default:
		panic(fmt.Sprintf("user: unhandled event %T", ev))
	}
}

// LoadFromHistory folds history into a user. The resulting version is the
// index of the last event; no change is staged.
func LoadFromHistory(streamID string, history []eventcore.Event) (*User, error) {
	if len(history) == 0 {
		return nil, &eventcore.AggregateNotFoundError{ID: streamID}
	}

	u := &User{AggregateBase: eventcore.NewAggregateBase(streamID)}
	for _, ev := range history {
		u.apply(ev)
	}
	u.SetVersion(int64(len(history) - 1))
	return u, nil
}

func (u *User) ID() ID                  { return u.id }
func (u *User) Name() Name              { return u.name }
func (u *User) Registered() bool        { return u.registered }
func (u *User) RegisteredAt() time.Time { return u.registeredAt }

// RenamedAt is zero if the user was never renamed.
func (u *User) RenamedAt() time.Time { return u.renamedAt }
