package user

import (
	"github.com/terraskye/eventcore"
)

// RegisterUser asks for a new user.
type RegisterUser struct {
	// CommandID becomes the causation id of the produced events. A fresh
	// id is generated when empty.
	CommandID string
	UserID    uint32
	Name      string
}

func (c RegisterUser) AggregateID() string { return StreamID(ID(c.UserID)) }

// Validate checks the fields without touching the store.
func (c RegisterUser) Validate() error {
	if _, err := NewID(c.UserID); err != nil {
		return err
	}
	_, err := NewName(c.Name)
	return err
}

// RenameUser asks for a new name for an existing user.
type RenameUser struct {
	CommandID string
	UserID    uint32
	NewName   string
}

func (c RenameUser) AggregateID() string { return StreamID(ID(c.UserID)) }

// Validate checks the fields without touching the store.
func (c RenameUser) Validate() error {
	if _, err := NewID(c.UserID); err != nil {
		return err
	}
	_, err := NewName(c.NewName)
	return err
}

var (
	_ eventcore.Command   = RegisterUser{}
	_ eventcore.Validator = RegisterUser{}
	_ eventcore.Command   = RenameUser{}
	_ eventcore.Validator = RenameUser{}
)
