package projection

import (
	"context"

	"github.com/terraskye/eventcore"
	"github.com/terraskye/eventcore/user"
)

// GetUser asks for the view of one user.
type GetUser struct {
	UserID user.ID
}

func (q GetUser) ID() []byte { return []byte(q.UserID.String()) }

// ListUsers asks for every user, sorted by id.
type ListUsers struct{}

func (ListUsers) ID() []byte { return nil }

// GetUserHandler answers GetUser. A missing user is *eventcore.AggregateNotFoundError.
func GetUserHandler(p *UserProjection) eventcore.QueryHandler[GetUser, *UserView] {
	return eventcore.NewQueryHandlerFunc(func(ctx context.Context, q GetUser) (*UserView, error) {
		v, ok := p.Get(q.UserID)
		if !ok {
			return nil, &eventcore.AggregateNotFoundError{ID: user.StreamID(q.UserID)}
		}
		return &v, nil
	})
}

// ListUsersHandler answers ListUsers.
func ListUsersHandler(p *UserProjection) eventcore.QueryHandler[ListUsers, []UserView] {
	return eventcore.NewQueryHandlerFunc(func(ctx context.Context, q ListUsers) ([]UserView, error) {
		return p.All(), nil
	})
}

// RegisterQueries registers both handlers on bus.
func RegisterQueries(bus *eventcore.QueryBus, p *UserProjection) {
	eventcore.RegisterQueryHandler(bus, GetUserHandler(p))
	eventcore.RegisterQueryHandler(bus, ListUsersHandler(p))
}
