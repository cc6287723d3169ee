package user

import (
	"context"
	"fmt"

	"github.com/terraskye/eventcore"
)

// Repository persists users in an event store.
type Repository struct {
	*eventcore.Repository[*User]
}

// NewRepository creates a user repository over store.
func NewRepository(store eventcore.EventStore, opts ...eventcore.RepositoryOption) *Repository {
	return &Repository{
		Repository: eventcore.NewRepository(store, LoadFromHistory, opts...),
	}
}

// Get loads the user with the given id.
func (r *Repository) Get(ctx context.Context, id ID) (*User, error) {
	return r.GetByID(ctx, StreamID(id))
}

// FindByName scans every user stream and returns the first registered user
// whose current name is exactly name. It is a full scan of the log.
func (r *Repository) FindByName(ctx context.Context, name Name) (*User, error) {
	it, err := r.Store().LoadAll(ctx)
	if err != nil {
		return nil, eventcore.WrapEventStoreError(fmt.Errorf("find user by name: %w", err))
	}

	var order []string
	histories := make(map[string][]eventcore.Event)
	for it.Next(ctx) {
		env := it.Value()
		if !IsStream(env.StreamID) || !IsEvent(env.Event) {
			continue
		}
		if _, seen := histories[env.StreamID]; !seen {
			order = append(order, env.StreamID)
		}
		histories[env.StreamID] = append(histories[env.StreamID], env.Event)
	}
	if err := it.Err(); err != nil {
		return nil, eventcore.WrapEventStoreError(fmt.Errorf("find user by name: %w", err))
	}

	for _, streamID := range order {
		u, err := LoadFromHistory(streamID, histories[streamID])
		if err != nil {
			return nil, err
		}
		if u.Name() == name {
			return u, nil
		}
	}
	return nil, &eventcore.AggregateNotFoundError{ID: "name:" + name.String()}
}
