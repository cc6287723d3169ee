// Package projection holds read models fed by the event bus.
package projection

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/terraskye/eventcore"
	"github.com/terraskye/eventcore/user"
)

// UserView is the query-side shape of a user.
type UserView struct {
	ID        user.ID
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
	// Version is the stream version of the last applied event.
	Version uint64
}

// UserProjection keeps the current view of every registered user.
type UserProjection struct {
	mu    sync.RWMutex
	users map[user.ID]UserView
	// pending collects live deliveries while a rebuild runs, nil otherwise.
	pending []delivery

	rebuildMu sync.Mutex
	group     *eventcore.EventGroupProcessor
}

type delivery struct {
	event   eventcore.Event
	version uint64
}

// NewUserProjection creates an empty projection.
func NewUserProjection() *UserProjection {
	p := &UserProjection{users: make(map[user.ID]UserView)}
	p.group = eventcore.NewEventGroupProcessor(
		eventcore.OnEvent(p.OnRegistered),
		eventcore.OnEvent(p.OnRenamed),
	)
	return p
}

var _ eventcore.ReadModel = (*UserProjection)(nil)

// Handler returns the typed handler to subscribe on the bus.
func (p *UserProjection) Handler() *eventcore.EventGroupProcessor {
	return p.group
}

// Handle routes ev to OnRegistered or OnRenamed. Other events are skipped.
func (p *UserProjection) Handle(ctx context.Context, ev eventcore.Event) error {
	return p.group.Handle(ctx, ev)
}

// Reset empties the projection.
func (p *UserProjection) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users = make(map[user.ID]UserView)
}

// OnRegistered ignores a user it already holds, so a redelivery cannot
// undo later renames.
func (p *UserProjection) OnRegistered(ctx context.Context, ev user.Registered) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	version := eventcore.VersionFromContext(ctx)
	p.record(ev, version)
	applyRegistered(p.users, ev, version)
	return nil
}

// OnRenamed ignores users it has not seen registered and renames no newer
// than the view.
func (p *UserProjection) OnRenamed(ctx context.Context, ev user.Renamed) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	version := eventcore.VersionFromContext(ctx)
	p.record(ev, version)
	applyRenamed(p.users, ev, version)
	return nil
}

// record keeps ev for the running rebuild. p.mu must be held.
func (p *UserProjection) record(ev eventcore.Event, version uint64) {
	if p.pending != nil {
		p.pending = append(p.pending, delivery{event: ev, version: version})
	}
}

func applyRegistered(users map[user.ID]UserView, ev user.Registered, version uint64) {
	if _, ok := users[ev.UserID]; ok {
		return
	}
	users[ev.UserID] = UserView{
		ID:        ev.UserID,
		Name:      ev.Name.String(),
		CreatedAt: ev.At,
		UpdatedAt: ev.At,
		Version:   version,
	}
}

func applyRenamed(users map[user.ID]UserView, ev user.Renamed, version uint64) {
	view, ok := users[ev.UserID]
	if !ok {
		return
	}
	if version != 0 && version <= view.Version {
		return
	}
	view.Name = ev.NewName.String()
	view.UpdatedAt = ev.At
	view.Version = version
	users[ev.UserID] = view
}

// Get returns the view of id.
func (p *UserProjection) Get(id user.ID) (UserView, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.users[id]
	return v, ok
}

// All returns every view sorted by id.
func (p *UserProjection) All() []UserView {
	p.mu.RLock()
	out := make([]UserView, 0, len(p.users))
	for _, v := range p.users {
		out = append(out, v)
	}
	p.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (p *UserProjection) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.users)
}

// Rebuild replays the global log of store into a fresh model and swaps it in
// once complete. Readers keep seeing the previous model until then. Events
// delivered while the replay runs are applied to the fresh model before the
// swap.
func (p *UserProjection) Rebuild(ctx context.Context, store eventcore.EventStore) (int, error) {
	p.rebuildMu.Lock()
	defer p.rebuildMu.Unlock()

	p.mu.Lock()
	p.pending = []delivery{}
	p.mu.Unlock()

	fresh := NewUserProjection()
	n, err := eventcore.Replay(ctx, store, fresh)

	p.mu.Lock()
	defer p.mu.Unlock()

	pending := p.pending
	p.pending = nil
	if err != nil {
		return n, err
	}

	for _, d := range pending {
		switch ev := d.event.(type) {
		case user.Registered:
			applyRegistered(fresh.users, ev, d.version)
		case user.Renamed:
			applyRenamed(fresh.users, ev, d.version)
		}
	}
	p.users = fresh.users
	return n, nil
}
