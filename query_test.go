package eventcore_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/terraskye/eventcore"
	"github.com/terraskye/eventcore/projection"
	"github.com/terraskye/eventcore/user"
)

var alice = projection.UserView{ID: 1, Name: "Alice"}

func getUser(fn func(ctx context.Context, q projection.GetUser) (*projection.UserView, error)) eventcore.QueryHandler[projection.GetUser, *projection.UserView] {
	return eventcore.NewQueryHandlerFunc(fn)
}

func TestNewQueryHandlerFunc(t *testing.T) {
	type ctxKey string

	tests := []struct {
		name     string
		ctx      context.Context
		query    projection.GetUser
		handler  func(ctx context.Context, q projection.GetUser) (*projection.UserView, error)
		wantName string
		wantErr  error
	}{
		{
			name:  "returns result",
			ctx:   t.Context(),
			query: projection.GetUser{UserID: 1},
			handler: func(ctx context.Context, q projection.GetUser) (*projection.UserView, error) {
				v := alice
				return &v, nil
			},
			wantName: "Alice",
		},
		{
			name:  "propagates error",
			ctx:   t.Context(),
			query: projection.GetUser{UserID: 7},
			handler: func(ctx context.Context, q projection.GetUser) (*projection.UserView, error) {
				return nil, &eventcore.AggregateNotFoundError{ID: user.StreamID(q.UserID)}
			},
			wantErr: eventcore.ErrAggregateNotFound,
		},
		{
			name:  "receives context",
			ctx:   context.WithValue(t.Context(), ctxKey("tenant"), "acme"),
			query: projection.GetUser{UserID: 1},
			handler: func(ctx context.Context, q projection.GetUser) (*projection.UserView, error) {
				return &projection.UserView{ID: q.UserID, Name: ctx.Value(ctxKey("tenant")).(string)}, nil
			},
			wantName: "acme",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view, err := getUser(tt.handler).HandleQuery(tt.ctx, tt.query)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				if view != nil {
					t.Errorf("expected nil view, got %+v", view)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if view == nil || view.Name != tt.wantName {
				t.Errorf("view = %+v, want name %q", view, tt.wantName)
			}
		})
	}
}

func TestQueryGateway_HandleQuery(t *testing.T) {
	bus := eventcore.NewQueryBus()
	eventcore.RegisterQueryHandler(bus, getUser(func(ctx context.Context, q projection.GetUser) (*projection.UserView, error) {
		return &projection.UserView{ID: q.UserID, Name: "user-" + q.UserID.String()}, nil
	}))

	view, err := eventcore.NewQueryGateway[projection.GetUser, *projection.UserView](bus).
		HandleQuery(t.Context(), projection.GetUser{UserID: 42})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.Name != "user-42" {
		t.Errorf("Name = %q, want user-42", view.Name)
	}
}

func TestQueryGateway_UnregisteredHandler(t *testing.T) {
	bus := eventcore.NewQueryBus()

	_, err := eventcore.NewQueryGateway[projection.GetUser, *projection.UserView](bus).
		HandleQuery(t.Context(), projection.GetUser{UserID: 1})
	if !errors.Is(err, eventcore.ErrHandlerNotFound) {
		t.Errorf("error = %v, want %v", err, eventcore.ErrHandlerNotFound)
	}
}

func TestQueryGateway_ResultTypeIsPartOfTheKey(t *testing.T) {
	bus := eventcore.NewQueryBus()
	eventcore.RegisterQueryHandler(bus, getUser(func(ctx context.Context, q projection.GetUser) (*projection.UserView, error) {
		return &projection.UserView{Name: "pointer"}, nil
	}))
	eventcore.RegisterQueryHandler(bus, eventcore.NewQueryHandlerFunc(func(ctx context.Context, q projection.GetUser) (projection.UserView, error) {
		return projection.UserView{Name: "value"}, nil
	}))

	ptr, err := eventcore.NewQueryGateway[projection.GetUser, *projection.UserView](bus).HandleQuery(t.Context(), projection.GetUser{UserID: 1})
	if err != nil || ptr.Name != "pointer" {
		t.Fatalf("pointer gateway: %+v, %v", ptr, err)
	}
	val, err := eventcore.NewQueryGateway[projection.GetUser, projection.UserView](bus).HandleQuery(t.Context(), projection.GetUser{UserID: 1})
	if err != nil || val.Name != "value" {
		t.Fatalf("value gateway: %+v, %v", val, err)
	}

	// Same query, unregistered result type.
	_, err = eventcore.NewQueryGateway[projection.GetUser, []projection.UserView](bus).HandleQuery(t.Context(), projection.GetUser{UserID: 1})
	if !errors.Is(err, eventcore.ErrHandlerNotFound) {
		t.Fatalf("error = %v, want %v", err, eventcore.ErrHandlerNotFound)
	}
}

func TestQueryGateway_MultipleQueries(t *testing.T) {
	p := projection.NewUserProjection()
	for _, ev := range []user.Registered{{UserID: 2, Name: "Bob"}, {UserID: 1, Name: "Alice"}} {
		if err := p.OnRegistered(t.Context(), ev); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}

	bus := eventcore.NewQueryBus()
	projection.RegisterQueries(bus, p)

	view, err := eventcore.NewQueryGateway[projection.GetUser, *projection.UserView](bus).HandleQuery(t.Context(), projection.GetUser{UserID: 2})
	if err != nil || view.Name != "Bob" {
		t.Fatalf("get: %+v, %v", view, err)
	}

	all, err := eventcore.NewQueryGateway[projection.ListUsers, []projection.UserView](bus).HandleQuery(t.Context(), projection.ListUsers{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].Name != "Alice" || all[1].Name != "Bob" {
		t.Errorf("list = %+v", all)
	}
}

func TestQueryGateway_PropagatesHandlerError(t *testing.T) {
	bus := eventcore.NewQueryBus()
	offline := errors.New("read model offline")
	eventcore.RegisterQueryHandler(bus, getUser(func(ctx context.Context, q projection.GetUser) (*projection.UserView, error) {
		return nil, offline
	}))

	_, err := eventcore.NewQueryGateway[projection.GetUser, *projection.UserView](bus).HandleQuery(t.Context(), projection.GetUser{UserID: 1})
	if !errors.Is(err, offline) {
		t.Errorf("error = %v, want %v", err, offline)
	}
}

func TestQueryGateway_CancelledContext(t *testing.T) {
	bus := eventcore.NewQueryBus()
	eventcore.RegisterQueryHandler(bus, getUser(func(ctx context.Context, q projection.GetUser) (*projection.UserView, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v := alice
		return &v, nil
	}))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := eventcore.NewQueryGateway[projection.GetUser, *projection.UserView](bus).HandleQuery(ctx, projection.GetUser{UserID: 1})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want %v", err, context.Canceled)
	}
}

func TestQueryBus_DuplicatePanics(t *testing.T) {
	bus := eventcore.NewQueryBus()
	projection.RegisterQueries(bus, projection.NewUserProjection())

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	eventcore.RegisterQueryHandler(bus, projection.GetUserHandler(projection.NewUserProjection()))
}

func TestQueryBus_MiddlewareOrder(t *testing.T) {
	bus := eventcore.NewQueryBus()

	var trail []string
	mw := func(name string) eventcore.HandlerOption {
		return eventcore.WithQueryMiddleware(func(next eventcore.QueryHandler[projection.GetUser, *projection.UserView]) eventcore.QueryHandler[projection.GetUser, *projection.UserView] {
			return getUser(func(ctx context.Context, q projection.GetUser) (*projection.UserView, error) {
				trail = append(trail, name)
				return next.HandleQuery(ctx, q)
			})
		})
	}

	eventcore.RegisterQueryHandler(bus, getUser(func(ctx context.Context, q projection.GetUser) (*projection.UserView, error) {
		trail = append(trail, "handler")
		return &projection.UserView{ID: q.UserID}, nil
	}), mw("inner"), mw("outer"))

	view, err := eventcore.NewQueryGateway[projection.GetUser, *projection.UserView](bus).HandleQuery(t.Context(), projection.GetUser{UserID: 9})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.ID != 9 {
		t.Fatalf("ID = %d, want 9", view.ID)
	}
	if got := strings.Join(trail, ","); got != "outer,inner,handler" {
		t.Fatalf("trail = %s, want outer,inner,handler", got)
	}
}
