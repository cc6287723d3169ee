package projection_test

import (
	"errors"
	"testing"

	"github.com/terraskye/eventcore"
	"github.com/terraskye/eventcore/projection"
	"github.com/terraskye/eventcore/user"
)

func TestQueries(t *testing.T) {
	p := projection.NewUserProjection()
	_ = apply(t, p, user.Registered{UserID: 1, Name: "Alice", At: t0}, 0)
	_ = apply(t, p, user.Registered{UserID: 2, Name: "Bob", At: t0}, 0)

	bus := eventcore.NewQueryBus()
	projection.RegisterQueries(bus, p)

	get := eventcore.NewQueryGateway[projection.GetUser, *projection.UserView](bus)
	v, err := get.HandleQuery(t.Context(), projection.GetUser{UserID: 2})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v.Name != "Bob" {
		t.Fatalf("unexpected view: %+v", v)
	}

	_, err = get.HandleQuery(t.Context(), projection.GetUser{UserID: 3})
	if !errors.Is(err, eventcore.ErrAggregateNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	list := eventcore.NewQueryGateway[projection.ListUsers, []projection.UserView](bus)
	all, err := list.HandleQuery(t.Context(), projection.ListUsers{})
	if err != nil || len(all) != 2 {
		t.Fatalf("list: %v, %v", all, err)
	}
}
