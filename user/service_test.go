package user_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/terraskye/eventcore"
	"github.com/terraskye/eventcore/eventstore/memory"
	"github.com/terraskye/eventcore/fixtures"
	"github.com/terraskye/eventcore/user"
	"golang.org/x/sync/errgroup"
)

func newService(t *testing.T, store eventcore.EventStore, bus eventcore.EventBus) *user.CommandService {
	t.Helper()
	ids := []string{"corr-1", "corr-2", "corr-3", "corr-4"}
	var next int
	return user.NewCommandService(user.NewRepository(store), bus,
		user.WithRetryBackOff(user.ConstantRetry(3, time.Millisecond)),
		user.WithIDGenerator(func() string {
			id := ids[next%len(ids)]
			next++
			return id
		}),
	)
}

func TestService_Register(t *testing.T) {
	bus := fixtures.NewEventBusSpy()
	svc := newService(t, memory.NewMemoryStore(), bus)

	res, err := svc.Register(t.Context(), user.RegisterUser{CommandID: "cmd-1", UserID: 1, Name: "Alice"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if res.StreamID != "user-1" || res.Version != 0 || len(res.Events) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}

	published := bus.PublishedEvents()
	if len(published) != 1 {
		t.Fatalf("expected one published event, got %d", len(published))
	}
	env := published[0]
	if env.CorrelationID != "corr-1" || env.CausationID != "cmd-1" {
		t.Fatalf("unexpected ids: correlation=%q causation=%q", env.CorrelationID, env.CausationID)
	}
}

func TestService_CausationDefaultsToCorrelation(t *testing.T) {
	bus := fixtures.NewEventBusSpy()
	svc := newService(t, memory.NewMemoryStore(), bus)

	if _, err := svc.Register(t.Context(), user.RegisterUser{UserID: 1, Name: "Alice"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	env := bus.PublishedEvents()[0]
	if env.CausationID != env.CorrelationID {
		t.Fatalf("expected causation %q to equal correlation %q", env.CausationID, env.CorrelationID)
	}
}

func TestService_RegisterRejected(t *testing.T) {
	tests := []struct {
		name string
		cmd  user.RegisterUser
	}{
		{name: "zero id", cmd: user.RegisterUser{UserID: 0, Name: "Bob"}},
		{name: "empty name", cmd: user.RegisterUser{UserID: 2, Name: ""}},
		{name: "duplicate id", cmd: user.RegisterUser{UserID: 1, Name: "Bob"}},
		{name: "duplicate name", cmd: user.RegisterUser{UserID: 2, Name: "Alice"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := fixtures.NewEventBusSpy()
			store := memory.NewMemoryStore()
			svc := newService(t, store, bus)
			if _, err := svc.Register(t.Context(), user.RegisterUser{UserID: 1, Name: "Alice"}); err != nil {
				t.Fatalf("seed: %v", err)
			}

			res, err := svc.Register(t.Context(), tt.cmd)
			if !errors.Is(err, eventcore.ErrValidation) {
				t.Fatalf("expected a validation error, got %v", err)
			}
			if res.Version != -1 || len(res.Events) != 0 {
				t.Fatalf("unexpected result: %+v", res)
			}
			if len(bus.PublishedEvents()) != 1 {
				t.Fatal("a rejected command must not publish")
			}
		})
	}
}

func TestService_ConcurrentRegisterSameName(t *testing.T) {
	store := memory.NewMemoryStore()
	svc := user.NewCommandService(user.NewRepository(store), fixtures.NewEventBusSpy())

	const contenders = 8
	var won, rejected atomic.Int32
	var g errgroup.Group
	for i := range contenders {
		g.Go(func() error {
			_, err := svc.Register(t.Context(), user.RegisterUser{UserID: uint32(i + 1), Name: "Alice"})
			switch {
			case err == nil:
				won.Add(1)
			case errors.Is(err, eventcore.ErrValidation):
				rejected.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("register: %v", err)
	}
	if won.Load() != 1 || rejected.Load() != contenders-1 {
		t.Fatalf("expected one winner, got won=%d rejected=%d", won.Load(), rejected.Load())
	}
	if n := store.Streams(); n != 1 {
		t.Fatalf("expected one stored user, got %d", n)
	}
}

func TestService_RenameRetriesConflicts(t *testing.T) {
	spy := fixtures.NewStoreSpy(memory.NewMemoryStore())
	svc := newService(t, spy, fixtures.NewEventBusSpy())

	if _, err := svc.Register(t.Context(), user.RegisterUser{UserID: 1, Name: "Alice"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	var conflicts int
	spy.AppendFn = func(ctx context.Context, streamID string, events []eventcore.Envelope, expected eventcore.StreamState) (eventcore.AppendResult, error) {
		if conflicts < 2 {
			conflicts++
			return eventcore.AppendResult{}, &eventcore.StreamRevisionConflictError{
				Stream:           streamID,
				ExpectedRevision: expected,
				ActualRevision:   1,
			}
		}
		return spy.EventStore.Append(ctx, streamID, events, expected)
	}

	res, err := svc.Rename(t.Context(), user.RenameUser{UserID: 1, NewName: "Alice Smith"})
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if res.Version != 1 {
		t.Fatalf("expected version 1, got %d", res.Version)
	}
	if appends, loads := spy.Calls(); appends != 4 || loads < 3 {
		t.Fatalf("expected 3 rename attempts after the register, got %d appends %d loads", appends, loads)
	}
}

func TestService_RenameGivesUpAfterRetries(t *testing.T) {
	spy := fixtures.NewStoreSpy(memory.NewMemoryStore())
	svc := newService(t, spy, fixtures.NewEventBusSpy())
	if _, err := svc.Register(t.Context(), user.RegisterUser{UserID: 1, Name: "Alice"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	spy.AppendFn = func(ctx context.Context, streamID string, events []eventcore.Envelope, expected eventcore.StreamState) (eventcore.AppendResult, error) {
		return eventcore.AppendResult{}, &eventcore.StreamRevisionConflictError{Stream: streamID, ExpectedRevision: expected, ActualRevision: 5}
	}

	_, err := svc.Rename(t.Context(), user.RenameUser{UserID: 1, NewName: "Alice Smith"})
	if !errors.Is(err, eventcore.ErrConcurrencyViolation) {
		t.Fatalf("expected a concurrency violation, got %v", err)
	}
	if appends, _ := spy.Calls(); appends != 1+4 {
		t.Fatalf("expected 1 initial attempt and 3 retries, got %d rename appends", appends-1)
	}
}

func TestService_RenameRejected(t *testing.T) {
	spy := fixtures.NewStoreSpy(memory.NewMemoryStore())
	svc := newService(t, spy, fixtures.NewEventBusSpy())
	if _, err := svc.Register(t.Context(), user.RegisterUser{UserID: 1, Name: "Alice"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	tests := []struct {
		name    string
		cmd     user.RenameUser
		wantErr error
	}{
		{name: "unknown user", cmd: user.RenameUser{UserID: 9, NewName: "Bob"}, wantErr: eventcore.ErrAggregateNotFound},
		{name: "same name", cmd: user.RenameUser{UserID: 1, NewName: "alice"}, wantErr: eventcore.ErrValidation},
		{name: "blank name", cmd: user.RenameUser{UserID: 1, NewName: "  "}, wantErr: eventcore.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before, _ := spy.Calls()
			if _, err := svc.Rename(t.Context(), tt.cmd); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if after, _ := spy.Calls(); after != before {
				t.Fatal("a rejected rename must not be retried or appended")
			}
		})
	}
}

func TestService_PublishFailures(t *testing.T) {
	bus := fixtures.NewEventBusSpy()
	svc := newService(t, memory.NewMemoryStore(), bus)

	herr := &eventcore.HandlerError{Handler: "mailer", Err: errors.New("smtp down")}
	bus.PublishFn = func(ctx context.Context, env *eventcore.Envelope) ([]*eventcore.HandlerError, error) {
		return []*eventcore.HandlerError{herr}, nil
	}
	res, err := svc.Register(t.Context(), user.RegisterUser{UserID: 1, Name: "Alice"})
	if err != nil {
		t.Fatalf("non-critical failures must not fail the command: %v", err)
	}
	if len(res.HandlerErrors) != 1 || res.HandlerErrors[0] != herr {
		t.Fatalf("expected the handler error in the result, got %v", res.HandlerErrors)
	}

	bus.PublishFn = func(ctx context.Context, env *eventcore.Envelope) ([]*eventcore.HandlerError, error) {
		return nil, &eventcore.PublishError{Cause: &eventcore.HandlerError{Handler: "ledger", Critical: true, Err: errors.New("down")}}
	}
	res, err = svc.Register(t.Context(), user.RegisterUser{UserID: 2, Name: "Bob"})
	if !errors.Is(err, eventcore.ErrPublish) {
		t.Fatalf("expected ErrPublish, got %v", err)
	}
	if res.Version != 0 {
		t.Fatalf("the events stay persisted, got version %d", res.Version)
	}
}
