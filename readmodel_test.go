package eventcore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/terraskye/eventcore"
	"github.com/terraskye/eventcore/eventstore/memory"
	"github.com/terraskye/eventcore/fixtures"
)

type countingModel struct {
	resets   int
	seen     []string
	failOn   string
	handlers *eventcore.EventGroupProcessor
}

func newCountingModel() *countingModel {
	m := &countingModel{}
	m.handlers = eventcore.NewEventGroupProcessor(
		eventcore.OnEvent(func(ctx context.Context, ev fixtures.TestEvent) error {
			if ev.Data == m.failOn {
				return errors.New("cannot apply")
			}
			m.seen = append(m.seen, eventcore.StreamIDFromContext(ctx)+":"+ev.Data)
			return nil
		}),
	)
	return m
}

func (m *countingModel) Handle(ctx context.Context, ev eventcore.Event) error {
	return m.handlers.Handle(ctx, ev)
}

func (m *countingModel) Reset() {
	m.resets++
	m.seen = nil
}

func seedStore(t *testing.T) *memory.MemoryStore {
	t.Helper()

	store := memory.NewMemoryStore()
	for _, id := range []string{"a", "b"} {
		envs := fixtures.Envelopes(fixtures.NewTestEvents(id, 2)...)
		if _, err := store.Append(t.Context(), id, envs, eventcore.NoStream{}); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
	if _, err := store.Append(t.Context(), "a", fixtures.Envelopes(fixtures.OtherEvent{ID: "a"}), eventcore.Any{}); err != nil {
		t.Fatalf("seed other: %v", err)
	}
	return store
}

func TestReplay(t *testing.T) {
	store := seedStore(t)
	m := newCountingModel()
	m.seen = []string{"stale"}

	n, err := eventcore.Replay(t.Context(), store, m)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 applied events, skipped ones excluded, got %d", n)
	}
	if m.resets != 1 {
		t.Fatalf("expected one reset, got %d", m.resets)
	}

	want := []string{"a:0", "a:1", "b:0", "b:1"}
	if len(m.seen) != len(want) {
		t.Fatalf("seen = %v, want %v", m.seen, want)
	}
	for i := range want {
		if m.seen[i] != want[i] {
			t.Fatalf("seen = %v, want %v", m.seen, want)
		}
	}
}

func TestReplay_HandlerError(t *testing.T) {
	store := seedStore(t)
	m := newCountingModel()
	m.failOn = "1"

	n, err := eventcore.Replay(t.Context(), store, m)
	if err == nil {
		t.Fatal("expected replay to stop on a handler error")
	}
	if n != 1 {
		t.Fatalf("expected 1 applied event before the failure, got %d", n)
	}
}

func TestReplay_IteratorError(t *testing.T) {
	boom := errors.New("cursor lost")
	spy := fixtures.NewStoreSpy(memory.NewMemoryStore())
	spy.LoadAllFn = func(ctx context.Context) (*eventcore.Iterator[*eventcore.Envelope], error) {
		return fixtures.FailingIterator(boom, fixtures.NewEnvelope(fixtures.TestEvent{ID: "a", Data: "0"})), nil
	}

	n, err := eventcore.Replay(t.Context(), spy, newCountingModel())
	if !errors.Is(err, boom) {
		t.Fatalf("expected cursor error, got %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 applied event, got %d", n)
	}
}

func TestReplay_LoadAllFailure(t *testing.T) {
	spy := fixtures.NewStoreSpy(memory.NewMemoryStore()).FailOnLoad(errors.New("offline"))
	m := newCountingModel()

	if _, err := eventcore.Replay(t.Context(), spy, m); !errors.Is(err, eventcore.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if m.resets != 0 {
		t.Fatal("a failed replay must not reset the read model")
	}
}
