package fixtures

import (
	"context"
	"sync"

	"github.com/terraskye/eventcore"
)

// StoreSpy wraps an EventStore, counting calls and allowing failures to be
// injected. Calls without an override are forwarded to the wrapped store.
type StoreSpy struct {
	eventcore.EventStore

	mu sync.Mutex

	// Function overrides
	AppendFn  func(ctx context.Context, streamID string, events []eventcore.Envelope, expected eventcore.StreamState) (eventcore.AppendResult, error)
	LoadFn    func(ctx context.Context, streamID string) ([]*eventcore.Envelope, error)
	LoadAllFn func(ctx context.Context) (*eventcore.Iterator[*eventcore.Envelope], error)

	// Call tracking
	AppendCalls  int
	LoadCalls    int
	LoadAllCalls int

	// Captured arguments from last call
	LastAppendEvents   []eventcore.Envelope
	LastAppendExpected eventcore.StreamState

	appendErr error
	loadErr   error
}

// NewStoreSpy wraps store.
func NewStoreSpy(store eventcore.EventStore) *StoreSpy {
	return &StoreSpy{EventStore: store}
}

// FailOnAppend makes every Append return err.
func (s *StoreSpy) FailOnAppend(err error) *StoreSpy {
	s.appendErr = err
	return s
}

// FailOnLoad makes every Load and LoadAll return err.
func (s *StoreSpy) FailOnLoad(err error) *StoreSpy {
	s.loadErr = err
	return s
}

func (s *StoreSpy) Append(ctx context.Context, streamID string, events []eventcore.Envelope, expected eventcore.StreamState) (eventcore.AppendResult, error) {
	s.mu.Lock()
	s.AppendCalls++
	s.LastAppendEvents = append([]eventcore.Envelope(nil), events...)
	s.LastAppendExpected = expected
	s.mu.Unlock()

	if s.AppendFn != nil {
		return s.AppendFn(ctx, streamID, events, expected)
	}
	if s.appendErr != nil {
		return eventcore.AppendResult{}, s.appendErr
	}
	return s.EventStore.Append(ctx, streamID, events, expected)
}

func (s *StoreSpy) Load(ctx context.Context, streamID string) ([]*eventcore.Envelope, error) {
	s.mu.Lock()
	s.LoadCalls++
	s.mu.Unlock()

	if s.LoadFn != nil {
		return s.LoadFn(ctx, streamID)
	}
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.EventStore.Load(ctx, streamID)
}

func (s *StoreSpy) LoadAll(ctx context.Context) (*eventcore.Iterator[*eventcore.Envelope], error) {
	s.mu.Lock()
	s.LoadAllCalls++
	s.mu.Unlock()

	if s.LoadAllFn != nil {
		return s.LoadAllFn(ctx)
	}
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.EventStore.LoadAll(ctx)
}

// Calls returns the Append and Load counters.
func (s *StoreSpy) Calls() (appends, loads int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.AppendCalls, s.LoadCalls
}
