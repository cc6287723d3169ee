package fixtures

import (
	"context"
	"sync"

	"github.com/terraskye/eventcore"
)

// EventBusSpy is a configurable EventBus for testing. It records published
// envelopes and subscriptions without dispatching anything.
type EventBusSpy struct {
	mu sync.Mutex

	// Function overrides
	PublishFn func(ctx context.Context, env *eventcore.Envelope) ([]*eventcore.HandlerError, error)
	RetryFn   func(ctx context.Context, match func(eventcore.DeadLetter) bool) (eventcore.RetryReport, error)

	// Captured calls
	Published     []*eventcore.Envelope
	Subscriptions []Subscription
	CloseCalls    int
}

// Subscription captures details of a Subscribe call.
type Subscription struct {
	Name    string
	Handler eventcore.EventHandler
	Config  eventcore.SubscriberConfig
}

// NewEventBusSpy creates a new EventBusSpy.
func NewEventBusSpy() *EventBusSpy {
	return &EventBusSpy{}
}

var _ eventcore.EventBus = (*EventBusSpy)(nil)

func (b *EventBusSpy) Subscribe(name string, handler eventcore.EventHandler, opts ...eventcore.SubscriberOption) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Subscriptions = append(b.Subscriptions, Subscription{
		Name:    name,
		Handler: handler,
		Config:  eventcore.NewSubscriberConfig(0, opts...),
	})
	return nil
}

func (b *EventBusSpy) Publish(ctx context.Context, env *eventcore.Envelope) ([]*eventcore.HandlerError, error) {
	b.mu.Lock()
	b.Published = append(b.Published, env)
	b.mu.Unlock()

	if b.PublishFn != nil {
		return b.PublishFn(ctx, env)
	}
	return nil, nil
}

func (b *EventBusSpy) Retry(ctx context.Context, match func(eventcore.DeadLetter) bool) (eventcore.RetryReport, error) {
	if b.RetryFn != nil {
		return b.RetryFn(ctx, match)
	}
	return eventcore.RetryReport{}, nil
}

func (b *EventBusSpy) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.CloseCalls++
	return nil
}

// PublishedEvents returns a copy of the published envelopes.
func (b *EventBusSpy) PublishedEvents() []*eventcore.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*eventcore.Envelope(nil), b.Published...)
}
