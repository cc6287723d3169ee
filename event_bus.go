package eventcore

import (
	"context"
	"time"
)

// SubscriberConfig holds the dispatch settings of one subscription.
type SubscriberConfig struct {
	Priority Priority
	// Critical handlers abort the publish when they fail.
	Critical bool
	// Timeout bounds a single invocation; zero means no bound.
	Timeout time.Duration
	// Filter, when set, must return true for the handler to receive an event.
	Filter func(Event) bool

	criticalSet bool
	timeoutSet  bool
}

// SubscriberOption configures a subscription.
type SubscriberOption func(cfg *SubscriberConfig)

// WithPriority sets the dispatch tier. The default is PriorityNormal.
func WithPriority(p Priority) SubscriberOption {
	return func(cfg *SubscriberConfig) {
		cfg.Priority = p
	}
}

// WithCritical marks the handler as execution-critical or not. Without it only
// handlers in the PriorityCritical tier are critical.
func WithCritical(critical bool) SubscriberOption {
	return func(cfg *SubscriberConfig) {
		cfg.Critical = critical
		cfg.criticalSet = true
	}
}

// WithTimeout overrides the bus default invocation timeout.
func WithTimeout(d time.Duration) SubscriberOption {
	return func(cfg *SubscriberConfig) {
		cfg.Timeout = d
		cfg.timeoutSet = true
	}
}

// WithFilter restricts the events delivered to the handler.
func WithFilter(fn func(Event) bool) SubscriberOption {
	return func(cfg *SubscriberConfig) {
		cfg.Filter = fn
	}
}

// NewSubscriberConfig applies opts over the defaults. defaultTimeout is used
// unless WithTimeout was given.
func NewSubscriberConfig(defaultTimeout time.Duration, opts ...SubscriberOption) SubscriberConfig {
	cfg := SubscriberConfig{Priority: PriorityNormal}
	for _, opt := range opts {
		opt(&cfg)
	}
	if !cfg.criticalSet {
		cfg.Critical = cfg.Priority == PriorityCritical
	}
	if !cfg.timeoutSet {
		cfg.Timeout = defaultTimeout
	}
	return cfg
}

// RetryReport summarises a dead-letter replay.
type RetryReport struct {
	Attempted int
	Resolved  int
	Failed    []*HandlerError
}

// EventBus distributes published events to subscribed handlers in descending
// priority order, subscription order within a tier.
type EventBus interface {
	// Subscribe registers handler under a unique name.
	Subscribe(name string, handler EventHandler, opts ...SubscriberOption) error

	// Publish invokes every matching handler sequentially and returns once all
	// attempted invocations have settled. Failures of non-critical handlers
	// are returned as a list; a critical failure stops dispatch and is
	// returned as *PublishError together with what was collected so far.
	Publish(ctx context.Context, env *Envelope) ([]*HandlerError, error)

	// Retry re-invokes the handlers of dead letters matching match. It never
	// appends to the event log.
	Retry(ctx context.Context, match func(DeadLetter) bool) (RetryReport, error)

	// Close rejects further Subscribe and Publish calls.
	Close() error
}
