// Package memory provides an in-process, priority ordered EventBus.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/terraskye/eventcore"
	"github.com/terraskye/eventcore/metrics"
)

// DefaultHandlerTimeout bounds a handler invocation unless overridden.
const DefaultHandlerTimeout = 30 * time.Second

type subscriber struct {
	name    string
	handler eventcore.EventHandler
	cfg     eventcore.SubscriberConfig
}

// EventBus dispatches an envelope to its subscribers one at a time, highest
// tier first. Concurrent Publish calls are independent of each other.
type EventBus struct {
	mu      sync.RWMutex
	tiers   map[eventcore.Priority][]*subscriber
	byName  map[string]*subscriber
	ordered []*subscriber
	closed  bool

	deadLetters    eventcore.DeadLetterStore
	metrics        metrics.HandlerMetrics
	log            *slog.Logger
	defaultTimeout time.Duration
	now            func() time.Time
}

// Option configures an EventBus.
type Option func(*EventBus)

// WithDeadLetterStore sets the sink for failed invocations. Without one,
// failures are only logged and Retry is unavailable.
func WithDeadLetterStore(s eventcore.DeadLetterStore) Option {
	return func(b *EventBus) {
		b.deadLetters = s
	}
}

// WithMetrics sets the recorder of handler outcomes.
func WithMetrics(m metrics.HandlerMetrics) Option {
	return func(b *EventBus) {
		b.metrics = m
	}
}

// WithLogger sets the logger, slog.Default() otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(b *EventBus) {
		b.log = l
	}
}

// WithDefaultTimeout sets the timeout of subscriptions that do not set their
// own. Zero disables it.
func WithDefaultTimeout(d time.Duration) Option {
	return func(b *EventBus) {
		b.defaultTimeout = d
	}
}

// NewEventBus constructs an empty bus.
func NewEventBus(opts ...Option) *EventBus {
	b := &EventBus{
		tiers:          make(map[eventcore.Priority][]*subscriber),
		byName:         make(map[string]*subscriber),
		metrics:        metrics.Nop(),
		log:            slog.Default(),
		defaultTimeout: DefaultHandlerTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.With(slog.String("bus", "memory"))
	return b
}

var _ eventcore.EventBus = (*EventBus)(nil)

// Subscribe implements eventcore.EventBus.
func (b *EventBus) Subscribe(name string, handler eventcore.EventHandler, opts ...eventcore.SubscriberOption) error {
	if name == "" || handler == nil {
		return errors.New("subscribe: name and handler are required")
	}

	cfg := eventcore.NewSubscriberConfig(b.defaultTimeout, opts...)
	if !cfg.Priority.Valid() {
		return fmt.Errorf("subscribe %q: invalid priority %d", name, cfg.Priority)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return eventcore.ErrBusClosed
	}
	if _, exists := b.byName[name]; exists {
		return fmt.Errorf("subscribe %q: %w", name, eventcore.ErrDuplicateHandler)
	}

	s := &subscriber{name: name, handler: handler, cfg: cfg}
	b.byName[name] = s
	b.tiers[cfg.Priority] = append(b.tiers[cfg.Priority], s)
	b.reorder()

	b.log.Debug("handler subscribed",
		slog.String("handler", name),
		slog.String("priority", cfg.Priority.String()),
		slog.Bool("critical", cfg.Critical),
	)
	return nil
}

// Unsubscribe removes the named handler.
func (b *EventBus) Unsubscribe(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.byName[name]
	if !ok {
		return fmt.Errorf("unsubscribe %q: %w", name, eventcore.ErrHandlerNotFound)
	}
	delete(b.byName, name)

	tier := b.tiers[s.cfg.Priority]
	for i, other := range tier {
		if other == s {
			b.tiers[s.cfg.Priority] = append(tier[:i:i], tier[i+1:]...)
			break
		}
	}
	b.reorder()
	return nil
}

// reorder rebuilds the dispatch order. b.mu must be held.
func (b *EventBus) reorder() {
	ordered := make([]*subscriber, 0, len(b.byName))
	for _, p := range eventcore.Priorities {
		ordered = append(ordered, b.tiers[p]...)
	}
	b.ordered = ordered
}

// Publish implements eventcore.EventBus.
func (b *EventBus) Publish(ctx context.Context, env *eventcore.Envelope) ([]*eventcore.HandlerError, error) {
	if env == nil || env.Event == nil {
		return nil, errors.New("publish: envelope without event")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil, eventcore.ErrBusClosed
	}
	subs := b.ordered
	b.mu.RUnlock()

	var collected []*eventcore.HandlerError
	for _, s := range subs {
		if s.cfg.Filter != nil && !s.cfg.Filter(env.Event) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return collected, err
		}

		err := b.invoke(ctx, s, env)
		if err == nil {
			continue
		}
		// The caller gave up; that is not a failure of the handler.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return collected, ctxErr
		}

		herr := &eventcore.HandlerError{
			Handler:  s.name,
			Priority: s.cfg.Priority,
			Critical: s.cfg.Critical,
			EventID:  env.EventID.String(),
			Err:      err,
		}
		b.deadLetter(ctx, env, herr)

		if s.cfg.Critical {
			b.log.Error("critical handler failed, publish aborted",
				slog.String("handler", s.name),
				slog.String("event_type", env.Event.EventType()),
				slog.String("stream_id", env.StreamID),
				slog.Any("error", err),
			)
			return collected, &eventcore.PublishError{Cause: herr}
		}
		collected = append(collected, herr)
	}
	return collected, nil
}

// invoke runs one handler with its timeout and converts panics into errors.
// A handler that returns *ErrSkippedEvent succeeded.
//
// invoke always waits for the handler to return. On timeout the call is
// failed and its context cancelled, but the next handler only starts once
// this one has settled.
func (b *EventBus) invoke(ctx context.Context, s *subscriber, env *eventcore.Envelope) error {
	hctx := eventcore.WithEnvelope(ctx, env)
	var cancel context.CancelFunc
	if s.cfg.Timeout > 0 {
		hctx, cancel = context.WithTimeout(hctx, s.cfg.Timeout)
	} else {
		hctx, cancel = context.WithCancel(hctx)
	}
	defer cancel()

	done := make(chan error, 1)
	start := b.now()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("handler panicked: %v", r)
			}
		}()
		done <- s.handler.Handle(hctx, env.Event)
	}()

	var err error
	select {
	case err = <-done:
	case <-hctx.Done():
		if ctx.Err() == nil {
			b.log.Warn("handler exceeded its timeout, waiting for it to return",
				slog.String("handler", s.name),
				slog.String("event_id", env.EventID.String()),
				slog.Duration("timeout", s.cfg.Timeout),
			)
		}
		<-done
		err = hctx.Err()
	}
	elapsed := b.now().Sub(start)

	if ctxErr := ctx.Err(); ctxErr != nil && err != nil {
		return ctxErr
	}

	// A handler returning its own expired context counts as a timeout too.
	if err != nil && errors.Is(hctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s", eventcore.ErrHandlerTimeout, s.cfg.Timeout)
		b.metrics.RecordTimeout(s.name)
	}

	var skipped *eventcore.ErrSkippedEvent
	if err == nil || errors.As(err, &skipped) {
		b.metrics.RecordSuccess(s.name, elapsed)
		return nil
	}
	b.metrics.RecordFailure(s.name, elapsed)
	return err
}

func (b *EventBus) deadLetter(ctx context.Context, env *eventcore.Envelope, herr *eventcore.HandlerError) {
	b.log.Warn("handler failed",
		slog.String("handler", herr.Handler),
		slog.String("event_id", herr.EventID),
		slog.String("event_type", env.Event.EventType()),
		slog.Any("error", herr.Err),
	)
	if b.deadLetters == nil {
		return
	}

	entry := eventcore.DeadLetter{
		Envelope: env,
		Handler:  herr.Handler,
		Reason:   herr.Err.Error(),
		FailedAt: b.now(),
		Attempts: 1,
	}
	if err := b.deadLetters.DeadLetter(context.WithoutCancel(ctx), entry); err != nil {
		b.log.Error("dead-letter write failed",
			slog.String("handler", herr.Handler),
			slog.String("event_id", herr.EventID),
			slog.Any("error", err),
		)
	}
}

// Retry implements eventcore.EventBus. Every matching entry is re-invoked
// once; success resolves it, failure increments its attempt count.
func (b *EventBus) Retry(ctx context.Context, match func(eventcore.DeadLetter) bool) (eventcore.RetryReport, error) {
	var report eventcore.RetryReport

	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return report, eventcore.ErrBusClosed
	}
	if b.deadLetters == nil {
		return report, errors.New("retry: no dead-letter store configured")
	}

	letters, err := b.deadLetters.DeadLetters(ctx)
	if err != nil {
		return report, fmt.Errorf("retry: list dead letters: %w", err)
	}

	for _, dl := range letters {
		if match != nil && !match(dl) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Attempted++

		b.mu.RLock()
		s, ok := b.byName[dl.Handler]
		b.mu.RUnlock()

		var invokeErr error
		switch {
		case !ok:
			invokeErr = fmt.Errorf("handler %q: %w", dl.Handler, eventcore.ErrHandlerNotFound)
		case dl.Envelope == nil || dl.Envelope.Event == nil:
			invokeErr = errors.New("dead letter has no event")
		default:
			invokeErr = b.invoke(ctx, s, dl.Envelope)
		}
		if err := ctx.Err(); err != nil && invokeErr != nil {
			return report, err
		}
		b.metrics.RecordRetry(dl.Handler, invokeErr == nil)

		if invokeErr == nil {
			// A concurrent Retry may have resolved the entry first.
			err := b.deadLetters.ResolveDeadLetter(ctx, dl.ID)
			if err != nil && !errors.Is(err, eventcore.ErrDeadLetterUnknown) {
				return report, fmt.Errorf("retry: resolve %s: %w", dl.ID, err)
			}
			report.Resolved++
			continue
		}

		herr := &eventcore.HandlerError{Handler: dl.Handler, Err: invokeErr}
		if dl.Envelope != nil {
			herr.EventID = dl.Envelope.EventID.String()
		}
		if ok {
			herr.Priority = s.cfg.Priority
			herr.Critical = s.cfg.Critical
		}
		report.Failed = append(report.Failed, herr)

		err := b.deadLetters.RecordRetryFailure(ctx, dl.ID, invokeErr.Error())
		if err != nil && !errors.Is(err, eventcore.ErrDeadLetterUnknown) {
			return report, fmt.Errorf("retry: record failure %s: %w", dl.ID, err)
		}
	}

	b.log.Info("dead letters retried",
		slog.Int("attempted", report.Attempted),
		slog.Int("resolved", report.Resolved),
		slog.Int("failed", len(report.Failed)),
	)
	return report, nil
}

// Handlers returns the subscriber names in dispatch order.
func (b *EventBus) Handlers() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, len(b.ordered))
	for i, s := range b.ordered {
		out[i] = s.name
	}
	return out
}

// Close implements eventcore.EventBus. Publishes already in flight finish.
func (b *EventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
