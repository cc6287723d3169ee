package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/terraskye/eventcore"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// TelemetryEventBus decorates an EventBus: every subscription is wrapped with
// WithEventTelemetry, and Publish and Retry get a span of their own.
type TelemetryEventBus struct {
	next    eventcore.EventBus
	options []Option
	cfg     *config
	tracer  trace.Tracer
	inst    *instruments
}

var _ eventcore.EventBus = (*TelemetryEventBus)(nil)

// WithEventBusTelemetry wraps an EventBus with OpenTelemetry tracing and metrics.
//
// The options are passed on to the handlers wrapped at subscription time.
//
// Example Usage:
//
//	bus := otel.WithEventBusTelemetry(memory.NewEventBus(),
//	    otel.WithAttributes(attribute.String("service", "users")),
//	)
//	err := bus.Subscribe("users-projection", handler, eventcore.WithPriority(eventcore.PriorityHigh))
func WithEventBusTelemetry(next eventcore.EventBus, options ...Option) *TelemetryEventBus {
	cfg := newConfig(options)
	return &TelemetryEventBus{
		next:    next,
		options: options,
		cfg:     cfg,
		tracer:  cfg.tracer(),
		inst:    cfg.instruments(),
	}
}

func (t *TelemetryEventBus) Subscribe(name string, handler eventcore.EventHandler, opts ...eventcore.SubscriberOption) error {
	return t.next.Subscribe(name, WithEventTelemetry(name, handler, t.options...), opts...)
}

func (t *TelemetryEventBus) Publish(ctx context.Context, env *eventcore.Envelope) ([]*eventcore.HandlerError, error) {
	if env == nil || env.Event == nil {
		return t.next.Publish(ctx, env)
	}
	eventType := env.Event.EventType()

	ctx, span := t.tracer.Start(ctx, fmt.Sprintf("eventbus.publish %s", eventType),
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(t.cfg.attributes(ctx,
			AttrEventType.String(eventType),
			AttrEventID.String(env.EventID.String()),
			AttrStreamID.String(env.StreamID),
			AttrEventStreamPos.Int64(int64(env.Version)),
		)...),
	)
	defer span.End()

	t.inst.busPublished.Add(ctx, 1, metric.WithAttributes(AttrEventType.String(eventType)))

	handlerErrs, err := t.next.Publish(ctx, env)
	span.SetAttributes(AttrHandlerErrors.Int(len(handlerErrs)))

	if err != nil {
		var perr *eventcore.PublishError
		if errors.As(err, &perr) && perr.Cause != nil {
			span.SetAttributes(AttrSubscriberName.String(perr.Cause.Handler))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return handlerErrs, err
	}

	span.SetStatus(codes.Ok, "")
	return handlerErrs, nil
}

func (t *TelemetryEventBus) Retry(ctx context.Context, match func(eventcore.DeadLetter) bool) (eventcore.RetryReport, error) {
	ctx, span := t.tracer.Start(ctx, "eventbus.retry",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(t.cfg.attributes(ctx)...),
	)
	defer span.End()

	report, err := t.next.Retry(ctx, match)
	span.SetAttributes(
		AttrRetryAttempted.Int(report.Attempted),
		AttrRetryResolved.Int(report.Resolved),
		AttrHandlerErrors.Int(len(report.Failed)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return report, err
	}
	span.SetStatus(codes.Ok, "")
	return report, nil
}

// Close closes the underlying event bus.
func (t *TelemetryEventBus) Close() error {
	return t.next.Close()
}
