package otel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/terraskye/eventcore"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// WithEventTelemetry wraps the handler subscribed under name with a consumer
// span per event. When the event metadata carries the trace context of the
// append that produced it, the span is linked to that trace.
//
// A handler returning *eventcore.ErrSkippedEvent is not counted as a failure.
//
// Example Usage:
//
//	handler := otel.WithEventTelemetry("users-projection", projection.Handler())
//	err := bus.Subscribe("users-projection", handler)
func WithEventTelemetry(name string, next eventcore.EventHandler, options ...Option) eventcore.EventHandler {
	cfg := newConfig(options)
	return &telemetryEventHandler{
		name:   name,
		next:   next,
		cfg:    cfg,
		tracer: cfg.tracer(),
		inst:   cfg.instruments(),
	}
}

type telemetryEventHandler struct {
	name   string
	next   eventcore.EventHandler
	cfg    *config
	tracer trace.Tracer
	inst   *instruments
}

func (h *telemetryEventHandler) Handle(ctx context.Context, event eventcore.Event) error {
	eventType := event.EventType()
	attr := h.cfg.attributes(ctx,
		AttrEventType.String(eventType),
		AttrSubscriberName.String(h.name),
	)

	opts := []trace.SpanStartOption{trace.WithSpanKind(trace.SpanKindConsumer)}

	if env := eventcore.EnvelopeFromContext(ctx); env != nil {
		attr = append(attr,
			AttrEventID.String(env.EventID.String()),
			AttrStreamID.String(env.StreamID),
			AttrEventStreamPos.Int64(int64(env.Version)),
			AttrEventGlobalPos.Int64(int64(env.Position)),
		)

		// Extract the SpanContext of the append that produced the event.
		carrier := make(propagation.MapCarrier)
		for k, v := range env.Metadata {
			if s, ok := v.(string); ok && s != "" {
				carrier[k] = s
			}
		}
		origin := trace.SpanContextFromContext(h.cfg.Propagator.Extract(context.Background(), carrier))
		if origin.IsValid() {
			opts = append(opts, trace.WithLinks(trace.Link{
				SpanContext: origin,
				Attributes: []attribute.KeyValue{
					attribute.String("link.reason", "event.consumed.from.stream"),
				},
			}))
		}
	}
	opts = append(opts, trace.WithAttributes(attr...))

	ctx, span := h.tracer.Start(ctx, h.cfg.operation(ctx, fmt.Sprintf("events.handle %s", eventType)), opts...)
	defer span.End()

	metricAttrs := metric.WithAttributes(AttrEventType.String(eventType), AttrSubscriberName.String(h.name))
	h.inst.busHandled.Add(ctx, 1, metricAttrs)

	startTime := time.Now()
	err := h.next.Handle(ctx, event)
	h.inst.busDuration.Record(ctx, float64(time.Since(startTime).Milliseconds()), metricAttrs)

	if err != nil {
		var skipped *eventcore.ErrSkippedEvent
		if errors.As(err, &skipped) {
			span.SetStatus(codes.Ok, "")
			return err
		}
		h.inst.busErrors.Add(ctx, 1, metricAttrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}
