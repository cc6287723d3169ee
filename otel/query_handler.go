package otel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/terraskye/eventcore"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// WithQueryTelemetry wraps a QueryHandler with OpenTelemetry tracing and metrics.
//
// A query answered with eventcore.ErrAggregateNotFound is not a failure of
// the handler: the span status stays Ok.
//
// Example Usage:
//
//	handler := otel.WithQueryTelemetry(projection.GetUserHandler(p))
//	view, err := handler.HandleQuery(ctx, projection.GetUser{UserID: 1})
func WithQueryTelemetry[T eventcore.Query, R any](next eventcore.QueryHandler[T, R], options ...Option) eventcore.QueryHandler[T, R] {
	var zero T
	cfg := newConfig(options)

	return &telemetryQueryHandler[T, R]{
		next:      next,
		queryType: eventcore.TypeName(zero),
		cfg:       cfg,
		tracer:    cfg.tracer(),
		inst:      cfg.instruments(),
	}
}

type telemetryQueryHandler[T eventcore.Query, R any] struct {
	next      eventcore.QueryHandler[T, R]
	queryType string
	cfg       *config
	tracer    trace.Tracer
	inst      *instruments
}

func (h *telemetryQueryHandler[T, R]) HandleQuery(ctx context.Context, qry T) (R, error) {
	ctx, span := h.tracer.Start(ctx, h.cfg.operation(ctx, fmt.Sprintf("query.handle %s", h.queryType)),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(h.cfg.attributes(ctx,
			AttrQueryType.String(h.queryType),
			AttrQueryID.String(string(qry.ID())),
		)...),
	)
	defer span.End()

	typeAttr := metric.WithAttributes(AttrQueryType.String(h.queryType))
	h.inst.queriesInFlight.Add(ctx, 1, typeAttr)
	defer h.inst.queriesInFlight.Add(ctx, -1, typeAttr)

	startTime := time.Now()
	result, err := h.next.HandleQuery(ctx, qry)

	h.inst.queriesDuration.Record(ctx, float64(time.Since(startTime).Milliseconds()), typeAttr)

	if err != nil {
		h.inst.queriesFailed.Add(ctx, 1, typeAttr)
		if errors.Is(err, eventcore.ErrAggregateNotFound) {
			span.SetStatus(codes.Ok, err.Error())
			return result, err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}

	span.SetStatus(codes.Ok, "")
	h.inst.queriesHandled.Add(ctx, 1, typeAttr)
	return result, nil
}
