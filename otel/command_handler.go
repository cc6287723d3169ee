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
	"go.opentelemetry.io/otel/trace"
)

// WithCommandTelemetry wraps a CommandHandler with OpenTelemetry tracing and metrics.
//
// The span is named after the command type and carries the aggregate id, and
// after execution the stream id and version of the CommandResult.
//
// Behavior Details:
//   - Validation and invalid state errors are business outcomes: the span
//     status stays Ok, a "business_rule_violation" event is added and the
//     command is counted as failed.
//   - A concurrency conflict adds a "concurrency_conflict" event and is
//     counted separately.
//   - Handler errors reported by non-critical subscribers are added as span
//     events without failing the command.
//
// Example Usage:
//
//	handler := otel.WithCommandTelemetry(service.Register)
//	result, err := handler(ctx, user.RegisterUser{UserID: 1, Name: "alice"})
func WithCommandTelemetry[C eventcore.Command](next eventcore.CommandHandler[C], options ...Option) eventcore.CommandHandler[C] {
	var zero C
	commandType := eventcore.TypeName(zero)

	cfg := newConfig(options)
	tracer := cfg.tracer()
	inst := cfg.instruments()
	typeAttr := metric.WithAttributes(AttrCommandType.String(commandType))

	return func(ctx context.Context, cmd C) (eventcore.CommandResult, error) {
		attr := cfg.attributes(ctx,
			AttrCommandType.String(commandType),
			AttrAggregateID.String(cmd.AggregateID()),
		)

		ctx, span := tracer.Start(ctx, cfg.operation(ctx, fmt.Sprintf("command.handle %s", commandType)),
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(attr...),
		)
		defer span.End()

		inst.commandsInFlight.Add(ctx, 1, typeAttr)
		defer inst.commandsInFlight.Add(ctx, -1, typeAttr)

		startTime := time.Now()
		result, err := next(ctx, cmd)

		inst.commandsDuration.Record(ctx, float64(time.Since(startTime).Milliseconds()), typeAttr)

		span.SetAttributes(
			AttrStreamID.String(result.StreamID),
			AttrStreamVersion.Int64(result.Version),
			AttrEventCount.Int(len(result.Events)),
		)
		for _, herr := range result.HandlerErrors {
			span.AddEvent("handler_failed", trace.WithAttributes(
				AttrSubscriberName.String(herr.Handler),
				attribute.String("error", herr.Err.Error()),
			))
		}

		if err != nil {
			inst.commandsFailed.Add(ctx, 1, typeAttr)

			if errors.Is(err, eventcore.ErrConcurrencyViolation) {
				inst.conflicts.Add(ctx, 1, typeAttr)
				span.AddEvent("concurrency_conflict", trace.WithAttributes(
					AttrStreamID.String(result.StreamID),
				))
			}

			if errors.Is(err, eventcore.ErrValidation) || errors.Is(err, eventcore.ErrInvalidState) {
				span.SetStatus(codes.Ok, fmt.Sprintf("business rule violation: %v", err))
				span.AddEvent("business_rule_violation", trace.WithAttributes(
					AttrCommandType.String(commandType),
					AttrAggregateID.String(cmd.AggregateID()),
				))
				return result, err
			}

			// Real system error
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return result, err
		}

		span.SetStatus(codes.Ok, "")
		inst.commandsHandled.Add(ctx, 1, typeAttr)
		return result, nil
	}
}
