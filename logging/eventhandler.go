package logging

import (
	"context"
	"errors"
	"log/slog"

	"github.com/terraskye/eventcore"
)

// WithLoggingMiddleware logs the start and outcome of every event handled
// by next, with the envelope found in the context.
func WithLoggingMiddleware(logger *slog.Logger, next eventcore.EventHandler) eventcore.EventHandler {
	return eventcore.NewEventHandlerFunc(func(ctx context.Context, event eventcore.Event) error {
		l := logger.With(
			"stream-id", eventcore.StreamIDFromContext(ctx),
			"event-type", event.EventType(),
			"correlation", eventcore.CorrelationIDFromContext(ctx),
			"version", eventcore.VersionFromContext(ctx),
			"position", eventcore.PositionFromContext(ctx),
		)

		l.DebugContext(ctx, "event processing started")

		err := next.Handle(ctx, event)

		var skipped *eventcore.ErrSkippedEvent
		switch {
		case errors.As(err, &skipped):
			l.DebugContext(ctx, "event skipped")
		case err != nil:
			l.ErrorContext(ctx, "error processing event", "error", err)
		default:
			l.DebugContext(ctx, "event processed successfully")
		}

		return err
	})
}
