package logging

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/terraskye/eventcore"
)

// WithCommandLogging wraps a CommandHandler with logging functionality.
// Validation failures are logged as warnings, any other error as an error,
// and non-critical handler failures of a successful command as warnings.
func WithCommandLogging[C eventcore.Command](logger *logrus.Entry, next eventcore.CommandHandler[C]) eventcore.CommandHandler[C] {
	return func(ctx context.Context, command C) (eventcore.CommandResult, error) {
		cmdType := eventcore.TypeName(command)
		l := logger.WithFields(logrus.Fields{
			"command":      cmdType,
			"aggregate_id": command.AggregateID(),
		})
		l.Debug("dispatch")

		result, err := next(ctx, command)
		switch {
		case errors.Is(err, eventcore.ErrValidation):
			l.WithError(err).Warn("command rejected")
		case err != nil:
			l.WithError(err).Error("dispatch failed")
		default:
			l.WithFields(logrus.Fields{
				"version": result.Version,
				"events":  len(result.Events),
			}).Info("command handled")
			for _, herr := range result.HandlerErrors {
				l.WithField("handler", herr.Handler).WithError(herr.Err).Warn("event handler failed")
			}
		}

		return result, err
	}
}
