package logging

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/terraskye/eventcore"
)

type queryHandlerLogger[T eventcore.Query, R any] struct {
	logger *logrus.Entry
	next   eventcore.QueryHandler[T, R]
}

func (q *queryHandlerLogger[T, R]) HandleQuery(ctx context.Context, qry T) (R, error) {
	l := q.logger.WithField("query", eventcore.TypeName(qry))
	l.Debug("query")

	result, err := q.next.HandleQuery(ctx, qry)
	if err != nil {
		l.WithError(err).Warn("query failed")
	}

	return result, err
}

// WithQueryLogging wraps a QueryHandler with logging functionality.
func WithQueryLogging[T eventcore.Query, R any](logger *logrus.Entry, next eventcore.QueryHandler[T, R]) eventcore.QueryHandler[T, R] {
	return &queryHandlerLogger[T, R]{
		logger: logger,
		next:   next,
	}
}
