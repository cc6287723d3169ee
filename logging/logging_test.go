package logging_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/terraskye/eventcore"
	"github.com/terraskye/eventcore/fixtures"
	"github.com/terraskye/eventcore/logging"
)

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	l, err := logging.New(logging.Config{Level: "warn", Format: "json", Output: &buf})
	require.NoError(t, err)

	l.Info("hidden")
	l.WithField("k", "v").Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"k":"v"`)

	_, err = logging.New(logging.Config{Level: "loud"})
	assert.Error(t, err)
	_, err = logging.New(logging.Config{Level: "info", Format: "xml"})
	assert.Error(t, err)
}

func TestNewSlog(t *testing.T) {
	var buf bytes.Buffer
	l, err := logging.New(logging.Config{Level: "info", Output: &buf})
	require.NoError(t, err)

	s := logging.NewSlog(l, "text")
	s.Debug("below level")
	s.Info("bus started", "handlers", 2)

	out := buf.String()
	assert.NotContains(t, out, "below level")
	assert.Contains(t, out, "bus started")
	assert.Contains(t, out, "handlers=2")
}

func TestWithCommandLogging(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	entry := logrus.NewEntry(logger)

	tests := []struct {
		name      string
		result    eventcore.CommandResult
		err       error
		wantLevel logrus.Level
		wantMsg   string
	}{
		{
			name:      "handled",
			result:    eventcore.CommandResult{Version: 2, Events: make([]*eventcore.Envelope, 1)},
			wantLevel: logrus.InfoLevel,
			wantMsg:   "command handled",
		},
		{
			name:      "rejected",
			err:       eventcore.NewValidationError("name", "taken"),
			wantLevel: logrus.WarnLevel,
			wantMsg:   "command rejected",
		},
		{
			name:      "failed",
			err:       errors.New("store offline"),
			wantLevel: logrus.ErrorLevel,
			wantMsg:   "dispatch failed",
		},
		{
			name: "handler failure",
			result: eventcore.CommandResult{HandlerErrors: []*eventcore.HandlerError{
				{Handler: "mailer", Err: errors.New("smtp down")},
			}},
			wantLevel: logrus.WarnLevel,
			wantMsg:   "event handler failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hook.Reset()
			h := logging.WithCommandLogging(entry, func(ctx context.Context, cmd fixtures.TestCommand) (eventcore.CommandResult, error) {
				return tt.result, tt.err
			})

			_, err := h(t.Context(), fixtures.TestCommand{ID: "agg-1"})
			assert.Equal(t, tt.err, err)

			last := hook.LastEntry()
			require.NotNil(t, last)
			assert.Equal(t, tt.wantLevel, last.Level)
			assert.Equal(t, tt.wantMsg, last.Message)
			assert.Equal(t, "agg-1", last.Data["aggregate_id"])
			assert.Equal(t, "fixtures.TestCommand", last.Data["command"])
		})
	}
}

func TestWithQueryLogging(t *testing.T) {
	logger, hook := test.NewNullLogger()
	entry := logrus.NewEntry(logger)

	h := logging.WithQueryLogging(entry, eventcore.NewQueryHandlerFunc(func(ctx context.Context, q fixtures.TestQuery) (string, error) {
		if q.Key == "" {
			return "", errors.New("empty key")
		}
		return q.Key, nil
	}))

	got, err := h.HandleQuery(t.Context(), fixtures.TestQuery{Key: "a"})
	require.NoError(t, err)
	assert.Equal(t, "a", got)
	assert.Empty(t, hook.AllEntries())

	_, err = h.HandleQuery(t.Context(), fixtures.TestQuery{})
	require.Error(t, err)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "query failed", hook.LastEntry().Message)
}

func TestWithLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	l, err := logging.New(logging.Config{Level: "debug", Output: &buf})
	require.NoError(t, err)
	s := logging.NewSlog(l, "text")

	failing := logging.WithLoggingMiddleware(s, fixtures.NewFailingHandler("h", nil))
	env := fixtures.NewEnvelope(fixtures.TestEvent{ID: "order-1", Type: "OrderCreated"}, fixtures.WithVersion(3))
	ctx := eventcore.WithEnvelope(t.Context(), env)

	err = failing.Handle(ctx, env.Event)
	require.ErrorIs(t, err, fixtures.ErrHandlerFailed)

	out := buf.String()
	assert.Contains(t, out, "event processing started")
	assert.Contains(t, out, "error processing event")
	assert.Contains(t, out, "stream-id=order-1")
	assert.Contains(t, out, "version=3")

	buf.Reset()
	group := eventcore.NewEventGroupProcessor(
		eventcore.OnEvent(func(ctx context.Context, ev fixtures.OtherEvent) error { return nil }),
	)
	err = logging.WithLoggingMiddleware(s, group).Handle(ctx, env.Event)

	var skipped *eventcore.ErrSkippedEvent
	require.ErrorAs(t, err, &skipped)
	assert.True(t, strings.Contains(buf.String(), "event skipped"))
}
