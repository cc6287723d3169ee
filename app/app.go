// Package app wires the user service: event store, bus, projection, command
// and query buses, with logging, metrics and telemetry around them.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/terraskye/eventcore"
	promadapter "github.com/terraskye/eventcore/adapters/prometheus"
	"github.com/terraskye/eventcore/config"
	busmemory "github.com/terraskye/eventcore/eventbus/memory"
	storememory "github.com/terraskye/eventcore/eventstore/memory"
	"github.com/terraskye/eventcore/logging"
	"github.com/terraskye/eventcore/metrics"
	"github.com/terraskye/eventcore/otel"
	"github.com/terraskye/eventcore/projection"
	"github.com/terraskye/eventcore/user"
)

// ProjectionName is the subscription name of the users read model.
const ProjectionName = "users-projection"

// App holds the wired components. It is built once by New and passed around
// by pointer.
type App struct {
	Config config.Config
	Log    *logrus.Logger

	// Store is the raw in-memory store, also used as the dead-letter sink.
	Store *storememory.MemoryStore
	// EventStore is Store behind the telemetry decorator.
	EventStore eventcore.EventStore
	Bus        eventcore.EventBus
	Metrics    *metrics.Registry

	Users      *user.Repository
	Service    *user.CommandService
	Projection *projection.UserProjection

	Commands *eventcore.CommandBus
	Queries  *eventcore.QueryBus
}

type options struct {
	output     io.Writer
	registerer prometheus.Registerer
	telemetry  []otel.Option
	rules      []user.Rule[user.Registration]
	subscribe  func(eventcore.EventBus) error
}

// Option configures New.
type Option func(*options)

// WithLogOutput redirects every log line to w.
func WithLogOutput(w io.Writer) Option {
	return func(o *options) {
		o.output = w
	}
}

// WithPrometheus exports the handler metrics on reg.
func WithPrometheus(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithTelemetry passes opts to every OpenTelemetry decorator.
func WithTelemetry(opts ...otel.Option) Option {
	return func(o *options) {
		o.telemetry = append(o.telemetry, opts...)
	}
}

// WithRegistrationRules adds rules checked on every registration after the
// built-in uniqueness rules.
func WithRegistrationRules(rules ...user.Rule[user.Registration]) Option {
	return func(o *options) {
		o.rules = append(o.rules, rules...)
	}
}

// WithSubscribers registers additional handlers once the projection is
// subscribed.
func WithSubscribers(fn func(eventcore.EventBus) error) Option {
	return func(o *options) {
		o.subscribe = fn
	}
}

// New builds an App from cfg.
func New(cfg config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	log, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: o.output})
	if err != nil {
		return nil, err
	}
	slogger := logging.NewSlog(log, cfg.LogFormat)

	a := &App{
		Config:  cfg,
		Log:     log,
		Metrics: metrics.NewRegistry(),
	}

	a.Store = storememory.NewMemoryStore(storememory.WithLogger(slogger))
	a.EventStore = otel.WithEventStoreTelemetry(a.Store, o.telemetry...)

	var recorder metrics.HandlerMetrics = a.Metrics
	if o.registerer != nil {
		recorder = metrics.Multi(a.Metrics, promadapter.NewHandlerMetrics(o.registerer, cfg.MetricsNamespace))
	}

	bus := busmemory.NewEventBus(
		busmemory.WithDeadLetterStore(a.Store),
		busmemory.WithMetrics(recorder),
		busmemory.WithLogger(slogger),
		busmemory.WithDefaultTimeout(cfg.HandlerTimeout),
	)
	a.Bus = otel.WithEventBusTelemetry(bus, o.telemetry...)

	a.Projection = projection.NewUserProjection()
	if err := a.Bus.Subscribe(ProjectionName,
		logging.WithLoggingMiddleware(slogger.With("handler", ProjectionName), a.Projection),
		eventcore.WithPriority(eventcore.PriorityHigh),
	); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", ProjectionName, err)
	}
	if o.subscribe != nil {
		if err := o.subscribe(a.Bus); err != nil {
			return nil, fmt.Errorf("subscribe: %w", err)
		}
	}

	a.Users = user.NewRepository(a.EventStore)
	a.Service = user.NewCommandService(a.Users, a.Bus,
		user.WithLogger(log.WithField("component", "user-service")),
		user.WithRetryBackOff(user.ConstantRetry(cfg.CommandRetries, cfg.RetryInterval)),
		user.WithRegistrar(user.NewRegistrar(a.Users, o.rules...)),
	)

	cmdLog := log.WithField("component", "commands")
	a.Commands = eventcore.NewCommandBus(cfg.CommandBuffer, cfg.CommandShards)
	eventcore.Register(a.Commands, logging.WithCommandLogging(cmdLog,
		otel.WithCommandTelemetry(a.Service.Register, o.telemetry...)))
	eventcore.Register(a.Commands, logging.WithCommandLogging(cmdLog,
		otel.WithCommandTelemetry(a.Service.Rename, o.telemetry...)))

	qryLog := log.WithField("component", "queries")
	a.Queries = eventcore.NewQueryBus()
	eventcore.RegisterQueryHandler(a.Queries, projection.GetUserHandler(a.Projection),
		eventcore.WithQueryMiddleware(func(next eventcore.QueryHandler[projection.GetUser, *projection.UserView]) eventcore.QueryHandler[projection.GetUser, *projection.UserView] {
			return logging.WithQueryLogging(qryLog, otel.WithQueryTelemetry(next, o.telemetry...))
		}),
	)
	eventcore.RegisterQueryHandler(a.Queries, projection.ListUsersHandler(a.Projection),
		eventcore.WithQueryMiddleware(func(next eventcore.QueryHandler[projection.ListUsers, []projection.UserView]) eventcore.QueryHandler[projection.ListUsers, []projection.UserView] {
			return logging.WithQueryLogging(qryLog, otel.WithQueryTelemetry(next, o.telemetry...))
		}),
	)

	log.WithFields(logrus.Fields{
		"handler_timeout": cfg.HandlerTimeout,
		"command_shards":  cfg.CommandShards,
		"command_retries": cfg.CommandRetries,
	}).Info("application started")

	return a, nil
}

// RegisterUser dispatches cmd on the command bus.
func (a *App) RegisterUser(ctx context.Context, cmd user.RegisterUser) (eventcore.CommandResult, error) {
	return a.Commands.Dispatch(ctx, cmd)
}

// RenameUser dispatches cmd on the command bus.
func (a *App) RenameUser(ctx context.Context, cmd user.RenameUser) (eventcore.CommandResult, error) {
	return a.Commands.Dispatch(ctx, cmd)
}

// GetUser reads a user from the projection.
func (a *App) GetUser(ctx context.Context, id user.ID) (*projection.UserView, error) {
	return eventcore.NewQueryGateway[projection.GetUser, *projection.UserView](a.Queries).
		HandleQuery(ctx, projection.GetUser{UserID: id})
}

// ListUsers reads every user from the projection, ordered by id.
func (a *App) ListUsers(ctx context.Context) ([]projection.UserView, error) {
	return eventcore.NewQueryGateway[projection.ListUsers, []projection.UserView](a.Queries).
		HandleQuery(ctx, projection.ListUsers{})
}

// RetryDeadLetters re-invokes every dead-lettered handler.
func (a *App) RetryDeadLetters(ctx context.Context) (eventcore.RetryReport, error) {
	return a.Bus.Retry(ctx, nil)
}

// RebuildProjection replays the event log into the users read model.
func (a *App) RebuildProjection(ctx context.Context) (int, error) {
	return a.Projection.Rebuild(ctx, a.EventStore)
}

// Close stops the command bus, then closes the event bus and the store.
func (a *App) Close() error {
	a.Commands.Stop()

	errs := []error{a.Bus.Close(), a.EventStore.Close()}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	s := a.Metrics.Summary()
	a.Log.WithFields(logrus.Fields{
		"executions": s.Executions,
		"failures":   s.Failures,
		"timeouts":   s.Timeouts,
	}).Info("application stopped")
	return nil
}
