// Package otel decorates the eventcore building blocks with OpenTelemetry
// tracing and metrics.
package otel

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/terraskye/eventcore"

	// InstrumentationVersion is reported with every tracer and meter.
	InstrumentationVersion = "0.1.0"
)

// Semantic attribute keys following OpenTelemetry conventions
const (
	// Command attributes
	AttrCommandType = attribute.Key("eventcore.command.type")
	AttrAggregateID = attribute.Key("eventcore.aggregate.id")

	// Stream attributes
	AttrStreamID        = attribute.Key("eventcore.stream.id")
	AttrStreamVersion   = attribute.Key("eventcore.stream.version")
	AttrExpectedState   = attribute.Key("eventcore.stream.expected")
	AttrLoadFromVersion = attribute.Key("eventcore.stream.from_version")

	// Event attributes
	AttrEventType      = attribute.Key("eventcore.event.type")
	AttrEventID        = attribute.Key("eventcore.event.id")
	AttrEventCount     = attribute.Key("eventcore.events.count")
	AttrEventGlobalPos = attribute.Key("eventcore.event.global_position")
	AttrEventStreamPos = attribute.Key("eventcore.event.stream_position")

	// Query attributes
	AttrQueryType = attribute.Key("eventcore.query.type")
	AttrQueryID   = attribute.Key("eventcore.query.id")

	// EventBus attributes
	AttrSubscriberName     = attribute.Key("eventcore.subscriber.name")
	AttrSubscriberPriority = attribute.Key("eventcore.subscriber.priority")
	AttrHandlerErrors      = attribute.Key("eventcore.handler.errors")

	// Error attributes
	AttrErrorType = attribute.Key("eventcore.error.type")

	// Retry attributes
	AttrRetryAttempted = attribute.Key("eventcore.retry.attempted")
	AttrRetryResolved  = attribute.Key("eventcore.retry.resolved")
)

// instruments are created once per decorated component from the configured
// meter. Instrument creation errors leave a no-op instrument in place.
type instruments struct {
	commandsHandled  metric.Int64Counter
	commandsDuration metric.Float64Histogram
	commandsInFlight metric.Int64UpDownCounter
	commandsFailed   metric.Int64Counter
	conflicts        metric.Int64Counter

	eventsAppended metric.Int64Counter
	eventsLoaded   metric.Int64Counter

	busPublished metric.Int64Counter
	busHandled   metric.Int64Counter
	busErrors    metric.Int64Counter
	busDuration  metric.Float64Histogram

	queriesHandled  metric.Int64Counter
	queriesDuration metric.Float64Histogram
	queriesInFlight metric.Int64UpDownCounter
	queriesFailed   metric.Int64Counter
}

func newInstruments(meter metric.Meter) *instruments {
	in := &instruments{}

	in.commandsHandled, _ = meter.Int64Counter(
		"eventcore.commands.handled",
		metric.WithDescription("Total number of commands handled"),
		metric.WithUnit("{command}"),
	)
	in.commandsDuration, _ = meter.Float64Histogram(
		"eventcore.commands.duration",
		metric.WithDescription("Command handling duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000),
	)
	in.commandsInFlight, _ = meter.Int64UpDownCounter(
		"eventcore.commands.in_flight",
		metric.WithDescription("Number of commands currently being processed"),
		metric.WithUnit("{command}"),
	)
	in.commandsFailed, _ = meter.Int64Counter(
		"eventcore.commands.failed",
		metric.WithDescription("Number of failed commands"),
		metric.WithUnit("{command}"),
	)
	in.conflicts, _ = meter.Int64Counter(
		"eventcore.concurrency.conflicts",
		metric.WithDescription("Number of optimistic concurrency conflicts"),
		metric.WithUnit("{conflict}"),
	)

	in.eventsAppended, _ = meter.Int64Counter(
		"eventcore.events.appended",
		metric.WithDescription("Number of events appended to streams"),
		metric.WithUnit("{event}"),
	)
	in.eventsLoaded, _ = meter.Int64Counter(
		"eventcore.events.loaded",
		metric.WithDescription("Number of events loaded from streams"),
		metric.WithUnit("{event}"),
	)

	in.busPublished, _ = meter.Int64Counter(
		"eventcore.eventbus.published",
		metric.WithDescription("Number of events published to the event bus"),
		metric.WithUnit("{event}"),
	)
	in.busHandled, _ = meter.Int64Counter(
		"eventcore.eventbus.handled",
		metric.WithDescription("Number of events handled by subscribers"),
		metric.WithUnit("{event}"),
	)
	in.busErrors, _ = meter.Int64Counter(
		"eventcore.eventbus.errors",
		metric.WithDescription("Number of event bus handler errors"),
		metric.WithUnit("{error}"),
	)
	in.busDuration, _ = meter.Float64Histogram(
		"eventcore.eventbus.duration",
		metric.WithDescription("Event handler duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)

	in.queriesHandled, _ = meter.Int64Counter(
		"eventcore.queries.handled",
		metric.WithDescription("Total number of queries handled"),
		metric.WithUnit("{query}"),
	)
	in.queriesDuration, _ = meter.Float64Histogram(
		"eventcore.queries.duration",
		metric.WithDescription("Query handling duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)
	in.queriesInFlight, _ = meter.Int64UpDownCounter(
		"eventcore.queries.in_flight",
		metric.WithDescription("Number of queries currently being processed"),
		metric.WithUnit("{query}"),
	)
	in.queriesFailed, _ = meter.Int64Counter(
		"eventcore.queries.failed",
		metric.WithDescription("Number of failed queries"),
		metric.WithUnit("{query}"),
	)

	return in
}

func (c *config) tracer() trace.Tracer {
	return c.TracerProvider.Tracer(instrumentationName, trace.WithInstrumentationVersion(InstrumentationVersion))
}

func (c *config) instruments() *instruments {
	return newInstruments(c.MeterProvider.Meter(instrumentationName, metric.WithInstrumentationVersion(InstrumentationVersion)))
}
