package otel

import (
	"context"
	"errors"
	"io"
	"maps"

	"github.com/terraskye/eventcore"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TelemetryStore wraps an EventStore with tracing spans and metrics.
//
// Append injects the current trace context into the metadata of every event
// so that consumers can link their spans back to the producer.
type TelemetryStore struct {
	next   eventcore.EventStore
	cfg    *config
	tracer trace.Tracer
	inst   *instruments
}

var _ eventcore.EventStore = (*TelemetryStore)(nil)

// WithEventStoreTelemetry wraps next with OpenTelemetry instrumentation.
//
// Example Usage:
//
//	store := otel.WithEventStoreTelemetry(memory.NewMemoryStore())
//	res, err := store.Append(ctx, "user-1", events, eventcore.NoStream{})
func WithEventStoreTelemetry(next eventcore.EventStore, options ...Option) *TelemetryStore {
	cfg := newConfig(options)
	return &TelemetryStore{
		next:   next,
		cfg:    cfg,
		tracer: cfg.tracer(),
		inst:   cfg.instruments(),
	}
}

// Unwrap returns the decorated store.
func (s *TelemetryStore) Unwrap() eventcore.EventStore {
	return s.next
}

func (s *TelemetryStore) Append(ctx context.Context, streamID string, events []eventcore.Envelope, expected eventcore.StreamState) (eventcore.AppendResult, error) {
	if expected == nil {
		expected = eventcore.Any{}
	}
	ctx, span := s.tracer.Start(ctx, s.cfg.operation(ctx, "EventStore.Append"),
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(s.cfg.attributes(ctx,
			AttrStreamID.String(streamID),
			AttrEventCount.Int(len(events)),
			AttrExpectedState.String(expected.String()),
		)...),
	)
	defer span.End()

	carrier := make(propagation.MapCarrier)
	s.cfg.Propagator.Inject(ctx, carrier)

	traced := make([]eventcore.Envelope, len(events))
	for i, env := range events {
		md := maps.Clone(env.Metadata)
		if md == nil && len(carrier) > 0 {
			md = make(map[string]any, len(carrier))
		}
		for k, v := range carrier {
			md[k] = v
		}
		env.Metadata = md
		traced[i] = env
	}

	result, err := s.next.Append(ctx, streamID, traced, expected)
	if err != nil {
		if errors.Is(err, eventcore.ErrConcurrencyViolation) {
			s.inst.conflicts.Add(ctx, 1, metric.WithAttributes(AttrStreamID.String(streamID)))
			span.SetAttributes(AttrErrorType.String("concurrency_conflict"))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}

	span.SetAttributes(AttrStreamVersion.Int64(result.NextExpectedVersion))
	for _, env := range result.Events {
		s.inst.eventsAppended.Add(ctx, 1, metric.WithAttributes(AttrEventType.String(env.Event.EventType())))
	}
	span.SetStatus(codes.Ok, "")
	return result, nil
}

func (s *TelemetryStore) Load(ctx context.Context, streamID string) ([]*eventcore.Envelope, error) {
	ctx, span := s.startRead(ctx, "EventStore.Load", AttrStreamID.String(streamID))
	defer span.End()

	events, err := s.next.Load(ctx, streamID)
	return s.endLoad(ctx, span, events, err)
}

func (s *TelemetryStore) LoadFrom(ctx context.Context, streamID string, version uint64) ([]*eventcore.Envelope, error) {
	ctx, span := s.startRead(ctx, "EventStore.LoadFrom",
		AttrStreamID.String(streamID),
		AttrLoadFromVersion.Int64(int64(version)),
	)
	defer span.End()

	events, err := s.next.LoadFrom(ctx, streamID, version)
	return s.endLoad(ctx, span, events, err)
}

// LoadAll traces opening the global iterator. Events consumed from it are
// counted as they are read.
func (s *TelemetryStore) LoadAll(ctx context.Context) (*eventcore.Iterator[*eventcore.Envelope], error) {
	ctx, span := s.startRead(ctx, "EventStore.LoadAll")
	defer span.End()

	it, err := s.next.LoadAll(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetStatus(codes.Ok, "")

	loaded := s.inst.eventsLoaded
	return eventcore.NewIteratorFunc(func(ctx context.Context) (*eventcore.Envelope, error) {
		if !it.Next(ctx) {
			if err := it.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		env := it.Value()
		loaded.Add(ctx, 1, metric.WithAttributes(AttrEventType.String(env.Event.EventType())))
		return env, nil
	}), nil
}

func (s *TelemetryStore) StreamVersion(ctx context.Context, streamID string) (int64, error) {
	ctx, span := s.startRead(ctx, "EventStore.StreamVersion", AttrStreamID.String(streamID))
	defer span.End()

	version, err := s.next.StreamVersion(ctx, streamID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return version, err
	}
	span.SetAttributes(AttrStreamVersion.Int64(version))
	span.SetStatus(codes.Ok, "")
	return version, nil
}

func (s *TelemetryStore) Close() error {
	return s.next.Close()
}

func (s *TelemetryStore) startRead(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(s.cfg.attributes(ctx, attrs...)...),
	)
}

func (s *TelemetryStore) endLoad(ctx context.Context, span trace.Span, events []*eventcore.Envelope, err error) ([]*eventcore.Envelope, error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return events, err
	}
	span.SetAttributes(AttrEventCount.Int(len(events)))
	for _, env := range events {
		s.inst.eventsLoaded.Add(ctx, 1, metric.WithAttributes(AttrEventType.String(env.Event.EventType())))
	}
	span.SetStatus(codes.Ok, "")
	return events, nil
}
