package eventcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// CommandResult is the outcome of a handled command.
type CommandResult struct {
	StreamID string
	// Version is the version of the last event in the stream after the
	// command, -1 if the stream is still empty.
	Version int64
	// Events are the envelopes persisted by the command.
	Events []*Envelope
	// HandlerErrors lists the non-critical handler failures that occurred
	// while publishing Events.
	HandlerErrors []*HandlerError
}

// CommandHandler defines a function type for handling commands of a specific type.
//
// A CommandHandler implements the business logic associated with a command:
// validation, loading the aggregate, persisting the produced events and
// publishing them. Handlers are registered with a CommandBus, which
// dispatches commands to the right handler based on their type.
//
// Notes:
//   - Implementations should treat the command as immutable.
//   - Domain state changes are expressed via events (CommandResult.Events).
//   - Handlers should not panic; all errors should be returned.
type CommandHandler[C Command] func(ctx context.Context, command C) (CommandResult, error)

// StreamNamer produces the stream name for a given command, with access to context
type StreamNamer func(ctx context.Context, cmd Command) string

// DefaultStreamNamer returns the AggregateID of the command as the stream name.
var DefaultStreamNamer StreamNamer = func(ctx context.Context, cmd Command) string {
	return cmd.AggregateID()
}

// Evolver evolves the given state into a new state with the event applied.
type Evolver[T any] func(currentState T, envelope *Envelope) T

// Decider determines which events should occur based on the current state
// and a command. Returning no events means the command had no effect.
type Decider[T any, C Command] func(state T, cmd C) ([]Event, error)

// CommandHandlerOption modifies handlerOptions.
type CommandHandlerOption func(configuration *handlerOptions)

// NewCommandHandler returns a generic command handler for aggregates modelled
// as a fold over their events rather than as an Aggregate value.
//
// Each invocation:
//  1. Loads the stream and evolves the state from initialState.
//  2. Decides which events the command produces.
//  3. Wraps them in envelopes and appends them, expecting the stream to be at
//     the loaded version unless WithRevision overrides it.
//
// A concurrency conflict reloads the stream and retries according to the
// configured retry strategy (no retries by default). Every other failure is
// permanent.
func NewCommandHandler[T any, C Command](
	store EventStore,
	initialState T,
	evolve Evolver[T],
	decide Decider[T, C],
	opts ...CommandHandlerOption,
) CommandHandler[C] {
	cfg := &handlerOptions{
		RetryStrategy: func() backoff.BackOff { return &backoff.StopBackOff{} },
		StreamNamer:   DefaultStreamNamer,
	}
	for _, o := range opts {
		o(cfg)
	}

	return func(ctx context.Context, command C) (CommandResult, error) {
		stream := cfg.StreamNamer(ctx, command)

		operation := func() (CommandResult, error) {
			history, err := store.Load(ctx, stream)
			if err != nil {
				return CommandResult{StreamID: stream, Version: -1},
					backoff.Permanent(fmt.Errorf("handle command %T for aggregate %q (stream %q): load failed: %w", command, command.AggregateID(), stream, err))
			}

			state := initialState
			version := int64(-1)
			for _, envelope := range history {
				version = int64(envelope.Version)
				state = evolve(state, envelope)
			}

			events, err := decide(state, command)
			if err != nil {
				return CommandResult{StreamID: stream, Version: version},
					backoff.Permanent(fmt.Errorf("handle command %T for aggregate %q (stream %q): business rule violation: %w", command, command.AggregateID(), stream, err))
			}

			if len(events) == 0 {
				return CommandResult{StreamID: stream, Version: version}, nil
			}

			metadata := make(map[string]any)
			for _, fn := range cfg.MetadataFuncs {
				for k, v := range fn(ctx) {
					metadata[k] = v
				}
			}

			at := now()
			envelopes := make([]Envelope, len(events))
			for i, event := range events {
				envelopes[i] = Envelope{
					EventID:       uuid.New(),
					StreamID:      stream,
					Version:       uint64(version + int64(i) + 1),
					CorrelationID: CorrelationIDFromContext(ctx),
					CausationID:   CausationIDFromContext(ctx),
					Event:         event,
					Metadata:      metadata,
					OccurredAt:    at,
				}
			}

			expected := cfg.Revision
			if expected == nil {
				expected = ExpectedState(version)
			}

			result, err := store.Append(ctx, stream, envelopes, expected)
			if err != nil {
				var conflict *StreamRevisionConflictError
				if errors.As(err, &conflict) {
					return CommandResult{StreamID: stream, Version: version}, conflict
				}
				return CommandResult{StreamID: stream, Version: version},
					backoff.Permanent(fmt.Errorf("handle command %T for aggregate %q (stream %q): failed to save event: %w", command, command.AggregateID(), stream, WrapEventStoreError(err)))
			}
			return CommandResult{StreamID: stream, Version: result.NextExpectedVersion, Events: result.Events}, nil
		}

		return backoff.RetryWithData(operation, backoff.WithContext(cfg.RetryStrategy(), ctx))
	}
}

type handlerOptions struct {
	// Revision overrides the expected stream state. When nil the state loaded
	// before deciding is expected.
	Revision StreamState

	// RetryStrategy builds a fresh backoff for every invocation.
	RetryStrategy func() backoff.BackOff

	// MetadataFuncs enrich events with metadata before saving.
	MetadataFuncs []func(ctx context.Context) map[string]any

	// StreamNamer produces the name of the event stream for a command.
	StreamNamer StreamNamer
}

// WithRevision fixes the expected stream state, e.g. Any{} to disable the
// concurrency check or NoStream{} for commands that create a stream.
func WithRevision(rev StreamState) CommandHandlerOption {
	return func(cfg *handlerOptions) { cfg.Revision = rev }
}

// WithRetryStrategy sets the retry strategy applied on concurrency conflicts.
// The factory is called once per command so stateful backoffs are not shared.
//
// Usage:
//
//	handler := NewCommandHandler(store, initialState, evolve, decide,
//	    WithRetryStrategy(func() backoff.BackOff {
//	        return backoff.WithMaxRetries(backoff.NewConstantBackOff(10*time.Millisecond), 3)
//	    }))
func WithRetryStrategy(strategy func() backoff.BackOff) CommandHandlerOption {
	return func(cfg *handlerOptions) { cfg.RetryStrategy = strategy }
}

// WithMetadataExtractor adds a metadata function to a NewCommandHandler.
// Extractors are applied in order of registration; later keys win.
func WithMetadataExtractor(fn func(ctx context.Context) map[string]any) CommandHandlerOption {
	return func(h *handlerOptions) {
		h.MetadataFuncs = append(h.MetadataFuncs, fn)
	}
}

// WithStreamNamer overrides DefaultStreamNamer for one handler.
func WithStreamNamer(namer StreamNamer) CommandHandlerOption {
	return func(h *handlerOptions) {
		h.StreamNamer = namer
	}
}
