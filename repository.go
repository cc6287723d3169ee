package eventcore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Rehydrator rebuilds an aggregate from its ordered event history. It must
// return *AggregateNotFoundError for an empty history.
type Rehydrator[T Aggregate] func(streamID string, history []Event) (T, error)

// Repository bridges aggregates of type T and an EventStore.
type Repository[T Aggregate] struct {
	store     EventStore
	rehydrate Rehydrator[T]
	metadata  []func(ctx context.Context) map[string]any
}

// RepositoryOption configures a Repository.
type RepositoryOption func(*repositoryOptions)

type repositoryOptions struct {
	metadata []func(ctx context.Context) map[string]any
}

// WithRepositoryMetadata adds a function whose result is merged into the
// metadata of every saved envelope. Extractors are applied in order.
func WithRepositoryMetadata(fn func(ctx context.Context) map[string]any) RepositoryOption {
	return func(o *repositoryOptions) {
		o.metadata = append(o.metadata, fn)
	}
}

// NewRepository creates a repository for aggregates rebuilt by rehydrate.
func NewRepository[T Aggregate](store EventStore, rehydrate Rehydrator[T], opts ...RepositoryOption) *Repository[T] {
	var o repositoryOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &Repository[T]{
		store:     store,
		rehydrate: rehydrate,
		metadata:  o.metadata,
	}
}

// Store returns the underlying event store.
func (r *Repository[T]) Store() EventStore {
	return r.store
}

// Save appends the uncommitted events of agg if the stream is in the
// expected state. The aggregate is marked committed only when the append
// succeeds; the persisted envelopes are returned for publishing.
//
// A conflict is returned as *StreamRevisionConflictError, any other store
// failure as *EventStoreError.
func (r *Repository[T]) Save(ctx context.Context, agg T, expected StreamState) ([]*Envelope, error) {
	changes := agg.UncommittedEvents()
	if len(changes) == 0 {
		return nil, nil
	}

	streamID := agg.AggregateID()
	correlationID := CorrelationIDFromContext(ctx)
	causationID := CausationIDFromContext(ctx)

	var metadata map[string]any
	for _, fn := range r.metadata {
		for k, v := range fn(ctx) {
			if metadata == nil {
				metadata = make(map[string]any)
			}
			metadata[k] = v
		}
	}

	at := now()
	envelopes := make([]Envelope, len(changes))
	for i, event := range changes {
		envelopes[i] = Envelope{
			EventID:       uuid.New(),
			StreamID:      streamID,
			CorrelationID: correlationID,
			CausationID:   causationID,
			Metadata:      metadata,
			Event:         event,
			OccurredAt:    at,
		}
	}

	result, err := r.store.Append(ctx, streamID, envelopes, expected)
	if err != nil {
		return nil, WrapEventStoreError(fmt.Errorf("save %s: %w", streamID, err))
	}

	agg.MarkCommitted()
	return result.Events, nil
}

// GetByID loads the stream and rebuilds the aggregate.
func (r *Repository[T]) GetByID(ctx context.Context, streamID string) (T, error) {
	var zero T

	envelopes, err := r.store.Load(ctx, streamID)
	if err != nil {
		return zero, WrapEventStoreError(fmt.Errorf("load %s: %w", streamID, err))
	}
	if len(envelopes) == 0 {
		return zero, &AggregateNotFoundError{ID: streamID}
	}

	history := make([]Event, len(envelopes))
	for i, env := range envelopes {
		history[i] = env.Event
	}
	return r.rehydrate(streamID, history)
}
