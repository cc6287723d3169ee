package eventcore

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventStore defines the contract for an append-only event store.
// Events are persisted per stream in sequential order, allowing full
// reconstruction of aggregate state.
//
// Implementations must guarantee:
//   - Versions of a stream are contiguous, starting at 0.
//   - Append is a single compare-and-append step: either the whole batch is
//     written or nothing is.
//   - Reads never observe a partially appended batch.
type EventStore interface {
	// Append writes events to streamID if the stream is in the expected state.
	//
	// The store assigns StreamID, Version and Position on each envelope and
	// returns the persisted copies. An empty batch succeeds without writing.
	//
	// Errors:
	//   - *StreamRevisionConflictError if the stream is not in the expected state.
	//   - ErrInvalidEventBatch if an event belongs to another aggregate.
	//   - ErrStoreClosed after Close.
	Append(ctx context.Context, streamID string, events []Envelope, expected StreamState) (AppendResult, error)

	// Load returns every event of the stream in version order, an empty slice
	// when the stream does not exist.
	Load(ctx context.Context, streamID string) ([]*Envelope, error)

	// LoadFrom returns the events of the stream starting at version.
	LoadFrom(ctx context.Context, streamID string, version uint64) ([]*Envelope, error)

	// LoadAll iterates a snapshot of the global log in position order.
	LoadAll(ctx context.Context) (*Iterator[*Envelope], error)

	// StreamVersion returns the version of the last event, -1 when absent.
	StreamVersion(ctx context.Context, streamID string) (int64, error)

	// Close releases resources held by the store. It is idempotent.
	Close() error
}

// AppendResult describes the outcome of an append operation.
type AppendResult struct {
	Successful bool
	// NextExpectedVersion is the version of the last event in the stream after
	// the append, -1 if the stream is still empty.
	NextExpectedVersion int64
	Events              []*Envelope
}

// DeadLetter is a failed handler invocation set aside for inspection and retry.
type DeadLetter struct {
	ID       uuid.UUID
	Envelope *Envelope
	Handler  string
	Reason   string
	FailedAt time.Time
	Attempts int
}

// DeadLetterStore is the sink for failed handler invocations. Entries are
// never removed except by ResolveDeadLetter.
type DeadLetterStore interface {
	DeadLetter(ctx context.Context, entry DeadLetter) error
	DeadLetters(ctx context.Context) ([]DeadLetter, error)
	RecordRetryFailure(ctx context.Context, id uuid.UUID, reason string) error
	ResolveDeadLetter(ctx context.Context, id uuid.UUID) error
}
