package eventcore

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrConcurrencyViolation is matched by every *StreamRevisionConflictError.
	ErrConcurrencyViolation = errors.New("concurrency violation")

	// ErrAggregateNotFound is returned when a lookup finds no events.
	ErrAggregateNotFound = errors.New("aggregate not found")

	// ErrInvalidState is returned when a mutation is attempted on an aggregate
	// whose state forbids it.
	ErrInvalidState = errors.New("invalid aggregate state")

	// ErrPublish is matched by every *PublishError.
	ErrPublish = errors.New("publish failed")

	// ErrPersistence is matched by every *EventStoreError.
	ErrPersistence = errors.New("persistence failure")

	ErrInvalidEventBatch = errors.New("invalid event batch")
	ErrInvalidRevision   = errors.New("invalid revision")
	ErrStoreClosed       = errors.New("event store is closed")
	ErrBusClosed         = errors.New("event bus is closed")
	ErrHandlerTimeout    = errors.New("handler timed out")
	ErrDuplicateHandler  = errors.New("duplicate handler")
	ErrHandlerNotFound   = errors.New("handler not found")
	ErrDeadLetterUnknown = errors.New("dead letter not found")
)

// ValidationError reports a business rule violated by a command or a mutation.
// No event is emitted when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Reason)
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError builds a *ValidationError with a formatted reason.
func NewValidationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// StreamRevisionConflictError is the optimistic lock failure: the stream was
// not in the expected state when the append was attempted.
type StreamRevisionConflictError struct {
	Stream           string
	ExpectedRevision StreamState
	// ActualRevision is the version of the last event in the stream, -1 when
	// the stream does not exist.
	ActualRevision int64
}

func (e *StreamRevisionConflictError) Error() string {
	return fmt.Sprintf("concurrency conflict on stream %q: (expected %s, actual %d)", e.Stream, e.ExpectedRevision, e.ActualRevision)
}

func (e *StreamRevisionConflictError) Is(target error) bool {
	return target == ErrConcurrencyViolation
}

// AggregateNotFoundError carries the id of the missing aggregate.
type AggregateNotFoundError struct {
	ID string
}

func (e *AggregateNotFoundError) Error() string {
	return fmt.Sprintf("aggregate not found: %s", e.ID)
}

func (e *AggregateNotFoundError) Is(target error) bool {
	return target == ErrAggregateNotFound
}

// ErrSkippedEvent is returned when a handler cannot handle the event type.
type ErrSkippedEvent struct {
	Event Event
}

func (e ErrSkippedEvent) Error() string {
	return fmt.Sprintf("skipped event of type %T", e.Event)
}

// HandlerError describes one failed handler invocation during a publish.
type HandlerError struct {
	Handler  string
	Priority Priority
	Critical bool
	EventID  string
	Err      error
}

func (e *HandlerError) Error() string {
	severity := "non-critical"
	if e.Critical {
		severity = "critical"
	}
	return fmt.Sprintf("handler %q failed [%s]: %v", e.Handler, severity, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// PublishError is returned by Publish when an execution-critical handler
// failed. Handlers that already ran are not rolled back.
type PublishError struct {
	Cause *HandlerError
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish error: %v", e.Cause)
}

func (e *PublishError) Unwrap() error {
	return e.Cause
}

func (e *PublishError) Is(target error) bool {
	return target == ErrPublish
}

// EventStoreError wraps a store level failure.
type EventStoreError struct {
	Err error
}

func (e *EventStoreError) Error() string {
	return fmt.Sprintf("eventstore error: %v", e.Err)
}

func (e *EventStoreError) Unwrap() error {
	return e.Err
}

func (e *EventStoreError) Is(target error) bool {
	return target == ErrPersistence
}

// WrapEventStoreError wraps err into an *EventStoreError, returning nil for a
// nil error. Conflict errors are returned unchanged so callers can retry them.
func WrapEventStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConcurrencyViolation) {
		return err
	}
	var storeErr *EventStoreError
	if errors.As(err, &storeErr) {
		return err
	}
	return &EventStoreError{Err: err}
}
