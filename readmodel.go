package eventcore

import (
	"context"
	"errors"
	"fmt"
)

// ReadModel represents a query-side data model in a CQRS architecture. It
// is fed by events and can be emptied to be rebuilt from the log.
type ReadModel interface {
	EventHandler
	Reset()
}

// Replay resets rm and feeds it every event of the global log in position
// order, returning the number of events applied. Events the read model skips
// are not counted. Dispatch stops at the first handler error.
func Replay(ctx context.Context, store EventStore, rm ReadModel) (int, error) {
	it, err := store.LoadAll(ctx)
	if err != nil {
		return 0, WrapEventStoreError(err)
	}

	rm.Reset()

	var applied int
	for it.Next(ctx) {
		env := it.Value()
		err := rm.Handle(WithEnvelope(ctx, env), env.Event)

		var skipped *ErrSkippedEvent
		switch {
		case err == nil:
			applied++
		case errors.As(err, &skipped):
		default:
			return applied, fmt.Errorf("replay %s at position %d: %w", env.StreamID, env.Position, err)
		}
	}
	return applied, it.Err()
}
