package eventcore

import "fmt"

// StreamState is the expectation an append places on the current state of a
// stream. It is a closed set: Any, NoStream, StreamExists and Revision.
type StreamState interface {
	fmt.Stringer
	streamState()
}

// Any means append without checking the current revision.
type Any struct{}

func (Any) streamState()   {}
func (Any) String() string { return "any" }

// NoStream means the stream must not have any events yet. It is the expected
// state for a brand-new aggregate.
type NoStream struct{}

func (NoStream) streamState()   {}
func (NoStream) String() string { return "no-stream" }

// StreamExists means the stream must hold at least one event.
type StreamExists struct{}

func (StreamExists) streamState()   {}
func (StreamExists) String() string { return "stream-exists" }

// Revision matches exactly the version of the last event in the stream.
type Revision uint64

func (Revision) streamState() {}
func (r Revision) String() string {
	return fmt.Sprintf("%d", uint64(r))
}

// ExpectedState maps an aggregate version, where -1 means no event has been
// persisted, to the stream state an append must find.
func ExpectedState(version int64) StreamState {
	if version < 0 {
		return NoStream{}
	}
	return Revision(version)
}

// Matches reports whether a stream whose last version is current (-1 for an
// absent stream) satisfies the expected state.
func Matches(expected StreamState, current int64) (bool, error) {
	switch rev := expected.(type) {
	case Any:
		return true, nil
	case NoStream:
		return current < 0, nil
	case StreamExists:
		return current >= 0, nil
	case Revision:
		return current >= 0 && uint64(current) == uint64(rev), nil
	default:
		return false, fmt.Errorf("stream state %T: %w", expected, ErrInvalidRevision)
	}
}
