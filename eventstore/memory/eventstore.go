// Package memory provides an in-process EventStore and DeadLetterStore.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/terraskye/eventcore"
)

// segment is the log of one stream. Appends and reads of a stream go through
// its own lock so unrelated streams never contend.
type segment struct {
	mu     sync.RWMutex
	events []*eventcore.Envelope
}

// MemoryStore keeps streams in an arena of segments indexed by stream id.
type MemoryStore struct {
	log *slog.Logger
	now func() time.Time

	// arena guards the segment index only.
	arena    sync.RWMutex
	segments map[string]*segment

	// global guards the position ordered log.
	global sync.RWMutex
	all    []*eventcore.Envelope

	dlq         sync.Mutex
	deadLetters []eventcore.DeadLetter

	closed atomic.Bool
}

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithLogger sets the logger, slog.Default() otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(s *MemoryStore) {
		s.log = l
	}
}

// WithClock overrides the clock used to timestamp dead letters.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		log:      slog.Default(),
		now:      time.Now,
		segments: make(map[string]*segment),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(slog.String("store", "memory"))
	return s
}

var (
	_ eventcore.EventStore      = (*MemoryStore)(nil)
	_ eventcore.DeadLetterStore = (*MemoryStore)(nil)
)

func (m *MemoryStore) segment(streamID string, create bool) *segment {
	m.arena.RLock()
	seg, ok := m.segments[streamID]
	m.arena.RUnlock()
	if ok || !create {
		return seg
	}

	m.arena.Lock()
	defer m.arena.Unlock()
	if seg, ok = m.segments[streamID]; ok {
		return seg
	}
	seg = &segment{}
	m.segments[streamID] = seg
	return seg
}

// Append implements eventcore.EventStore.
func (m *MemoryStore) Append(ctx context.Context, streamID string, events []eventcore.Envelope, expected eventcore.StreamState) (eventcore.AppendResult, error) {
	if m.closed.Load() {
		return eventcore.AppendResult{}, eventcore.ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return eventcore.AppendResult{}, err
	}
	if expected == nil {
		expected = eventcore.Any{}
	}

	for i, env := range events {
		if env.Event == nil {
			return eventcore.AppendResult{}, fmt.Errorf(
				"append to stream %q: %w: event %d is nil",
				streamID, eventcore.ErrInvalidEventBatch, i,
			)
		}
		if id := env.Event.AggregateID(); id != streamID {
			return eventcore.AppendResult{}, fmt.Errorf(
				"append to stream %q: %w: event %d belongs to %q",
				streamID, eventcore.ErrInvalidEventBatch, i, id,
			)
		}
	}

	if len(events) == 0 {
		version, err := m.StreamVersion(ctx, streamID)
		if err != nil {
			return eventcore.AppendResult{}, err
		}
		return eventcore.AppendResult{Successful: true, NextExpectedVersion: version}, nil
	}

	seg := m.segment(streamID, true)
	seg.mu.Lock()
	defer seg.mu.Unlock()

	current := int64(len(seg.events)) - 1
	ok, err := eventcore.Matches(expected, current)
	if err != nil {
		return eventcore.AppendResult{}, fmt.Errorf("append to stream %q: %w", streamID, err)
	}
	if !ok {
		m.log.Debug("append rejected",
			slog.String("stream", streamID),
			slog.String("expected", expected.String()),
			slog.Int64("actual", current),
		)
		return eventcore.AppendResult{}, &eventcore.StreamRevisionConflictError{
			Stream:           streamID,
			ExpectedRevision: expected,
			ActualRevision:   current,
		}
	}

	persisted := make([]*eventcore.Envelope, len(events))

	m.global.Lock()
	position := uint64(len(m.all))
	for i := range events {
		env := events[i]
		position++
		env.StreamID = streamID
		env.Version = uint64(current + int64(i) + 1)
		env.Position = position
		env.Metadata = maps.Clone(env.Metadata)
		persisted[i] = &env
	}
	m.all = append(m.all, persisted...)
	m.global.Unlock()

	seg.events = append(seg.events, persisted...)
	next := current + int64(len(persisted))

	m.log.Debug("events appended",
		slog.String("stream", streamID),
		slog.Int("events", len(persisted)),
		slog.Int64("version", next),
	)

	out := make([]*eventcore.Envelope, len(persisted))
	for i, env := range persisted {
		out[i] = clone(env)
	}
	return eventcore.AppendResult{
		Successful:          true,
		NextExpectedVersion: next,
		Events:              out,
	}, nil
}

// Load implements eventcore.EventStore.
func (m *MemoryStore) Load(ctx context.Context, streamID string) ([]*eventcore.Envelope, error) {
	return m.LoadFrom(ctx, streamID, 0)
}

// LoadFrom implements eventcore.EventStore. A version past the end of the
// stream yields an empty slice.
func (m *MemoryStore) LoadFrom(ctx context.Context, streamID string, version uint64) ([]*eventcore.Envelope, error) {
	if m.closed.Load() {
		return nil, eventcore.ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seg := m.segment(streamID, false)
	if seg == nil {
		return []*eventcore.Envelope{}, nil
	}

	seg.mu.RLock()
	defer seg.mu.RUnlock()

	if version >= uint64(len(seg.events)) {
		return []*eventcore.Envelope{}, nil
	}
	out := make([]*eventcore.Envelope, 0, len(seg.events)-int(version))
	for _, env := range seg.events[version:] {
		out = append(out, clone(env))
	}
	return out, nil
}

// LoadAll implements eventcore.EventStore. The iterator covers the events
// appended before the call.
func (m *MemoryStore) LoadAll(ctx context.Context) (*eventcore.Iterator[*eventcore.Envelope], error) {
	if m.closed.Load() {
		return nil, eventcore.ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.global.RLock()
	snapshot := m.all[:len(m.all):len(m.all)]
	m.global.RUnlock()

	out := make([]*eventcore.Envelope, len(snapshot))
	for i, env := range snapshot {
		out[i] = clone(env)
	}
	return eventcore.NewSliceIterator(out), nil
}

// StreamVersion implements eventcore.EventStore.
func (m *MemoryStore) StreamVersion(ctx context.Context, streamID string) (int64, error) {
	if m.closed.Load() {
		return -1, eventcore.ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return -1, err
	}

	seg := m.segment(streamID, false)
	if seg == nil {
		return -1, nil
	}
	seg.mu.RLock()
	defer seg.mu.RUnlock()
	return int64(len(seg.events)) - 1, nil
}

// Streams returns the number of streams holding at least one event.
func (m *MemoryStore) Streams() int {
	m.arena.RLock()
	defer m.arena.RUnlock()

	var n int
	for _, seg := range m.segments {
		seg.mu.RLock()
		if len(seg.events) > 0 {
			n++
		}
		seg.mu.RUnlock()
	}
	return n
}

// Close implements eventcore.EventStore.
func (m *MemoryStore) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	m.log.Debug("store closed")
	return nil
}

// DeadLetter implements eventcore.DeadLetterStore.
func (m *MemoryStore) DeadLetter(ctx context.Context, entry eventcore.DeadLetter) error {
	if m.closed.Load() {
		return eventcore.ErrStoreClosed
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.FailedAt.IsZero() {
		entry.FailedAt = m.now()
	}
	if entry.Attempts == 0 {
		entry.Attempts = 1
	}
	if entry.Envelope != nil {
		entry.Envelope = clone(entry.Envelope)
	}

	m.dlq.Lock()
	m.deadLetters = append(m.deadLetters, entry)
	m.dlq.Unlock()

	m.log.Warn("event dead-lettered",
		slog.String("dead_letter_id", entry.ID.String()),
		slog.String("handler", entry.Handler),
		slog.String("reason", entry.Reason),
	)
	return nil
}

// DeadLetters implements eventcore.DeadLetterStore.
func (m *MemoryStore) DeadLetters(ctx context.Context) ([]eventcore.DeadLetter, error) {
	if m.closed.Load() {
		return nil, eventcore.ErrStoreClosed
	}

	m.dlq.Lock()
	defer m.dlq.Unlock()

	out := make([]eventcore.DeadLetter, len(m.deadLetters))
	for i, entry := range m.deadLetters {
		if entry.Envelope != nil {
			entry.Envelope = clone(entry.Envelope)
		}
		out[i] = entry
	}
	return out, nil
}

// RecordRetryFailure implements eventcore.DeadLetterStore.
func (m *MemoryStore) RecordRetryFailure(ctx context.Context, id uuid.UUID, reason string) error {
	if m.closed.Load() {
		return eventcore.ErrStoreClosed
	}

	m.dlq.Lock()
	defer m.dlq.Unlock()

	for i := range m.deadLetters {
		if m.deadLetters[i].ID == id {
			m.deadLetters[i].Attempts++
			m.deadLetters[i].Reason = reason
			m.deadLetters[i].FailedAt = m.now()
			return nil
		}
	}
	return fmt.Errorf("dead letter %s: %w", id, eventcore.ErrDeadLetterUnknown)
}

// ResolveDeadLetter implements eventcore.DeadLetterStore.
func (m *MemoryStore) ResolveDeadLetter(ctx context.Context, id uuid.UUID) error {
	if m.closed.Load() {
		return eventcore.ErrStoreClosed
	}

	m.dlq.Lock()
	defer m.dlq.Unlock()

	for i := range m.deadLetters {
		if m.deadLetters[i].ID == id {
			m.deadLetters = append(m.deadLetters[:i], m.deadLetters[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("dead letter %s: %w", id, eventcore.ErrDeadLetterUnknown)
}

func clone(env *eventcore.Envelope) *eventcore.Envelope {
	c := *env
	c.Metadata = maps.Clone(env.Metadata)
	return &c
}
