package fixtures

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/terraskye/eventcore"
)

// ErrHandlerFailed is returned by FailingHandler unless configured otherwise.
var ErrHandlerFailed = errors.New("handler failed")

// CallLog records invocations across several handlers, in order.
type CallLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *CallLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, name)
}

// Calls returns the names of the invoked handlers in invocation order.
func (l *CallLog) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// RecordingHandler stores every event it receives.
type RecordingHandler struct {
	Name string
	Log  *CallLog

	mu        sync.Mutex
	events    []eventcore.Event
	envelopes []*eventcore.Envelope
}

// NewRecordingHandler creates a handler that appends name to log on each call.
// log may be nil.
func NewRecordingHandler(name string, log *CallLog) *RecordingHandler {
	return &RecordingHandler{Name: name, Log: log}
}

func (h *RecordingHandler) Handle(ctx context.Context, ev eventcore.Event) error {
	h.mu.Lock()
	h.events = append(h.events, ev)
	h.envelopes = append(h.envelopes, eventcore.EnvelopeFromContext(ctx))
	h.mu.Unlock()

	if h.Log != nil {
		h.Log.add(h.Name)
	}
	return nil
}

// Events returns the received events.
func (h *RecordingHandler) Events() []eventcore.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]eventcore.Event(nil), h.events...)
}

// Envelopes returns the envelope found in the context of each call.
func (h *RecordingHandler) Envelopes() []*eventcore.Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*eventcore.Envelope(nil), h.envelopes...)
}

// FailingHandler fails the first Failures calls, every call when Failures
// is negative.
type FailingHandler struct {
	Name     string
	Log      *CallLog
	Err      error
	Failures int64

	calls atomic.Int64
}

// NewFailingHandler creates a handler that always fails with ErrHandlerFailed.
func NewFailingHandler(name string, log *CallLog) *FailingHandler {
	return &FailingHandler{Name: name, Log: log, Err: ErrHandlerFailed, Failures: -1}
}

func (h *FailingHandler) Handle(ctx context.Context, ev eventcore.Event) error {
	n := h.calls.Add(1)
	if h.Log != nil {
		h.Log.add(h.Name)
	}
	if h.Failures < 0 || n <= h.Failures {
		return h.Err
	}
	return nil
}

// Calls returns the number of invocations.
func (h *FailingHandler) Calls() int {
	return int(h.calls.Load())
}

// BlockingHandler blocks until its context is done or Release is closed.
type BlockingHandler struct {
	Release chan struct{}
	// Cancelled is closed once the handler observed its context ending.
	Cancelled chan struct{}

	once sync.Once
}

func NewBlockingHandler() *BlockingHandler {
	return &BlockingHandler{
		Release:   make(chan struct{}),
		Cancelled: make(chan struct{}),
	}
}

func (h *BlockingHandler) Handle(ctx context.Context, ev eventcore.Event) error {
	select {
	case <-h.Release:
		return nil
	case <-ctx.Done():
		h.once.Do(func() { close(h.Cancelled) })
		return ctx.Err()
	}
}

// PanickingHandler panics with Value.
type PanickingHandler struct {
	Value any
}

func (h PanickingHandler) Handle(context.Context, eventcore.Event) error {
	panic(h.Value)
}
