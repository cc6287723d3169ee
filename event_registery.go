package eventcore

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrEventNotRegistered is returned when decoding an unknown event type.
var ErrEventNotRegistered = errors.New("event not registered")

type eventFactory struct {
	zero   func() Event
	decode func(payload []byte) (Event, error)
}

var (
	// registry maps event type names to their factories.
	registry = map[string]eventFactory{}

	// mu protects access to the registry for concurrent operations.
	mu sync.RWMutex
)

// RegisterEvent registers T under the name returned by its EventType method.
//
// Panics:
//   - If an event with the same name is already registered.
//
// Example Usage:
//
//	func init() { eventcore.RegisterEvent[Registered]() }
func RegisterEvent[T Event]() {
	var zero T
	RegisterEventByName[T](zero.EventType())
}

// RegisterEventByName registers T under a custom name, independent of
// EventType. Decoding a payload under name produces a value of type T.
func RegisterEventByName[T Event](name string) {
	if name == "" {
		panic("cannot register event under an empty name")
	}

	mu.Lock()
	defer mu.Unlock()

	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("event already registered: %s", name))
	}

	registry[name] = eventFactory{
		zero: func() Event {
			var ev T
			return ev
		},
		decode: func(payload []byte) (Event, error) {
			var ev T
			if err := json.Unmarshal(payload, &ev); err != nil {
				return nil, err
			}
			return ev, nil
		},
	}
}

// NewEventByName creates the zero value of a registered event.
func NewEventByName(name string) (Event, error) {
	f, err := lookupEvent(name)
	if err != nil {
		return nil, err
	}
	return f.zero(), nil
}

// DecodeEvent decodes a JSON payload into the event registered under name.
func DecodeEvent(name string, payload []byte) (Event, error) {
	f, err := lookupEvent(name)
	if err != nil {
		return nil, err
	}
	ev, err := f.decode(payload)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return ev, nil
}

// RegisteredEvents returns the sorted names of all registered events.
func RegisteredEvents() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func lookupEvent(name string) (eventFactory, error) {
	mu.RLock()
	f, ok := registry[name]
	mu.RUnlock()

	if !ok {
		return eventFactory{}, fmt.Errorf("%w: %s", ErrEventNotRegistered, name)
	}
	return f, nil
}
