package eventcore

import (
	"fmt"
	"sync"
)

// QueryBus acts as a central registry for query handlers. It stores
// handlers keyed by their query and result types, allowing multiple
// query types to be registered in a single bus.
//
// Handlers are executed via a typed GenericQueryGateway.
//
// Example Usage:
//
//	bus := NewQueryBus()
//	RegisterQueryHandler(bus, NewQueryHandlerFunc(func(ctx context.Context, q projection.ListUsers) ([]projection.UserView, error) {
//	    return users.All(), nil
//	}))
type QueryBus struct {
	mu       sync.RWMutex
	handlers map[string]any
}

// NewQueryBus creates a new, empty QueryBus.
func NewQueryBus() *QueryBus {
	return &QueryBus{
		handlers: make(map[string]any),
	}
}

// HandlerOption configures a handler at registration time.
type HandlerOption func(*handlerSettings)

type handlerSettings struct {
	wrap []func(any) any
}

// WithQueryMiddleware wraps the handler being registered. Middlewares are
// applied in order, the last one being the outermost.
func WithQueryMiddleware[T Query, R any](mw func(QueryHandler[T, R]) QueryHandler[T, R]) HandlerOption {
	return func(s *handlerSettings) {
		s.wrap = append(s.wrap, func(h any) any {
			return mw(h.(QueryHandler[T, R]))
		})
	}
}

func queryKey[T Query, R any]() string {
	return fmt.Sprintf("%T|%T", *new(T), *new(R))
}

// RegisterQueryHandler registers a QueryHandler for a specific query
// and result type on the provided QueryBus. It panics when a handler for
// the same pair is already registered.
func RegisterQueryHandler[T Query, R any](bus *QueryBus, handler QueryHandler[T, R], opts ...HandlerOption) {
	key := queryKey[T, R]()

	settings := &handlerSettings{}
	for _, opt := range opts {
		opt(settings)
	}

	var h any = handler
	for _, wrap := range settings.wrap {
		h = wrap(h)
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()

	if _, exists := bus.handlers[key]; exists {
		panic(fmt.Sprintf("duplicate query handler %s", key))
	}
	bus.handlers[key] = h
}

func (b *QueryBus) lookup(key string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	h, ok := b.handlers[key]
	return h, ok
}
