package eventcore

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
)

// ErrCommandBusStopped is returned by Dispatch after Stop.
var ErrCommandBusStopped = fmt.Errorf("command bus is stopped")

// queuedCommand represents a command enqueued in the command bus for processing.
type queuedCommand struct {
	Ctx        context.Context
	Command    Command
	ResponseCh chan<- commandResult
}

type commandResult struct {
	Result CommandResult
	Err    error
}

// CommandBus is an in-memory, type-safe command dispatcher.
//
// Commands are sharded by aggregate id so that commands for the same
// aggregate run one at a time, in dispatch order, while commands for
// different aggregates proceed in parallel. Handler panics are recovered and
// returned as errors.
type CommandBus struct {
	handlers   map[string]func(ctx context.Context, command Command) (CommandResult, error)
	queues     []chan queuedCommand
	wg         sync.WaitGroup
	workers    sync.WaitGroup
	mu         sync.RWMutex
	stopped    bool
	shardCount int
}

// NewCommandBus creates a CommandBus with shardCount workers, each reading
// from a queue of bufferSize commands.
//
// Example:
//
//	bus := NewCommandBus(64, 4)
//	Register(bus, service.Register)
func NewCommandBus(bufferSize int, shardCount int) *CommandBus {
	if shardCount <= 0 {
		shardCount = 1
	}
	if bufferSize < 0 {
		bufferSize = 0
	}

	bus := &CommandBus{
		queues:     make([]chan queuedCommand, shardCount),
		handlers:   make(map[string]func(ctx context.Context, command Command) (CommandResult, error)),
		shardCount: shardCount,
	}

	for i := 0; i < shardCount; i++ {
		bus.queues[i] = make(chan queuedCommand, bufferSize)
		bus.workers.Add(1)
		go bus.worker(bus.queues[i])
	}

	return bus
}

// Dispatch enqueues a command for processing by the registered handler and
// waits for the result. It is safe to call concurrently.
func (b *CommandBus) Dispatch(ctx context.Context, cmd Command) (CommandResult, error) {
	b.mu.RLock()
	if b.stopped {
		b.mu.RUnlock()
		return CommandResult{}, ErrCommandBusStopped
	}
	b.wg.Add(1)
	b.mu.RUnlock()
	defer b.wg.Done()

	responseCh := make(chan commandResult, 1)
	shard := b.getShard(cmd.AggregateID())

	select {
	case b.queues[shard] <- queuedCommand{Ctx: ctx, Command: cmd, ResponseCh: responseCh}:
		select {
		case result := <-responseCh:
			return result.Result, result.Err
		case <-ctx.Done():
			return CommandResult{}, ctx.Err()
		}
	case <-ctx.Done():
		return CommandResult{}, ctx.Err()
	}
}

// worker processes commands from a single shard queue.
func (b *CommandBus) worker(queue chan queuedCommand) {
	defer b.workers.Done()

	for cmd := range queue {
		cmdName := TypeName(cmd.Command)

		b.mu.RLock()
		h, exists := b.handlers[cmdName]
		b.mu.RUnlock()

		if !exists {
			cmd.ResponseCh <- commandResult{
				Err: fmt.Errorf("no handler for command %s: %w", cmdName, ErrHandlerNotFound),
			}
			continue
		}

		func() {
			defer func() {
				if r := recover(); r != nil {
					cmd.ResponseCh <- commandResult{
						Err: fmt.Errorf("panic in handler for %s: %v", cmdName, r),
					}
				}
			}()

			if err := cmd.Ctx.Err(); err != nil {
				cmd.ResponseCh <- commandResult{Err: err}
				return
			}
			res, err := h(cmd.Ctx, cmd.Command)
			cmd.ResponseCh <- commandResult{Result: res, Err: err}
		}()
	}
}

func (b *CommandBus) getShard(aggregateID string) int {
	hash := fnv.New32a()
	hash.Write([]byte(aggregateID))
	return int(hash.Sum32() % uint32(b.shardCount))
}

// Register adds a typed command handler to the bus. The command type name is
// derived from C. It panics if a handler is already registered for C.
//
// Example:
//
//	Register(bus, service.Rename)
func Register[C Command](b *CommandBus, handler CommandHandler[C]) {
	var zero C
	cmdName := TypeName(zero)

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.handlers[cmdName]; exists {
		panic(fmt.Sprintf("handler already registered for command type %s", cmdName))
	}

	b.handlers[cmdName] = func(ctx context.Context, cmd Command) (CommandResult, error) {
		c, ok := cmd.(C)
		if !ok {
			return CommandResult{}, fmt.Errorf("expected command type %s but got %T", cmdName, cmd)
		}
		return handler(ctx, c)
	}
}

// Stop stops accepting commands, waits for in-flight dispatches and shuts
// the workers down. It is safe to call more than once.
func (b *CommandBus) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	b.mu.Unlock()

	b.wg.Wait()
	for _, q := range b.queues {
		close(q)
	}
	b.workers.Wait()
}
