package user

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/terraskye/eventcore"
)

// CommandService handles user commands: it validates them, persists the
// produced events and publishes them on the bus.
type CommandService struct {
	repo      *Repository
	registrar *Registrar
	bus       eventcore.EventBus
	log       eventcore.Logger
	newID     eventcore.IDGenerator
	backOff   func() backoff.BackOff

	// registerMu holds the registration rules and the save together, so two
	// ids cannot both claim a free name.
	registerMu sync.Mutex
}

// ServiceOption configures a CommandService.
type ServiceOption func(*CommandService)

// WithLogger sets the logger receiving handler failure warnings.
func WithLogger(l eventcore.Logger) ServiceOption {
	return func(s *CommandService) {
		s.log = l
	}
}

// WithIDGenerator overrides eventcore.NewCorrelationID.
func WithIDGenerator(gen eventcore.IDGenerator) ServiceOption {
	return func(s *CommandService) {
		s.newID = gen
	}
}

// WithRetryBackOff sets the policy used when a rename hits a concurrency
// conflict. The factory is called once per command.
func WithRetryBackOff(fn func() backoff.BackOff) ServiceOption {
	return func(s *CommandService) {
		s.backOff = fn
	}
}

// WithRegistrar replaces the default registration rules.
func WithRegistrar(r *Registrar) ServiceOption {
	return func(s *CommandService) {
		s.registrar = r
	}
}

// ConstantRetry retries up to retries times, interval apart.
func ConstantRetry(retries uint64, interval time.Duration) func() backoff.BackOff {
	return func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), retries)
	}
}

// NewCommandService wires a service over repo and bus.
func NewCommandService(repo *Repository, bus eventcore.EventBus, opts ...ServiceOption) *CommandService {
	s := &CommandService{
		repo:    repo,
		bus:     bus,
		log:     eventcore.NopLogger{},
		newID:   eventcore.NewCorrelationID,
		backOff: ConstantRetry(3, 10*time.Millisecond),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registrar == nil {
		s.registrar = NewRegistrar(repo)
	}
	return s
}

// Register handles RegisterUser. It is never retried: a concurrent
// registration of the same id fails with a concurrency violation.
// Registrations through one service are serialized from the rule checks up
// to the save.
func (s *CommandService) Register(ctx context.Context, cmd RegisterUser) (eventcore.CommandResult, error) {
	ctx = s.correlate(ctx, cmd.CommandID)
	streamID := cmd.AggregateID()
	result := eventcore.CommandResult{StreamID: streamID, Version: -1}

	if err := cmd.Validate(); err != nil {
		return result, err
	}

	u, envelopes, err := s.register(ctx, cmd)
	if err != nil {
		return result, fmt.Errorf("register user %d: %w", cmd.UserID, err)
	}

	s.log.Info(fmt.Sprintf("user %d registered as %q", cmd.UserID, u.Name()))
	return s.publish(ctx, result, envelopes)
}

func (s *CommandService) register(ctx context.Context, cmd RegisterUser) (*User, []*eventcore.Envelope, error) {
	s.registerMu.Lock()
	defer s.registerMu.Unlock()

	u, err := s.registrar.Register(ctx, cmd.UserID, cmd.Name)
	if err != nil {
		return nil, nil, err
	}
	envelopes, err := s.repo.Save(ctx, u, eventcore.NoStream{})
	if err != nil {
		return nil, nil, err
	}
	return u, envelopes, nil
}

// Rename handles RenameUser. On a concurrency conflict the user is reloaded
// and the rename reapplied according to the retry policy.
func (s *CommandService) Rename(ctx context.Context, cmd RenameUser) (eventcore.CommandResult, error) {
	ctx = s.correlate(ctx, cmd.CommandID)
	streamID := cmd.AggregateID()
	result := eventcore.CommandResult{StreamID: streamID, Version: -1}

	if err := cmd.Validate(); err != nil {
		return result, err
	}

	operation := func() ([]*eventcore.Envelope, error) {
		u, err := s.repo.Get(ctx, ID(cmd.UserID))
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if err := u.Rename(cmd.NewName); err != nil {
			return nil, backoff.Permanent(err)
		}

		envelopes, err := s.repo.Save(ctx, u, eventcore.ExpectedState(u.PersistedVersion()))
		if errors.Is(err, eventcore.ErrConcurrencyViolation) {
			s.log.Warn(fmt.Sprintf("rename user %d: %v, retrying", cmd.UserID, err))
			return nil, err
		}
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		return envelopes, nil
	}

	envelopes, err := backoff.RetryWithData(operation, backoff.WithContext(s.backOff(), ctx))
	if err != nil {
		return result, fmt.Errorf("rename user %d: %w", cmd.UserID, err)
	}

	s.log.Info(fmt.Sprintf("user %d renamed to %q", cmd.UserID, cmd.NewName))
	return s.publish(ctx, result, envelopes)
}

func (s *CommandService) correlate(ctx context.Context, commandID string) context.Context {
	correlationID := s.newID()
	if commandID == "" {
		commandID = correlationID
	}
	ctx = eventcore.WithCorrelationID(ctx, correlationID)
	return eventcore.WithCausationID(ctx, commandID)
}

// publish sends every persisted envelope to the bus. Non-critical failures
// are reported in the result; a critical failure stops publishing and is
// returned, the events stay persisted.
func (s *CommandService) publish(ctx context.Context, result eventcore.CommandResult, envelopes []*eventcore.Envelope) (eventcore.CommandResult, error) {
	result.Events = envelopes
	if n := len(envelopes); n > 0 {
		result.Version = int64(envelopes[n-1].Version)
	}

	for _, env := range envelopes {
		handlerErrs, err := s.bus.Publish(ctx, env)
		for _, herr := range handlerErrs {
			s.log.Warn(fmt.Sprintf("event %s on %s: %v", env.Event.EventType(), env.StreamID, herr))
		}
		result.HandlerErrors = append(result.HandlerErrors, handlerErrs...)

		if err != nil {
			s.log.Error(fmt.Sprintf("publish %s on %s: %v", env.Event.EventType(), env.StreamID, err))
			return result, fmt.Errorf("publish %s: %w", env.StreamID, err)
		}
	}
	return result, nil
}
