package user

import (
	"context"
	"errors"

	"github.com/terraskye/eventcore"
)

// Rule is a business rule checked before a command reaches the aggregate.
type Rule[T any] interface {
	Check(ctx context.Context, candidate T) error
}

// RuleFunc adapts a function to a Rule.
type RuleFunc[T any] func(ctx context.Context, candidate T) error

func (f RuleFunc[T]) Check(ctx context.Context, candidate T) error {
	return f(ctx, candidate)
}

type allOf[T any] []Rule[T]

func (rules allOf[T]) Check(ctx context.Context, candidate T) error {
	for _, r := range rules {
		if err := r.Check(ctx, candidate); err != nil {
			return err
		}
	}
	return nil
}

// AllOf passes when every rule passes and reports the first failure.
func AllOf[T any](rules ...Rule[T]) Rule[T] {
	return allOf[T](rules)
}

// Registration is the candidate checked by registration rules.
type Registration struct {
	ID   ID
	Name Name
}

// UniqueID fails when a user with the same id already exists.
func UniqueID(repo *Repository) Rule[Registration] {
	return RuleFunc[Registration](func(ctx context.Context, c Registration) error {
		_, err := repo.Get(ctx, c.ID)
		switch {
		case err == nil:
			return eventcore.NewValidationError("user_id", "user %d already exists", c.ID)
		case errors.Is(err, eventcore.ErrAggregateNotFound):
			return nil
		default:
			return err
		}
	})
}

// UniqueName fails when another user currently holds exactly the same name.
func UniqueName(repo *Repository) Rule[Registration] {
	return RuleFunc[Registration](func(ctx context.Context, c Registration) error {
		existing, err := repo.FindByName(ctx, c.Name)
		switch {
		case err == nil:
			return eventcore.NewValidationError("name", "username '%s' is already taken by user %d", c.Name, existing.ID())
		case errors.Is(err, eventcore.ErrAggregateNotFound):
			return nil
		default:
			return err
		}
	})
}

// Registrar creates users that satisfy the registration rules.
type Registrar struct {
	rule Rule[Registration]
}

// NewRegistrar enforces UniqueID and UniqueName, then any extra rules.
func NewRegistrar(repo *Repository, extra ...Rule[Registration]) *Registrar {
	rules := append([]Rule[Registration]{UniqueID(repo), UniqueName(repo)}, extra...)
	return &Registrar{rule: AllOf(rules...)}
}

// Register validates the input, checks the rules and returns a new user with
// its Registered event staged. Nothing is persisted.
func (r *Registrar) Register(ctx context.Context, id uint32, name string) (*User, error) {
	uid, err := NewID(id)
	if err != nil {
		return nil, err
	}
	n, err := NewName(name)
	if err != nil {
		return nil, err
	}
	if err := r.rule.Check(ctx, Registration{ID: uid, Name: n}); err != nil {
		return nil, err
	}
	return New(id, name)
}
