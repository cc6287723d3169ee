package fixtures

import (
	"context"
	"io"

	"github.com/terraskye/eventcore"
)

// EmptyIterator returns an iterator that yields no items.
func EmptyIterator() *eventcore.Iterator[*eventcore.Envelope] {
	return eventcore.NewIteratorFunc(func(ctx context.Context) (*eventcore.Envelope, error) {
		return nil, io.EOF
	})
}

// FailingIterator returns an iterator that yields envs and then fails with err.
func FailingIterator(err error, envs ...*eventcore.Envelope) *eventcore.Iterator[*eventcore.Envelope] {
	var i int
	return eventcore.NewIteratorFunc(func(ctx context.Context) (*eventcore.Envelope, error) {
		if i < len(envs) {
			env := envs[i]
			i++
			return env, nil
		}
		return nil, err
	})
}
