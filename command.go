package eventcore

// Command is an intent to change one aggregate. AggregateID routes the command
// to its stream and to a command bus shard.
type Command interface {
	AggregateID() string
}

// Validator is implemented by commands that can check their own fields
// before reaching an aggregate.
type Validator interface {
	Validate() error
}
