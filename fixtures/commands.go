package fixtures

// TestCommand is a configurable test command implementing the Command interface.
type TestCommand struct {
	ID   string
	Data string
}

func (c TestCommand) AggregateID() string { return c.ID }

// OtherCommand is a second command type for routing tests.
type OtherCommand struct {
	ID string
}

func (c OtherCommand) AggregateID() string { return c.ID }

// TestQuery is a configurable test query implementing the Query interface.
type TestQuery struct {
	Key string
}

func (q TestQuery) ID() []byte { return []byte(q.Key) }
