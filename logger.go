package eventcore

// Logger is the logging capability consumed by command services. It is
// satisfied by *logrus.Logger and *logrus.Entry.
type Logger interface {
	Info(args ...any)
	Warn(args ...any)
	Error(args ...any)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Info(...any)  {}
func (NopLogger) Warn(...any)  {}
func (NopLogger) Error(...any) {}
