// Package logging builds the process logger and the logging middlewares.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Config selects the level and output format of the logger.
type Config struct {
	Level  string
	Format string
	Output io.Writer
}

// New builds a logrus logger. Format is "text" or "json".
func New(cfg Config) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}

	l := logrus.New()
	l.SetLevel(level)
	if cfg.Output != nil {
		l.SetOutput(cfg.Output)
	} else {
		l.SetOutput(os.Stderr)
	}

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return l, nil
}

// NewSlog builds a slog logger writing to the same output as l, at the
// matching level.
func NewSlog(l *logrus.Logger, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slogLevel(l.GetLevel())}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(l.Out, opts))
	}
	return slog.New(slog.NewTextHandler(l.Out, opts))
}

func slogLevel(level logrus.Level) slog.Level {
	switch {
	case level >= logrus.DebugLevel:
		return slog.LevelDebug
	case level == logrus.InfoLevel:
		return slog.LevelInfo
	case level == logrus.WarnLevel:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
