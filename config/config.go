// Package config loads the runtime settings of an eventcore application from
// the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the environment driven configuration.
type Config struct {
	LogLevel  string `env:"EVENTCORE_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"EVENTCORE_LOG_FORMAT" envDefault:"text"`

	// HandlerTimeout bounds every event handler invocation. Zero disables it.
	HandlerTimeout time.Duration `env:"EVENTCORE_HANDLER_TIMEOUT" envDefault:"30s"`

	// CommandRetries is the number of reloads attempted after a concurrency
	// conflict before a command fails.
	CommandRetries uint64        `env:"EVENTCORE_COMMAND_RETRIES" envDefault:"3"`
	RetryInterval  time.Duration `env:"EVENTCORE_RETRY_INTERVAL"  envDefault:"10ms"`

	CommandShards int `env:"EVENTCORE_COMMAND_SHARDS" envDefault:"4"`
	CommandBuffer int `env:"EVENTCORE_COMMAND_BUFFER" envDefault:"64"`

	MetricsNamespace string `env:"EVENTCORE_METRICS_NAMESPACE" envDefault:"eventcore"`
}

// Load parses the process environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// LoadFromMap parses vars instead of the process environment. Variables
// missing from vars take their default.
func LoadFromMap(vars map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Default returns the configuration with every default applied.
func Default() Config {
	cfg, _ := LoadFromMap(map[string]string{})
	return cfg
}

// Validate reports settings no component can run with.
func (c Config) Validate() error {
	var errs []error
	if c.HandlerTimeout < 0 {
		errs = append(errs, fmt.Errorf("EVENTCORE_HANDLER_TIMEOUT: must not be negative, got %s", c.HandlerTimeout))
	}
	if c.RetryInterval < 0 {
		errs = append(errs, fmt.Errorf("EVENTCORE_RETRY_INTERVAL: must not be negative, got %s", c.RetryInterval))
	}
	if c.CommandShards < 1 {
		errs = append(errs, fmt.Errorf("EVENTCORE_COMMAND_SHARDS: must be at least 1, got %d", c.CommandShards))
	}
	if c.CommandBuffer < 0 {
		errs = append(errs, fmt.Errorf("EVENTCORE_COMMAND_BUFFER: must not be negative, got %d", c.CommandBuffer))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("EVENTCORE_LOG_FORMAT: unknown format %q", c.LogFormat))
	}
	return errors.Join(errs...)
}
