package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadFromMapDefaults(t *testing.T) {
	cfg, err := LoadFromMap(map[string]string{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	want := Config{
		LogLevel:         "info",
		LogFormat:        "text",
		HandlerTimeout:   30 * time.Second,
		CommandRetries:   3,
		RetryInterval:    10 * time.Millisecond,
		CommandShards:    4,
		CommandBuffer:    64,
		MetricsNamespace: "eventcore",
	}
	if cfg != want {
		t.Fatalf("expected %+v, got %+v", want, cfg)
	}
	if Default() != want {
		t.Fatalf("Default() differs from defaults: %+v", Default())
	}
}

func TestLoadFromMapOverrides(t *testing.T) {
	cfg, err := LoadFromMap(map[string]string{
		"EVENTCORE_LOG_LEVEL":       "debug",
		"EVENTCORE_LOG_FORMAT":      "json",
		"EVENTCORE_HANDLER_TIMEOUT": "0s",
		"EVENTCORE_COMMAND_RETRIES": "7",
		"EVENTCORE_COMMAND_SHARDS":  "1",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.LogFormat != "json" {
		t.Fatalf("unexpected log settings: %+v", cfg)
	}
	if cfg.HandlerTimeout != 0 {
		t.Fatalf("expected timeout disabled, got %s", cfg.HandlerTimeout)
	}
	if cfg.CommandRetries != 7 || cfg.CommandShards != 1 {
		t.Fatalf("unexpected command settings: %+v", cfg)
	}
}

func TestLoadFromMapErrors(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
		want string
	}{
		{
			name: "unparsable duration",
			vars: map[string]string{"EVENTCORE_HANDLER_TIMEOUT": "soon"},
			want: "parse env:",
		},
		{
			name: "negative timeout",
			vars: map[string]string{"EVENTCORE_HANDLER_TIMEOUT": "-1s"},
			want: "EVENTCORE_HANDLER_TIMEOUT",
		},
		{
			name: "no shards",
			vars: map[string]string{"EVENTCORE_COMMAND_SHARDS": "0"},
			want: "EVENTCORE_COMMAND_SHARDS",
		},
		{
			name: "unknown format",
			vars: map[string]string{"EVENTCORE_LOG_FORMAT": "xml"},
			want: "EVENTCORE_LOG_FORMAT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromMap(tt.vars)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q in error, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("EVENTCORE_COMMAND_BUFFER", "8")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CommandBuffer != 8 {
		t.Fatalf("expected buffer 8, got %d", cfg.CommandBuffer)
	}
}
