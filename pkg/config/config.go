package config

import (
	"fmt"
	"time"
)

// Config is the resolved server configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	State  StateConfig  `yaml:"state"`
	Events EventsConfig `yaml:"events"`
	Sinks  SinksConfig  `yaml:"sinks"`
}

// ServerConfig groups HTTP listener settings.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `yaml:"addr"`

	// AdminGroup names the group whose members may cancel or abort
	// operations they do not operate. Empty disables the admin override.
	AdminGroup string `yaml:"admin_group"`

	// AllowedWSOrigins is the origin allowlist for watch streams.
	// Empty accepts same-origin requests only.
	AllowedWSOrigins []string `yaml:"allowed_ws_origins"`
}

// StateConfig locates the persistence journal.
type StateConfig struct {
	// SnapshotPath is the JSON snapshot written atomically on every commit.
	SnapshotPath string `yaml:"snapshot_path"`

	// HistoryPath is the append-only JSONL status-change log.
	HistoryPath string `yaml:"history_path"`
}

// EventsConfig tunes the in-process event bus.
type EventsConfig struct {
	// QueueSize bounds each subscriber queue. A full queue evicts the
	// subscriber rather than blocking the writer.
	QueueSize int `yaml:"queue_size"`

	// WriteTimeout bounds a single WebSocket send.
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// SinksConfig tunes system-sink delivery.
type SinksConfig struct {
	// Deadline bounds one delivery attempt to a sink.
	Deadline time.Duration `yaml:"deadline"`

	// MaxRetries is the number of backoff retries before a sink is
	// marked degraded.
	MaxRetries int `yaml:"max_retries"`

	// InitialBackoff seeds the exponential backoff between retries.
	InitialBackoff time.Duration `yaml:"initial_backoff"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		State: StateConfig{
			SnapshotPath: "state.json",
			HistoryPath:  "history.jsonl",
		},
		Events: EventsConfig{
			QueueSize:    1024,
			WriteTimeout: 10 * time.Second,
		},
		Sinks: SinksConfig{
			Deadline:       5 * time.Second,
			MaxRetries:     5,
			InitialBackoff: 500 * time.Millisecond,
		},
	}
}

// validate checks invariants that the zero value or a bad file could violate.
func validate(cfg *Config) error {
	if cfg.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if cfg.State.SnapshotPath == "" {
		return fmt.Errorf("state.snapshot_path must not be empty")
	}
	if cfg.State.HistoryPath == "" {
		return fmt.Errorf("state.history_path must not be empty")
	}
	if cfg.Events.QueueSize <= 0 {
		return fmt.Errorf("events.queue_size must be positive, got %d", cfg.Events.QueueSize)
	}
	if cfg.Events.WriteTimeout <= 0 {
		return fmt.Errorf("events.write_timeout must be positive")
	}
	if cfg.Sinks.MaxRetries < 0 {
		return fmt.Errorf("sinks.max_retries must not be negative")
	}
	return nil
}
