package config

import (
	"fmt"
	"log/slog"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Load reads smokestack.yaml from path, expands environment references,
// merges the result over the built-in defaults, and validates it.
// A missing file is not an error: the defaults are returned.
func Load(path string) (*Config, error) {
	defaults := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		slog.Info("No configuration file, using defaults", "path", path)
		return defaults, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read configuration: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(ExpandEnv(data), &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	// Fill unset fields from the defaults; file values win.
	if err := mergo.Merge(&cfg, defaults); err != nil {
		return nil, fmt.Errorf("merge configuration defaults: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	slog.Info("Configuration loaded", "path", path, "addr", cfg.Server.Addr)
	return &cfg, nil
}
