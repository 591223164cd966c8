// Package config loads module configuration with the lifecycle
// defaults -> yaml file -> environment overrides -> validation.
package config

import (
	"fmt"
	"os"

	"mongokit/internal/connection"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds the full module configuration.
type Config struct {
	Connection connection.Config `yaml:"connection"`
	Logging    LoggingConfig     `yaml:"logging"`
	Events     EventsConfig      `yaml:"events"`
}

// EventsConfig configures the optional NATS lifecycle-event sink. An empty
// URL disables publishing.
type EventsConfig struct {
	NATSURL       string `yaml:"nats_url" env:"MONGOKIT_NATS_URL"`
	SubjectPrefix string `yaml:"subject_prefix" env:"MONGOKIT_EVENT_SUBJECT_PREFIX"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Connection: connection.DefaultConfig(),
		Logging:    DefaultLoggingConfig(),
		Events:     EventsConfig{SubjectPrefix: "mongokit.lifecycle"},
	}
}

// Load builds the configuration: defaults, then the yaml file (skipped when
// path is empty or the file does not exist), then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}

	cfg.Connection.ApplyDefaults()
	cfg.Logging.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate validates every section.
func (c *Config) Validate() error {
	if err := c.Connection.Validate(); err != nil {
		return fmt.Errorf("connection: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}
