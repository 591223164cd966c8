package connection

import (
	"fmt"
	"time"
)

// IndexKey is one component of a declared index.
type IndexKey struct {
	Field      string `yaml:"field" json:"field"`
	Descending bool   `yaml:"descending" json:"descending"`
}

// IndexDecl declares an index to create on first successful connect.
type IndexDecl struct {
	Collection string        `yaml:"collection" json:"collection"`
	Keys       []IndexKey    `yaml:"keys" json:"keys"`
	Unique     bool          `yaml:"unique" json:"unique"`
	TTL        time.Duration `yaml:"ttl" json:"ttl"` // zero disables expiry
}

// Config holds connection settings. It is supplied at construction and never
// mutated afterwards.
type Config struct {
	URI      string `yaml:"uri" env:"MONGOKIT_URI"`
	Database string `yaml:"database" env:"MONGOKIT_DATABASE"`

	ConnectTimeout       time.Duration `yaml:"connect_timeout" env:"MONGOKIT_CONNECT_TIMEOUT"`
	PingTimeout          time.Duration `yaml:"ping_timeout" env:"MONGOKIT_PING_TIMEOUT"`
	ReconnectInterval    time.Duration `yaml:"reconnect_interval" env:"MONGOKIT_RECONNECT_INTERVAL"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts" env:"MONGOKIT_MAX_RECONNECT_ATTEMPTS"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval" env:"MONGOKIT_HEARTBEAT_INTERVAL"`
	TransactionAttempts  int           `yaml:"transaction_attempts" env:"MONGOKIT_TRANSACTION_ATTEMPTS"`

	Indexes []IndexDecl `yaml:"indexes"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		URI:                  "mongodb://localhost:27017",
		ConnectTimeout:       10 * time.Second,
		PingTimeout:          5 * time.Second,
		ReconnectInterval:    5 * time.Second,
		MaxReconnectAttempts: 5,
		HeartbeatInterval:    15 * time.Second,
		TransactionAttempts:  3,
	}
}

// ApplyDefaults fills in missing values with defaults.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.URI == "" {
		c.URI = d.URI
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.PingTimeout == 0 {
		c.PingTimeout = d.PingTimeout
	}
	if c.ReconnectInterval == 0 {
		c.ReconnectInterval = d.ReconnectInterval
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = d.MaxReconnectAttempts
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.TransactionAttempts == 0 {
		c.TransactionAttempts = d.TransactionAttempts
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.URI == "" {
		return fmt.Errorf("connection uri cannot be empty")
	}
	if c.Database == "" {
		return fmt.Errorf("database name cannot be empty")
	}
	if c.MaxReconnectAttempts < 1 {
		return fmt.Errorf("max_reconnect_attempts must be at least 1")
	}
	if c.ReconnectInterval < 0 || c.HeartbeatInterval < 0 {
		return fmt.Errorf("intervals must not be negative")
	}
	for _, idx := range c.Indexes {
		if idx.Collection == "" || len(idx.Keys) == 0 {
			return fmt.Errorf("index declaration needs a collection and at least one key")
		}
	}
	return nil
}
