package robot

import (
	"encoding/json"
	"os"
	"time"
)

const DefaultConfigFile = "servoseq.json"

// Defaults for a fresh configuration.
const (
	DefaultBaud   = 115200
	DefaultPollMs = 50
	DefaultLoops  = 1
)

// Config holds the connection and playback configuration
type Config struct {
	Port         string `json:"port"`
	Baud         int    `json:"baud"`
	PollMs       int    `json:"poll_ms"`
	AckTimeoutMs int    `json:"ack_timeout_ms,omitempty"`
	Sequence     string `json:"sequence,omitempty"`
	Loops        int    `json:"loops"`
}

// DefaultConfig returns a configuration with every default filled in
func DefaultConfig() Config {
	return Config{
		Baud:   DefaultBaud,
		PollMs: DefaultPollMs,
		Loops:  DefaultLoops,
	}
}

// PollInterval returns the period of the serial poll loop
func (c Config) PollInterval() time.Duration {
	if c.PollMs <= 0 {
		return DefaultPollMs * time.Millisecond
	}
	return time.Duration(c.PollMs) * time.Millisecond
}

// AckTimeout returns how long playback waits for an acknowledgment before
// giving up. Zero means wait forever.
func (c Config) AckTimeout() time.Duration {
	if c.AckTimeoutMs <= 0 {
		return 0
	}
	return time.Duration(c.AckTimeoutMs) * time.Millisecond
}

// IsConfigured returns true if a serial port has been chosen
func (c *Config) IsConfigured() bool {
	return c.Port != ""
}

// LoadConfig loads configuration from the default config file
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfigFile)
}

// LoadConfigFrom loads configuration from a specific file. Fields missing
// from the file keep their defaults.
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save saves configuration to the default config file
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigExists returns true if the default config file exists
func ConfigExists() bool {
	_, err := os.Stat(DefaultConfigFile)
	return err == nil
}
