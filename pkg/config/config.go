// Package config loads the bootmond configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied for fields left unset in the file.
const (
	DefaultBaud          = 115200
	DefaultSocket        = "/tmp/bootmond.sock"
	DefaultLogCapacity   = 5000
	DefaultReadTimeoutMs = 200
)

// Config is the bootmon.yaml configuration. Exactly one of Device and
// ReplayFile selects the line source.
type Config struct {
	Device        string `yaml:"device,omitempty"`
	Baud          int    `yaml:"baud,omitempty"`
	ReplayFile    string `yaml:"replay_file,omitempty"`
	History       string `yaml:"history,omitempty"`
	Socket        string `yaml:"socket,omitempty"`
	LogCapacity   int    `yaml:"log_capacity,omitempty"`
	ReadTimeoutMs int    `yaml:"read_timeout_ms,omitempty"`
	Echo          bool   `yaml:"echo,omitempty"`
}

// Default returns a config with all defaults applied and no source
// selected.
func Default() Config {
	return Config{
		Baud:          DefaultBaud,
		Socket:        DefaultSocket,
		LogCapacity:   DefaultLogCapacity,
		ReadTimeoutMs: DefaultReadTimeoutMs,
	}
}

// Load reads and parses the config file at path, applying defaults for
// unset fields.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Config{}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Baud == 0 {
		c.Baud = DefaultBaud
	}
	if c.Socket == "" {
		c.Socket = DefaultSocket
	}
	if c.LogCapacity == 0 {
		c.LogCapacity = DefaultLogCapacity
	}
	if c.ReadTimeoutMs == 0 {
		c.ReadTimeoutMs = DefaultReadTimeoutMs
	}
}

// ReadTimeout returns the source poll timeout as a duration.
func (c Config) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMs) * time.Millisecond
}

// Validate checks the config for structural correctness.
func Validate(c Config) []error {
	var errs []error

	switch {
	case c.Device == "" && c.ReplayFile == "":
		errs = append(errs, fmt.Errorf("one of device or replay_file is required"))
	case c.Device != "" && c.ReplayFile != "":
		errs = append(errs, fmt.Errorf("device and replay_file are mutually exclusive"))
	}

	if c.Device != "" && c.Baud <= 0 {
		errs = append(errs, fmt.Errorf("baud must be positive, got %d", c.Baud))
	}
	if c.LogCapacity <= 0 {
		errs = append(errs, fmt.Errorf("log_capacity must be positive, got %d", c.LogCapacity))
	}
	if c.ReadTimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("read_timeout_ms must be positive, got %d", c.ReadTimeoutMs))
	}
	if c.Socket == "" {
		errs = append(errs, fmt.Errorf("socket is required"))
	}

	return errs
}
