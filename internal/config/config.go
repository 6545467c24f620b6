// Package config loads and validates the service YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that decodes from YAML strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// String formats the duration like time.Duration.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// Config holds the full application configuration loaded from YAML.
type Config struct {
	// Addr is the HTTP listen address (e.g. ":8099").
	Addr string `yaml:"addr"`

	// DataDir is the directory holding the SQLite database file.
	DataDir string `yaml:"data_dir"`

	// FetchTimeout bounds every outbound feed fetch and partner export.
	// Defaults to 30s.
	FetchTimeout Duration `yaml:"fetch_timeout"`

	// SchedulerTick controls how often due feeds are selected for sync.
	// Defaults to 1m. Individual feeds still gate on their own frequency.
	SchedulerTick Duration `yaml:"scheduler_tick"`

	// DefaultSyncFrequencyMin is applied to feeds created without an
	// explicit frequency. Never below the 15 minute floor.
	DefaultSyncFrequencyMin int `yaml:"default_sync_frequency_min"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Addr:                    ":8099",
		DataDir:                 "/data",
		FetchTimeout:            Duration(30 * time.Second),
		SchedulerTick:           Duration(time.Minute),
		DefaultSyncFrequencyMin: 60,
	}
}

// Load reads and validates the configuration file at the given path. A
// missing file yields the defaults; a present but invalid file is an error.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening config file %q: %w", path, err)
	}
	defer f.Close()

	cfg := Default()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true) // reject unknown keys to catch typos early
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// validate checks that all fields are well-formed, applying defaults where
// fields were left zero.
func (c *Config) validate() error {
	if c.Addr == "" {
		c.Addr = ":8099"
	}
	if c.DataDir == "" {
		c.DataDir = "/data"
	}

	if c.FetchTimeout == 0 {
		c.FetchTimeout = Duration(30 * time.Second)
	}
	if time.Duration(c.FetchTimeout) < time.Second {
		return fmt.Errorf("fetch_timeout %s is below the 1s minimum", c.FetchTimeout)
	}

	if c.SchedulerTick == 0 {
		c.SchedulerTick = Duration(time.Minute)
	}
	if time.Duration(c.SchedulerTick) < 10*time.Second {
		return fmt.Errorf("scheduler_tick %s is below the 10s minimum", c.SchedulerTick)
	}

	if c.DefaultSyncFrequencyMin == 0 {
		c.DefaultSyncFrequencyMin = 60
	}
	if c.DefaultSyncFrequencyMin < 15 {
		return fmt.Errorf("default_sync_frequency_min %d is below the 15 minute minimum", c.DefaultSyncFrequencyMin)
	}

	return nil
}
