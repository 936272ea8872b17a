package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/bamsammich/beamsum/internal/engine"
	"github.com/bamsammich/beamsum/internal/filter"
)

// Config represents the optional beamsum configuration file. Every field is
// a pointer so an unset key can be told apart from a zero value.
type Config struct {
	Defaults DefaultsConfig `toml:"defaults"`
	Limits   LimitsConfig   `toml:"limits"`
	Timeout  TimeoutConfig  `toml:"timeout"`
	Progress ProgressConfig `toml:"progress"`
}

// DefaultsConfig holds persistent flag defaults.
type DefaultsConfig struct {
	Algorithm   *string `toml:"algorithm"`
	Workers     *int    `toml:"workers"`
	BWLimit     *string `toml:"bwlimit"`
	Sidecars    *bool   `toml:"sidecars"`
	Journal     *bool   `toml:"journal"`
	JournalPath *string `toml:"journal_path"`
}

// LimitsConfig excludes oversized files from a batch.
type LimitsConfig struct {
	SizeLimitEnabled *bool   `toml:"size_limit_enabled"`
	MaxSize          *string `toml:"max_size"`
}

// TimeoutConfig bounds the time spent on each file.
type TimeoutConfig struct {
	Enabled *bool `toml:"enabled"`
	Seconds *int  `toml:"seconds"`
}

// ProgressConfig controls progress sampling.
type ProgressConfig struct {
	Throughput *bool   `toml:"throughput"`
	Interval   *string `toml:"interval"`
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "beamsum", "config.toml")
}

// Load reads the config file from the XDG path. Returns a zero Config
// (no error) if the file does not exist. Config is always optional.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}
	return LoadFile(path)
}

// LoadFile reads the config file at path. A missing file yields a zero
// Config.
func LoadFile(path string) (Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("config %s: unknown key %q", path, undecoded[0].String())
	}
	return cfg, nil
}

// Policy converts the limit sections into an engine policy. A size limit
// or timeout is enabled when its value is set, unless explicitly disabled.
func (c Config) Policy() (engine.Policy, error) {
	var p engine.Policy

	if c.Limits.MaxSize != nil {
		n, err := filter.ParseSize(*c.Limits.MaxSize)
		if err != nil {
			return p, fmt.Errorf("limits.max_size: %w", err)
		}
		p.SizeLimit = engine.SizeLimit{Enabled: true, MaxBytes: n}
	}
	if c.Limits.SizeLimitEnabled != nil {
		p.SizeLimit.Enabled = *c.Limits.SizeLimitEnabled
	}
	if p.SizeLimit.Enabled && c.Limits.MaxSize == nil {
		return p, errors.New("limits.size_limit_enabled needs limits.max_size")
	}

	if c.Timeout.Seconds != nil {
		if *c.Timeout.Seconds <= 0 {
			return p, fmt.Errorf("timeout.seconds must be positive, got %d", *c.Timeout.Seconds)
		}
		p.Timeout = engine.Timeout{Enabled: true, Duration: time.Duration(*c.Timeout.Seconds) * time.Second}
	}
	if c.Timeout.Enabled != nil {
		p.Timeout.Enabled = *c.Timeout.Enabled
	}
	if p.Timeout.Enabled && c.Timeout.Seconds == nil {
		return p, errors.New("timeout.enabled needs timeout.seconds")
	}

	if c.Progress.Throughput != nil {
		p.SampleThroughput = *c.Progress.Throughput
	}
	return p, nil
}

// Algorithm returns the configured default algorithm.
func (c Config) Algorithm() (engine.Algorithm, error) {
	if c.Defaults.Algorithm == nil {
		return engine.DefaultAlgorithm, nil
	}
	a, err := engine.ParseAlgorithm(*c.Defaults.Algorithm)
	if err != nil {
		return "", fmt.Errorf("defaults.algorithm: %w", err)
	}
	return a, nil
}

// BWLimit returns the configured read bandwidth cap in bytes per second,
// or 0 for none.
func (c Config) BWLimit() (int64, error) {
	if c.Defaults.BWLimit == nil {
		return 0, nil
	}
	n, err := filter.ParseSize(*c.Defaults.BWLimit)
	if err != nil {
		return 0, fmt.Errorf("defaults.bwlimit: %w", err)
	}
	return n, nil
}

// Interval returns the progress sampling interval, or 0 for the default.
func (c Config) Interval() (time.Duration, error) {
	if c.Progress.Interval == nil {
		return 0, nil
	}
	d, err := time.ParseDuration(*c.Progress.Interval)
	if err != nil {
		return 0, fmt.Errorf("progress.interval: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("progress.interval must be positive, got %s", d)
	}
	return d, nil
}
