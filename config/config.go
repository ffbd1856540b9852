// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/paritytech/polkadot-sdk-sub011/internal/log"
	"gopkg.in/yaml.v3"
)

var (
	errValidationWorkers = errors.New("backing.validation_workers must be at least 1")
	errResultQueueSize   = errors.New("backing.result_queue_size must be at least 1")
	errSessionCacheSize  = errors.New("backing.session_cache_size must be at least 1")
	errCodeCacheSize     = errors.New("backing.validation_code_cache_size must be at least 1")
	errMaxUnconnected    = errors.New("prospective_parachains.max_unconnected_candidates must be at least 1")
)

// Config is the configuration of the parachain node core.
type Config struct {
	Log                   LogConfig                   `yaml:"log"`
	Backing               BackingConfig               `yaml:"backing"`
	ProspectiveParachains ProspectiveParachainsConfig `yaml:"prospective_parachains"`
}

// LogConfig holds the global logging options.
type LogConfig struct {
	Level string `yaml:"level"`
}

// BackingConfig holds the options of the candidate backing subsystem.
type BackingConfig struct {
	// ValidationWorkers is the number of background validation jobs run at once.
	ValidationWorkers int `yaml:"validation_workers"`
	// ResultQueueSize is the capacity of the queue of validation results.
	ResultQueueSize int `yaml:"result_queue_size"`
	// SessionCacheSize is the number of sessions whose runtime data is cached.
	SessionCacheSize int `yaml:"session_cache_size"`
	// ValidationCodeCacheSize is the number of validation codes kept in memory.
	ValidationCodeCacheSize int `yaml:"validation_code_cache_size"`
	// FreeCodeUpgradesPerBlock caps the backed candidates carrying a code
	// upgrade reported per relay chain block. Zero means unlimited.
	FreeCodeUpgradesPerBlock uint32 `yaml:"free_code_upgrades_per_block"`
}

// ProspectiveParachainsConfig holds the options of the prospective parachains subsystem.
type ProspectiveParachainsConfig struct {
	// MaxUnconnectedCandidates bounds the candidates stored per para which
	// are not connected to a fragment chain.
	MaxUnconnectedCandidates uint `yaml:"max_unconnected_candidates"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level: log.Info.String(),
		},
		Backing: DefaultBackingConfig(),
		ProspectiveParachains: ProspectiveParachainsConfig{
			MaxUnconnectedCandidates: 5,
		},
	}
}

// DefaultBackingConfig returns the default candidate backing configuration.
func DefaultBackingConfig() BackingConfig {
	return BackingConfig{
		ValidationWorkers:       4,
		ResultQueueSize:         64,
		SessionCacheSize:        4,
		ValidationCodeCacheSize: 16,
	}
}

// Load reads the YAML configuration at path on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration on top of the defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects nonsensical values.
func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	switch {
	case c.Backing.ValidationWorkers < 1:
		return errValidationWorkers
	case c.Backing.ResultQueueSize < 1:
		return errResultQueueSize
	case c.Backing.SessionCacheSize < 1:
		return errSessionCacheSize
	case c.Backing.ValidationCodeCacheSize < 1:
		return errCodeCacheSize
	case c.ProspectiveParachains.MaxUnconnectedCandidates < 1:
		return errMaxUnconnected
	}

	return nil
}

// LogLevel returns the parsed global log level.
func (c *Config) LogLevel() log.Level {
	level, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return log.Info
	}
	return level
}
