// Package config loads tool configuration from a TOML file, with defaults
// rooted in the user's home directory. CLI flags override file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds all settings.
type Config struct {
	Paths   PathsConfig   `toml:"paths"`
	Fetch   FetchConfig   `toml:"fetch"`
	Logging LoggingConfig `toml:"logging"`
}

// PathsConfig holds filesystem locations.
type PathsConfig struct {
	// Root is the user-scoped module search directory where persistent
	// distributions are written.
	Root string `toml:"root"`
}

// FetchConfig holds download settings.
type FetchConfig struct {
	Workers  int    `toml:"workers"`
	CacheDir string `toml:"cache_dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Verbosity: 0=errors only, 1=operations, 2=details.
	Verbosity int `toml:"verbosity"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.Fetch.Workers = 5

	home, err := os.UserHomeDir()
	if err == nil {
		cfg.Paths.Root = filepath.Join(home, ".micropip", "packages")
		cfg.Fetch.CacheDir = filepath.Join(home, ".micropip", "cache")
	}
	return cfg
}

// DefaultPath returns the conventional config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".micropip", "config.toml")
}

// Load reads a TOML config file over the defaults. A missing file at the
// default location is not an error; an explicitly requested file must
// exist.
func Load(path string, required bool) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if required {
			return nil, fmt.Errorf("config file %s does not exist", path)
		}
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.Fetch.Workers <= 0 {
		cfg.Fetch.Workers = 5
	}
	return cfg, nil
}

// Log prints a message when the configured verbosity reaches level.
func (c *Config) Log(level int, format string, args ...interface{}) {
	if c.Logging.Verbosity >= level {
		fmt.Printf(format+"\n", args...)
	}
}
