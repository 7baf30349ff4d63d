// Package config holds the project-wide constants and the loxvm.yaml
// configuration loader.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Defaults applied to fields left empty in loxvm.yaml.
const (
	DefaultLogLevel     = "warn"
	DefaultHistoryLimit = 500
	DefaultServerAddr   = "127.0.0.1:7878"
)

// Config represents the top-level loxvm.yaml configuration.
type Config struct {
	// Trace prints the operand stack and the next instruction before each
	// instruction executes.
	Trace bool `yaml:"trace"`

	// Disassemble prints every successfully compiled chunk.
	Disassemble bool `yaml:"disassemble"`

	// LogLevel is a logrus level name (e.g. "debug", "warn").
	LogLevel string `yaml:"log_level,omitempty"`

	History HistoryConfig `yaml:"history"`
	Server  ServerConfig  `yaml:"server"`
}

// HistoryConfig controls the REPL history store.
type HistoryConfig struct {
	// Path is the SQLite database file. Empty disables persistence.
	Path string `yaml:"path,omitempty"`

	// Limit is how many recent entries are loaded into the line editor.
	Limit int `yaml:"limit,omitempty"`
}

// ServerConfig controls the evaluation service.
type ServerConfig struct {
	// Addr is the TCP listen address, host:port.
	Addr string `yaml:"addr,omitempty"`
}

// Default returns the configuration used when no loxvm.yaml exists.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// Load reads and parses a loxvm.yaml file. A missing file is not an error:
// the defaults are returned instead.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse parses loxvm.yaml content from bytes.
// The path argument is used only for error messages.
func Parse(data []byte, path string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// Find searches for loxvm.yaml starting from dir and walking up to parent
// directories. It returns an empty path and nil error if none is found.
func Find(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}

	for {
		candidate := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}

		// Also check loxvm.yml (common alternative)
		candidate = strings.TrimSuffix(candidate, ".yaml") + ".yml"
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			return "", nil
		}
		dir = parent
	}
}

// ApplyEnv applies environment overrides. LOXVM_TRACE=1 forces tracing on.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv(TraceEnvVar) == "1" {
		c.Trace = true
	}
}

// Level returns the parsed log level. Validate guarantees it parses.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.WarnLevel
	}
	return level
}

// Validate checks the configuration for semantic errors.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.History.Limit < 0 {
		return fmt.Errorf("history.limit: must not be negative, got %d", c.History.Limit)
	}
	if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		return fmt.Errorf("server.addr: %w", err)
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.History.Limit == 0 {
		c.History.Limit = DefaultHistoryLimit
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
}
