package ruby

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config tunes gateway behavior. Everything has a usable default; a
// rubygateway.toml file can override it.
type Config struct {
	History HistoryConfig `toml:"history"`
	Log     LogConfig     `toml:"log"`
	Worker  WorkerConfig  `toml:"worker"`
}

// HistoryConfig bounds the captured-exception history.
type HistoryConfig struct {
	Capacity int `toml:"capacity"`
}

// LogConfig sets commonlog verbosity for the rubygateway logger.
type LogConfig struct {
	Verbosity int `toml:"verbosity"`
}

// WorkerConfig sizes the interpreter worker's request queue.
type WorkerConfig struct {
	QueueDepth int `toml:"queue-depth"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		History: HistoryConfig{Capacity: defaultHistoryCapacity},
		Worker:  WorkerConfig{QueueDepth: 64},
	}
}

// LoadConfig parses a rubygateway.toml file from the given directory,
// filling unset fields with defaults.
func LoadConfig(dir string) (*Config, error) {
	path := filepath.Join(dir, "rubygateway.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	// Defaults
	if cfg.History.Capacity <= 0 {
		cfg.History.Capacity = defaultHistoryCapacity
	}
	if cfg.Worker.QueueDepth <= 0 {
		cfg.Worker.QueueDepth = 64
	}

	return &cfg, nil
}
