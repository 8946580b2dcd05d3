package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zoobzio/transformz"
	"github.com/zoobzio/transformz/internal/logging"
)

// Config is the file form of the command settings. Flags override it.
type Config struct {
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
	MaxDepth      int    `yaml:"max_depth"`
	ParallelLimit int    `yaml:"parallel_limit"`
}

// DefaultConfig returns the settings used without a config file. The log
// settings come from LOG_LEVEL and LOG_FORMAT.
func DefaultConfig() Config {
	return Config{
		LogLevel:  logging.LevelFromEnv().String(),
		LogFormat: logging.FormatFromEnv(),
		MaxDepth:  transformz.DefaultMaxDepth,
	}
}

// LoadConfig reads path over the defaults. An empty path returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects settings the commands cannot use.
func (c Config) Validate() error {
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("max_depth must not be negative, got %d", c.MaxDepth)
	}
	if c.ParallelLimit < 0 {
		return fmt.Errorf("parallel_limit must not be negative, got %d", c.ParallelLimit)
	}
	return nil
}

func (c Config) executor() *transformz.Executor {
	return transformz.NewExecutor(builtinRegistry(),
		transformz.WithLogger(logging.New("executor")),
		transformz.WithParallelLimit(c.ParallelLimit),
	)
}
