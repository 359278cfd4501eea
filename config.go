package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// envPrefix namespaces every environment variable read into Config.
const envPrefix = "POOLSERVER_"

// Config holds the server settings. Values are layered, each overriding the
// last: defaults, an optional YAML file, environment variables, then
// command-line flags.
type Config struct {
	ListenAddr  string        `env:"LISTEN_ADDR"  yaml:"listen_addr"`
	Workers     int           `env:"WORKERS"      yaml:"workers"`
	PagesDir    string        `env:"PAGES_DIR"    yaml:"pages_dir"`
	SleepDelay  time.Duration `env:"SLEEP_DELAY"  yaml:"sleep_delay"`
	ReadTimeout time.Duration `env:"READ_TIMEOUT" yaml:"read_timeout"`

	// Connections beyond these limits wait in the OS accept backlog. 0 disables.
	MaxConns   int     `env:"MAX_CONNS"   yaml:"max_conns"`
	AcceptRate float64 `env:"ACCEPT_RATE" yaml:"accept_rate"`
	ReusePort  bool    `env:"REUSE_PORT"  yaml:"reuse_port"`

	// Empty disables the admin listener.
	AdminAddr string `env:"ADMIN_ADDR" yaml:"admin_addr"`

	LogLevel  string `env:"LOG_LEVEL"  yaml:"log_level"`
	LogFormat string `env:"LOG_FORMAT" yaml:"log_format"`
}

// defaultConfig returns the settings used when nothing else is configured.
// Config carries no envDefault tags: env.Parse must only set fields whose
// variables are present, or it would clobber values read from the file.
func defaultConfig() *Config {
	return &Config{
		ListenAddr:  "127.0.0.1:6969",
		Workers:     4,
		PagesDir:    "pages",
		SleepDelay:  5 * time.Second,
		ReadTimeout: 10 * time.Second,
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

// loadConfig starts from defaultConfig, overlays the YAML file at path when
// path is non-empty, then overlays any POOLSERVER_* environment variables.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: envPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// validate rejects settings the server cannot run with.
func (c *Config) validate() error {
	var errs []error
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	if c.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("read timeout must be positive, got %s", c.ReadTimeout))
	}
	if c.SleepDelay < 0 {
		errs = append(errs, fmt.Errorf("sleep delay must not be negative, got %s", c.SleepDelay))
	}
	if c.MaxConns < 0 {
		errs = append(errs, fmt.Errorf("max conns must not be negative, got %d", c.MaxConns))
	}
	if c.AcceptRate < 0 {
		errs = append(errs, fmt.Errorf("accept rate must not be negative, got %g", c.AcceptRate))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log format must be text or json, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}
