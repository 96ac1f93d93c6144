// Package config loads the arena client configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/codearena/arena/common"
	"github.com/codearena/arena/common/env"
	"github.com/codearena/arena/telemetry"
)

const (
	DefaultPollInterval    = time.Second
	DefaultPollMaxDuration = 5 * time.Minute
	defaultLogLevel        = "info"
)

type Config struct {
	API       APIConfig        `yaml:"api"`
	Poll      PollConfig       `yaml:"poll"`
	Log       LogConfig        `yaml:"log"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Sentry    SentryConfig     `yaml:"sentry"`
}

type APIConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

type PollConfig struct {
	Interval    time.Duration `yaml:"interval"`
	MaxAttempts int           `yaml:"max_attempts"`
	// MaxDuration bounds a login session. Negative disables the bound.
	MaxDuration time.Duration `yaml:"max_duration"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

type SentryConfig struct {
	DSN string `yaml:"dsn"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads the YAML file at path, fills in defaults and applies environment
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			slog.Debug("No config file, using defaults", "path", path)
		case err != nil:
			return nil, fmt.Errorf("reading config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.API.BaseURL == "" {
		c.API.BaseURL = common.DefaultAPIURL
	}
	if c.API.Timeout <= 0 {
		c.API.Timeout = common.DefaultHTTPTimeout
	}
	if c.Poll.Interval <= 0 {
		c.Poll.Interval = DefaultPollInterval
	}
	if c.Poll.MaxDuration == 0 {
		c.Poll.MaxDuration = DefaultPollMaxDuration
	}
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
}

func (c *Config) applyEnv() {
	if v, ok := env.Get[string](env.APIURL); ok && v != "" {
		c.API.BaseURL = v
	}
	if v, ok := env.Get[string](env.LogLevel); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := env.Get[string](env.LogPath); ok && v != "" {
		c.Log.Dir = v
	}
	if v, ok := env.Get[time.Duration](env.PollInterval); ok {
		c.Poll.Interval = v
	}
	if v, ok := env.Get[string](env.SentryDSN); ok && v != "" {
		c.Sentry.DSN = v
	}
}

// Validate checks values that would otherwise fail much later.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid api.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid api.base_url %q: scheme must be http or https", c.API.BaseURL)
	}
	if c.Poll.MaxAttempts < 0 {
		return fmt.Errorf("invalid poll.max_attempts %d", c.Poll.MaxAttempts)
	}
	return nil
}

// PollMaxDuration is the bound to hand to the poller, 0 when disabled.
func (c *Config) PollMaxDuration() time.Duration {
	if c.Poll.MaxDuration < 0 {
		return 0
	}
	return c.Poll.MaxDuration
}
