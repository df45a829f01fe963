package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// LoadConfig reads .env (when present) and the process environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, ErrConfig(fmt.Sprintf("read .env: %v", err))
	}
	return Parse(env.Options{})
}

// Parse builds a Config from the environment described by opts.
func Parse(opts env.Options) (*Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return nil, ErrConfig(err.Error())
	}
	if cfg.DiscordToken == "" {
		return nil, ErrConfig("DISCORD_TOKEN required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.IdleTimeout <= 0 || c.IdleTimeout%time.Millisecond != 0 {
		return ErrConfig(fmt.Sprintf("IDLE_TIMEOUT must be a positive whole number of milliseconds, got %s", c.IdleTimeout))
	}
	if c.DefaultVolume < 0 || c.ChimeVolume < 0 {
		return ErrConfig("volumes must not be negative")
	}
	if c.BufferBytes <= 0 {
		return ErrConfig("BUFFER_BYTES must be positive")
	}
	return nil
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
