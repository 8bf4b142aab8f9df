package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr            string        `env:"ADDR"             envDefault:":8080"`
	DatabaseURL     string        `env:"DATABASE_URL"`
	LogLevel        string        `env:"LOG_LEVEL"        envDefault:"info"`
	LogDevelopment  bool          `env:"LOG_DEVELOPMENT"  envDefault:"false"`
	RoundDuration   time.Duration `env:"ROUND_DURATION"   envDefault:"0s"`
	VoteThreshold   int           `env:"VOTE_THRESHOLD"   envDefault:"0"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load reads an optional .env file from the working directory, then parses
// the environment. Variables already set in the environment win over .env.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load dotenv: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("ADDR must not be empty")
	}
	if c.RoundDuration < 0 {
		return errors.New("ROUND_DURATION must not be negative")
	}
	if c.VoteThreshold < 0 {
		return errors.New("VOTE_THRESHOLD must not be negative")
	}
	return nil
}
