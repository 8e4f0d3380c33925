// Package config reads process-level defaults from the environment.
//
// Command-line flags always win; these values only seed flag defaults.
package config

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"
)

// Env holds the REVOPS_* variables.
type Env struct {
	DB       string     `env:"REVOPS_DB" envDefault:"revops.db"`
	Seed     int64      `env:"REVOPS_SEED" envDefault:"42"`
	Settings string     `env:"REVOPS_SETTINGS"`
	VocabDir string     `env:"REVOPS_VOCAB_DIR"`
	LogLevel slog.Level `env:"REVOPS_LOG_LEVEL" envDefault:"INFO"`
}

// Load parses the environment into an Env.
func Load() (Env, error) {
	var e Env
	if err := ParseEnv(&e); err != nil {
		return Env{}, err
	}
	return e, nil
}

// ParseEnv loads configuration from environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
