package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// DotEnvFile is loaded, when present, before environment overrides apply
var DotEnvFile = ".env"

// ApplyEnv loads DotEnvFile into the environment and overrides cfg fields
// from GAZEBOARD_* variables. Variables already set win over the file.
func ApplyEnv(cfg *Config) error {
	if err := godotenv.Load(DotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", DotEnvFile, err)
	}
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}
	return nil
}
