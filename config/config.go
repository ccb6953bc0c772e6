// Package config loads the relay configuration from the environment.
//
// Every setting has a default reproducing the relay's documented behavior,
// so a bare environment yields a working configuration.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Load loads configuration from .env files and environment variables,
// applies environment defaults and validates the result.
func Load() (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, fmt.Errorf("failed to load env files: %w", err)
	}

	cfg, err := parse()
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadEnvFiles loads .env files in order of precedence.
// godotenv never overrides variables that are already set, so earlier
// files win over later ones and the real environment wins over all.
func loadEnvFiles() error {
	env := os.Getenv("ENVIRONMENT")

	var files []string
	if env != "" {
		files = append(files, fmt.Sprintf(".env.%s.local", env), fmt.Sprintf(".env.%s", env))
	}
	files = append(files, ".env.local", ".env")

	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
	}

	return nil
}
