package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Secrets are values that never live in a config file.
type Secrets struct {
	// SigningKey is the HMAC key for bearer tokens, at least 32 bytes.
	SigningKey string `env:"TASKED_JWT_SIGNING_KEY"`

	// DatabasePassword overrides database.password.
	DatabasePassword string `env:"TASKED_DATABASE_PASSWORD"`

	// DatabaseURL is a full PostgreSQL connection string.
	DatabaseURL string `env:"TASKED_DATABASE_URL"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadSecrets reads Secrets from the environment.
func LoadSecrets() (Secrets, error) {
	var s Secrets
	if err := ParseEnv(&s); err != nil {
		return Secrets{}, err
	}
	return s, nil
}

// ApplySecrets overlays non-empty secrets onto c.
func (c *Config) ApplySecrets(s Secrets) {
	if s.SigningKey != "" {
		c.SigningKey = s.SigningKey
	}
	if s.DatabasePassword != "" {
		c.Database.Password = s.DatabasePassword
	}
	if s.DatabaseURL != "" {
		c.Database.URL = s.DatabaseURL
	}
}
