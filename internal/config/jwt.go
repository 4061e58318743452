package config

import (
	"fmt"
	"time"
)

// minSecretLength is the shortest HMAC secret accepted for signing tokens
const minSecretLength = 16

// JWTConfig holds configuration for JWT token generation and validation.
// An empty Secret disables API authentication.
type JWTConfig struct {
	Secret          string `mapstructure:"secret"`
	ExpirationHours int    `mapstructure:"expiration"`
}

// Enabled reports whether mutating API routes require a bearer token.
func (c *JWTConfig) Enabled() bool {
	return c.Secret != ""
}

// Expiration returns the token lifetime.
func (c *JWTConfig) Expiration() time.Duration {
	return time.Duration(c.ExpirationHours) * time.Hour
}

// normalize validates the configuration.
func (c *JWTConfig) normalize() error {
	if c.Secret != "" && len(c.Secret) < minSecretLength {
		return fmt.Errorf("JWT secret must be at least %d characters", minSecretLength)
	}
	if c.ExpirationHours < 1 {
		return fmt.Errorf("JWT expiration must be at least 1 hour, got: %d", c.ExpirationHours)
	}
	return nil
}
