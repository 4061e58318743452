package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJWTConfig_Normalize(t *testing.T) {
	tests := []struct {
		name    string
		cfg     JWTConfig
		wantErr string
	}{
		{name: "disabled", cfg: JWTConfig{ExpirationHours: 24}},
		{name: "valid secret", cfg: JWTConfig{Secret: "0123456789abcdef", ExpirationHours: 1}},
		{name: "short secret", cfg: JWTConfig{Secret: "short", ExpirationHours: 24}, wantErr: "at least 16 characters"},
		{name: "zero expiration", cfg: JWTConfig{ExpirationHours: 0}, wantErr: "at least 1 hour"},
		{name: "negative expiration", cfg: JWTConfig{Secret: "0123456789abcdef", ExpirationHours: -3}, wantErr: "got: -3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.normalize()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestJWTConfig_Helpers(t *testing.T) {
	cfg := JWTConfig{ExpirationHours: 2}
	assert.False(t, cfg.Enabled())
	assert.Equal(t, 2*time.Hour, cfg.Expiration())

	cfg.Secret = "0123456789abcdef"
	assert.True(t, cfg.Enabled())
}
