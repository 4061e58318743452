package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs the test from an empty directory so no ideaforge.yaml is picked up
func isolate(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	for _, key := range []string{"DATABASE_URL", "GEMINI_API_KEY", "REDIS_ADDR", "JWT_SECRET", "JWT_EXPIRATION_HOURS"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Pipeline.MaxAttempts)
	assert.Equal(t, 4*time.Second, cfg.Pipeline.BaseDelay)
	assert.Equal(t, 10*time.Second, cfg.Pipeline.MaxDelay)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, 5*time.Minute, cfg.Pipeline.MediaTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 24, cfg.JWT.ExpirationHours)
	assert.False(t, cfg.JWT.Enabled())
	assert.True(t, cfg.Offline(), "no API key means offline generation")
	assert.Empty(t, cfg.File())
}

func TestLoad_YAMLFile(t *testing.T) {
	isolate(t)
	path := writeConfig(t, "ideaforge.yaml", `
server:
  port: 9090
pipeline:
  workers: 2
  base_delay: 1s
  max_delay: 3s
  review: [build_prototype]
log:
  format: json
  level: debug
notify:
  webhook_url: https://hooks.example.com/runs
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Pipeline.Workers)
	assert.Equal(t, time.Second, cfg.Pipeline.BaseDelay)
	assert.Equal(t, []string{"build_prototype"}, cfg.Pipeline.Review)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "https://hooks.example.com/runs", cfg.Notify.WebhookURL)
	assert.Equal(t, path, cfg.File())
}

func TestLoad_JSONFileInWorkingDirectory(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile("ideaforge.json", []byte(`{"server": {"port": 7070}}`), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "ideaforge.json", filepath.Base(cfg.File()))
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	isolate(t)
	path := writeConfig(t, "ideaforge.yaml", "server:\n  port: 9090\n")
	t.Setenv("IDEAFORGE_SERVER_PORT", "9191")
	t.Setenv("IDEAFORGE_PIPELINE_MAX_DELAY", "20s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 20*time.Second, cfg.Pipeline.MaxDelay)
}

func TestLoad_LegacyEnvironmentNames(t *testing.T) {
	isolate(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/ideaforge")
	t.Setenv("GEMINI_API_KEY", "key-123")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("JWT_SECRET", "0123456789abcdef0123")
	t.Setenv("JWT_EXPIRATION_HOURS", "48")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/ideaforge", cfg.Database.URL)
	assert.Equal(t, "key-123", cfg.LLM.APIKey)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "0123456789abcdef0123", cfg.JWT.Secret)
	assert.Equal(t, 48, cfg.JWT.ExpirationHours)
	assert.False(t, cfg.Offline())
}

func TestLoad_PrefixedNameWinsOverLegacy(t *testing.T) {
	isolate(t)
	t.Setenv("DATABASE_URL", "postgres://legacy/db")
	t.Setenv("IDEAFORGE_DATABASE_URL", "postgres://current/db")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://current/db", cfg.Database.URL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "port out of range", content: "server:\n  port: 70000\n", wantErr: "Port"},
		{name: "max delay below base", content: "pipeline:\n  base_delay: 10s\n  max_delay: 1s\n", wantErr: "MaxDelay"},
		{name: "unknown log format", content: "log:\n  format: xml\n", wantErr: "Format"},
		{name: "bad webhook url", content: "notify:\n  webhook_url: not a url\n", wantErr: "WebhookURL"},
		{name: "short jwt secret", content: "jwt:\n  secret: abc\n", wantErr: "at least 16 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			cfg, err := Load(writeConfig(t, "ideaforge.yaml", tt.content))
			assert.Nil(t, cfg)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	isolate(t)
	cfg, err := Load("/nonexistent/path/ideaforge.yaml")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to read config file")
}
