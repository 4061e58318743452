// Package config provides configuration loading and validation for the
// ideaforge server and CLI.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes every environment override, e.g. IDEAFORGE_SERVER_PORT
	EnvPrefix = "IDEAFORGE"
	// ConfigName is the file looked up in the working directory when no path is given
	ConfigName = "ideaforge"
)

// Config is the complete process configuration. Zero values are replaced by
// defaults during Load.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Storage   StorageConfig   `mapstructure:"storage"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Render    RenderConfig    `mapstructure:"render"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Log       LogConfig       `mapstructure:"log"`

	file string
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig selects the Postgres run tracker. An empty URL keeps runs in memory.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// RedisConfig selects the Redis project lock. An empty Addr uses an in-process lock.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db" validate:"min=0"`
	LockTTL  time.Duration `mapstructure:"lock_ttl" validate:"gt=0"`
}

// StorageConfig selects the S3-compatible artifact store. An empty Endpoint
// keeps artifacts in memory.
type StorageConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket" validate:"required_with=Endpoint"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// LLMConfig configures the generation backend and its circuit breaker
type LLMConfig struct {
	APIKey           string        `mapstructure:"api_key"`
	Offline          bool          `mapstructure:"offline"`
	CallTimeout      time.Duration `mapstructure:"call_timeout" validate:"gt=0"`
	BreakerThreshold uint32        `mapstructure:"breaker_threshold" validate:"min=1"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown" validate:"gt=0"`
}

// RenderConfig picks the media renderer: the video service when ServiceURL is
// set, headless Chrome when Browser is true, the storyboard otherwise.
type RenderConfig struct {
	ServiceURL    string        `mapstructure:"service_url" validate:"omitempty,url"`
	ServiceAPIKey string        `mapstructure:"service_api_key"`
	Browser       bool          `mapstructure:"browser"`
	Timeout       time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// NotifyConfig configures the completion webhook. An empty URL disables it.
type NotifyConfig struct {
	WebhookURL string        `mapstructure:"webhook_url" validate:"omitempty,url"`
	Secret     string        `mapstructure:"secret"`
	Timeout    time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// RateLimitConfig configures per-client request limits
type RateLimitConfig struct {
	Enabled           bool     `mapstructure:"enabled"`
	RequestsPerMinute int      `mapstructure:"requests_per_minute" validate:"min=1"`
	SubmitsPerHour    int      `mapstructure:"submits_per_hour" validate:"min=1"`
	Burst             int      `mapstructure:"burst" validate:"min=1"`
	Whitelist         []string `mapstructure:"whitelist"`
	Blacklist         []string `mapstructure:"blacklist"`
}

// PipelineConfig tunes run execution
type PipelineConfig struct {
	Workers      int           `mapstructure:"workers" validate:"min=1,max=64"`
	MaxAttempts  int           `mapstructure:"max_attempts" validate:"min=1,max=10"`
	BaseDelay    time.Duration `mapstructure:"base_delay" validate:"gt=0"`
	MaxDelay     time.Duration `mapstructure:"max_delay" validate:"gtefield=BaseDelay"`
	RunTimeout   time.Duration `mapstructure:"run_timeout" validate:"gte=0"`
	MediaTimeout time.Duration `mapstructure:"media_timeout" validate:"gt=0"`
	Review       []string      `mapstructure:"review"`
}

// LogConfig configures the zerolog logger
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

// legacyEnv lists the unprefixed variable names still honoured for each key
var legacyEnv = map[string]string{
	"database.url":   "DATABASE_URL",
	"llm.api_key":    "GEMINI_API_KEY",
	"redis.addr":     "REDIS_ADDR",
	"jwt.secret":     "JWT_SECRET",
	"jwt.expiration": "JWT_EXPIRATION_HOURS",
}

// Load reads configuration from defaults, the optional file at path (or
// ./ideaforge.yaml when path is empty) and the environment, in increasing
// order of precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	for key, legacy := range legacyEnv {
		envKey := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, legacy); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", legacy, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName(ConfigName)
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.file = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", time.Duration(0)) // event streams stay open
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("database.url", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", 30*time.Minute)

	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.bucket", "ideaforge-artifacts")
	v.SetDefault("storage.region", "")
	v.SetDefault("storage.use_ssl", false)

	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.offline", false)
	v.SetDefault("llm.call_timeout", 60*time.Second)
	v.SetDefault("llm.breaker_threshold", 5)
	v.SetDefault("llm.breaker_cooldown", 60*time.Second)

	v.SetDefault("render.service_url", "")
	v.SetDefault("render.service_api_key", "")
	v.SetDefault("render.browser", false)
	v.SetDefault("render.timeout", 5*time.Minute)

	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.secret", "")
	v.SetDefault("notify.timeout", 10*time.Second)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiration", 24)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_minute", 1000)
	v.SetDefault("rate_limit.submits_per_hour", 10)
	v.SetDefault("rate_limit.burst", 2)
	v.SetDefault("rate_limit.whitelist", []string{})
	v.SetDefault("rate_limit.blacklist", []string{})

	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.max_attempts", 3)
	v.SetDefault("pipeline.base_delay", 4*time.Second)
	v.SetDefault("pipeline.max_delay", 10*time.Second)
	v.SetDefault("pipeline.run_timeout", 30*time.Minute)
	v.SetDefault("pipeline.media_timeout", 5*time.Minute)
	v.SetDefault("pipeline.review", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	return c.JWT.normalize()
}

// File returns the config file that was read, or "" when none was found.
func (c *Config) File() string {
	return c.file
}

// Offline reports whether runs use the scripted generation backend.
func (c *Config) Offline() bool {
	return c.LLM.Offline || c.LLM.APIKey == ""
}
