package ratelimit

import (
	"net/http"
	"strings"
	"time"

	"github.com/jonathan/ideaforge/internal/config"
)

// EndpointConfig is the limit for requests matching Pattern, written like a
// ServeMux pattern ("POST /runs/{id}/cancel"). Configs with the same Group
// draw from one bucket per client; otherwise each pattern has its own.
type EndpointConfig struct {
	Pattern string
	Group   string
	// Limit is requests per Window; zero means unlimited
	Limit  int
	Window time.Duration
	// Burst defaults to Limit if 0
	Burst int
}

// bucketName is the part of the bucket key shared by requests of this config
func (c *EndpointConfig) bucketName() string {
	if c.Group != "" {
		return c.Group
	}
	return c.Pattern
}

// NewConfig builds the limiter configuration from loaded settings.
func NewConfig(cfg config.RateLimitConfig) *Config {
	if !cfg.Enabled {
		return &Config{Enabled: false}
	}
	return &Config{
		Enabled:         true,
		DefaultLimit:    cfg.RequestsPerMinute,
		DefaultWindow:   time.Minute,
		CleanupInterval: 5 * time.Minute,
		Whitelist:       toSet(cfg.Whitelist),
		Blacklist:       toSet(cfg.Blacklist),
		EndpointConfigs: DefaultEndpointConfigs(cfg.SubmitsPerHour, cfg.Burst),
	}
}

// DefaultEndpointConfigs returns the endpoint-specific limits. Submissions
// start runs that call paid models, so they get the strictest limit.
func DefaultEndpointConfigs(submitsPerHour, submitBurst int) []EndpointConfig {
	return []EndpointConfig{
		{Pattern: http.MethodGet + " /health"},
		{Pattern: http.MethodPost + " /runs", Limit: submitsPerHour, Window: time.Hour, Burst: submitBurst},
		{Pattern: http.MethodPost + " /runs/{id}/resume", Group: "run_control", Limit: 100, Window: time.Minute, Burst: 10},
		{Pattern: http.MethodPost + " /runs/{id}/cancel", Group: "run_control", Limit: 100, Window: time.Minute, Burst: 10},
		// reads use the default limit
	}
}

// toSet parses a list of client addresses into a set.
func toSet(list []string) map[string]bool {
	result := make(map[string]bool, len(list))
	for _, ip := range list {
		for _, part := range strings.Split(ip, ",") {
			if part = strings.TrimSpace(part); part != "" {
				result[part] = true
			}
		}
	}
	return result
}
