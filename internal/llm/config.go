// Package llm provides the Gemini-backed generation and embedding backend and
// the model configuration behind it.
package llm

import "github.com/jonathan/ideaforge/internal/gateway"

// ModelTier represents the complexity/capability level of a model
type ModelTier string

const (
	// TierLite is for cheap tasks: intake normalization, short lists
	TierLite ModelTier = "lite"
	// TierStandard is for structured output: market analysis, outreach
	TierStandard ModelTier = "standard"
	// TierAdvanced is for long-form generation: documents and prototypes
	TierAdvanced ModelTier = "advanced"
)

// Provider represents an LLM provider
type Provider string

// ProviderGemini is the Google Gemini provider
const ProviderGemini Provider = "gemini"

// Config holds the model configuration for the backend
type Config struct {
	Provider       Provider
	Models         map[ModelTier]string
	EmbeddingModel string
	Temperature    float32
}

// DefaultConfig returns the default Gemini configuration
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
			TierAdvanced: "gemini-2.5-pro",
		},
		EmbeddingModel: "text-embedding-004",
		Temperature:    0.4,
	}
}

// GetModel returns the model name for a given tier
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok {
		return model
	}
	// Fallback chain: try standard, then lite
	if model, ok := c.Models[TierStandard]; ok {
		return model
	}
	if model, ok := c.Models[TierLite]; ok {
		return model
	}
	return ""
}

// WithModel returns a new Config with a specific model for a tier
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	next := *c
	next.Models = make(map[ModelTier]string, len(c.Models)+1)
	for k, v := range c.Models {
		next.Models[k] = v
	}
	next.Models[tier] = model
	return &next
}

// TierFor maps a gateway tier onto a model tier, defaulting to standard.
func TierFor(t gateway.Tier) ModelTier {
	switch t {
	case gateway.TierLite:
		return TierLite
	case gateway.TierAdvanced:
		return TierAdvanced
	default:
		return TierStandard
	}
}
