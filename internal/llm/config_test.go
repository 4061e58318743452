package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/ideaforge/internal/gateway"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, ProviderGemini, config.Provider)
	assert.Equal(t, "gemini-2.5-flash-lite", config.GetModel(TierLite))
	assert.Equal(t, "gemini-2.5-flash", config.GetModel(TierStandard))
	assert.Equal(t, "gemini-2.5-pro", config.GetModel(TierAdvanced))
	assert.Equal(t, "text-embedding-004", config.EmbeddingModel)
}

func TestGetModel_Fallback(t *testing.T) {
	config := &Config{Models: map[ModelTier]string{TierLite: "fallback-model"}}
	assert.Equal(t, "fallback-model", config.GetModel("unknown"))

	empty := &Config{Models: map[ModelTier]string{}}
	assert.Equal(t, "", empty.GetModel(TierAdvanced))
}

func TestWithModel(t *testing.T) {
	config := DefaultConfig()
	next := config.WithModel(TierAdvanced, "custom-model")

	assert.Equal(t, "gemini-2.5-pro", config.GetModel(TierAdvanced))
	assert.Equal(t, "custom-model", next.GetModel(TierAdvanced))
	assert.Equal(t, "gemini-2.5-flash-lite", next.GetModel(TierLite))
	assert.Equal(t, config.EmbeddingModel, next.EmbeddingModel)
}

func TestTierFor(t *testing.T) {
	assert.Equal(t, TierLite, TierFor(gateway.TierLite))
	assert.Equal(t, TierStandard, TierFor(gateway.TierStandard))
	assert.Equal(t, TierAdvanced, TierFor(gateway.TierAdvanced))
	assert.Equal(t, TierStandard, TierFor(""))
}
