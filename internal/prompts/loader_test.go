package prompts

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_ValidPrompt(t *testing.T) {
	ClearCache()

	prompt, err := Get(StepsFile, "generate-document")
	require.NoError(t, err)
	assert.NotEmpty(t, prompt)
	assert.Contains(t, prompt, "product requirements document")
}

func TestGet_InvalidFile(t *testing.T) {
	ClearCache()

	_, err := Get("nonexistent.json", "some-key")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read prompt file")
}

func TestGet_InvalidKey(t *testing.T) {
	ClearCache()

	_, err := Get(StepsFile, "nonexistent-key")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestMustGet_Panics(t *testing.T) {
	ClearCache()

	assert.Panics(t, func() {
		MustGet("nonexistent.json", "some-key")
	})
}

func TestMustGet_ValidPrompt(t *testing.T) {
	ClearCache()

	assert.NotPanics(t, func() {
		prompt := MustGet(StepsFile, "video-script")
		assert.NotEmpty(t, prompt)
	})
}

func TestFormat(t *testing.T) {
	got := Format("Idea: {{.Idea}} in {{.Sector}} ({{.Idea}})", map[string]string{
		"Idea":   "clinic scheduling",
		"Sector": "health",
	})
	assert.Equal(t, "Idea: clinic scheduling in health (clinic scheduling)", got)
}

func TestRender_FillsAllPlaceholders(t *testing.T) {
	ClearCache()

	got, err := Render(StepsFile, "video-script", map[string]string{"Idea": "an idea", "Goals": "- goal"})
	require.NoError(t, err)
	assert.Contains(t, got, "Idea: an idea")
	assert.NotContains(t, got, "{{.")
}

func TestRender_MissingValue(t *testing.T) {
	ClearCache()

	_, err := Render(StepsFile, "video-script", map[string]string{"Idea": "an idea"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "{{.Goals}}")
}

func TestList(t *testing.T) {
	ClearCache()

	keys, err := List(StepsFile)
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{
		"build-prototype",
		"compose-outreach",
		"enrich-context",
		"generate-document",
		"generate-layout",
		"intake",
		"video-script",
	}, keys)
}
