package steps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/ideaforge/internal/types"
)

func TestStepRegistry(t *testing.T) {
	for _, stepName := range BuiltinOrder {
		def, ok := StepRegistry[stepName]
		require.True(t, ok, "Step %s should be in registry", stepName)
		assert.Equal(t, stepName, def.Name)
		assert.NotEmpty(t, def.Category)
		assert.True(t, def.Artifact.Valid())
	}
	assert.Len(t, StepRegistry, len(BuiltinOrder))
}

func TestStepRegistry_OneArtifactKindPerStep(t *testing.T) {
	seen := map[types.ArtifactKind]string{}
	for name, def := range StepRegistry {
		if other, ok := seen[def.Artifact]; ok {
			t.Fatalf("steps %s and %s both produce %s", name, other, def.Artifact)
		}
		seen[def.Artifact] = name
	}
}

func TestStepRegistryCategories(t *testing.T) {
	categories := map[string][]string{
		CategoryIntake:     {StepIntake},
		CategoryResearch:   {StepEnrichContext},
		CategoryGeneration: {StepGenerateDocument, StepGenerateLayout, StepBuildPrototype},
		CategoryMedia:      {StepGenerateMedia},
		CategoryOutreach:   {StepComposeOutreach},
		CategoryValidation: {StepValidateOutputs},
	}

	for category, stepNames := range categories {
		for _, stepName := range stepNames {
			def, ok := StepRegistry[stepName]
			require.True(t, ok)
			assert.Equal(t, category, def.Category, "Step %s should be in category %s", stepName, category)
		}
	}
}

func TestDependencyError(t *testing.T) {
	err := &DependencyError{
		Step:                "test_step",
		MissingDependencies: []string{"dep1", "dep2"},
	}

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "missing dependencies")
	assert.Equal(t, "test_step", err.Step)
	assert.Equal(t, []string{"dep1", "dep2"}, err.MissingDependencies)
}

func TestValidateDependencies(t *testing.T) {
	assert.NoError(t, ValidateDependencies(StepIntake, nil))
	assert.NoError(t, ValidateDependencies(StepEnrichContext, []string{StepIntake}))

	err := ValidateDependencies(StepBuildPrototype, []string{StepIntake, StepGenerateDocument})
	var depErr *DependencyError
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, []string{StepGenerateLayout}, depErr.MissingDependencies)

	assert.Error(t, ValidateDependencies("unknown", nil))
}

func TestValidateOrder(t *testing.T) {
	assert.NoError(t, ValidateOrder(BuiltinOrder))

	swapped := append([]string(nil), BuiltinOrder...)
	swapped[2], swapped[3] = swapped[3], swapped[2]
	var depErr *DependencyError
	require.ErrorAs(t, ValidateOrder(swapped), &depErr)
	assert.Equal(t, StepGenerateLayout, depErr.Step)
}

func TestCompletedAndAvailableSteps(t *testing.T) {
	run := &types.Run{Steps: BuiltinOrder, CurrentStep: 3}
	assert.Equal(t, BuiltinOrder[:3], CompletedSteps(run))
	assert.Equal(t, []string{StepGenerateLayout}, AvailableSteps(run))

	run.CurrentStep = len(BuiltinOrder) + 1
	assert.Equal(t, BuiltinOrder, CompletedSteps(run))
	assert.Empty(t, AvailableSteps(run))
}
