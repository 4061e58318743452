// Package steps provides the step definitions, dependency checks and step
// implementations of the built-in idea_to_launch pipeline.
package steps

import (
	"fmt"

	"github.com/jonathan/ideaforge/internal/types"
)

// Step names
const (
	StepIntake           = "intake"
	StepEnrichContext    = "enrich_context"
	StepGenerateDocument = "generate_document"
	StepGenerateLayout   = "generate_layout"
	StepBuildPrototype   = "build_prototype"
	StepGenerateMedia    = "generate_media"
	StepComposeOutreach  = "compose_outreach"
	StepValidateOutputs  = "validate_outputs"
)

// Step categories
const (
	CategoryIntake     = "intake"
	CategoryResearch   = "research"
	CategoryGeneration = "generation"
	CategoryMedia      = "media"
	CategoryOutreach   = "outreach"
	CategoryValidation = "validation"
)

// StepDefinition defines metadata for a pipeline step
type StepDefinition struct {
	Name         string
	Category     string
	Artifact     types.ArtifactKind
	Dependencies []string
}

// StepRegistry holds all step definitions
var StepRegistry = map[string]StepDefinition{
	StepIntake: {
		Name:         StepIntake,
		Category:     CategoryIntake,
		Artifact:     types.ArtifactBrief,
		Dependencies: []string{},
	},
	StepEnrichContext: {
		Name:         StepEnrichContext,
		Category:     CategoryResearch,
		Artifact:     types.ArtifactAnalysis,
		Dependencies: []string{StepIntake},
	},
	StepGenerateDocument: {
		Name:         StepGenerateDocument,
		Category:     CategoryGeneration,
		Artifact:     types.ArtifactDocument,
		Dependencies: []string{StepIntake, StepEnrichContext},
	},
	StepGenerateLayout: {
		Name:         StepGenerateLayout,
		Category:     CategoryGeneration,
		Artifact:     types.ArtifactWireframe,
		Dependencies: []string{StepGenerateDocument},
	},
	StepBuildPrototype: {
		Name:         StepBuildPrototype,
		Category:     CategoryGeneration,
		Artifact:     types.ArtifactPrototype,
		Dependencies: []string{StepGenerateDocument, StepGenerateLayout},
	},
	StepGenerateMedia: {
		Name:         StepGenerateMedia,
		Category:     CategoryMedia,
		Artifact:     types.ArtifactVideo,
		Dependencies: []string{StepIntake, StepBuildPrototype},
	},
	StepComposeOutreach: {
		Name:         StepComposeOutreach,
		Category:     CategoryOutreach,
		Artifact:     types.ArtifactMessageSet,
		Dependencies: []string{StepEnrichContext, StepBuildPrototype, StepGenerateMedia},
	},
	StepValidateOutputs: {
		Name:     StepValidateOutputs,
		Category: CategoryValidation,
		Artifact: types.ArtifactReport,
		Dependencies: []string{
			StepIntake, StepEnrichContext, StepGenerateDocument, StepGenerateLayout,
			StepBuildPrototype, StepGenerateMedia, StepComposeOutreach,
		},
	},
}

// BuiltinOrder is the fixed step order of the idea_to_launch pipeline
var BuiltinOrder = []string{
	StepIntake,
	StepEnrichContext,
	StepGenerateDocument,
	StepGenerateLayout,
	StepBuildPrototype,
	StepGenerateMedia,
	StepComposeOutreach,
	StepValidateOutputs,
}

// DependencyError represents a dependency validation error
type DependencyError struct {
	Step                string
	MissingDependencies []string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("step %s has missing dependencies: %v", e.Step, e.MissingDependencies)
}

// ValidateDependencies checks that every dependency of stepName is among the
// completed steps.
func ValidateDependencies(stepName string, completed []string) error {
	def, ok := StepRegistry[stepName]
	if !ok {
		return fmt.Errorf("unknown step: %s", stepName)
	}

	done := make(map[string]bool, len(completed))
	for _, s := range completed {
		done[s] = true
	}

	var missing []string
	for _, dep := range def.Dependencies {
		if !done[dep] {
			missing = append(missing, dep)
		}
	}

	if len(missing) > 0 {
		return &DependencyError{
			Step:                stepName,
			MissingDependencies: missing,
		}
	}

	return nil
}

// ValidateOrder checks that a step order runs every step after its dependencies
func ValidateOrder(order []string) error {
	for i, name := range order {
		if err := ValidateDependencies(name, order[:i]); err != nil {
			return err
		}
	}
	return nil
}

// CompletedSteps returns the steps of run that have been checkpointed
func CompletedSteps(run *types.Run) []string {
	n := run.CurrentStep
	if n > len(run.Steps) {
		n = len(run.Steps)
	}
	return append([]string(nil), run.Steps[:n]...)
}

// AvailableSteps returns the steps of run whose dependencies are complete and
// that have not run yet
func AvailableSteps(run *types.Run) []string {
	completed := CompletedSteps(run)
	var available []string
	for _, name := range run.Steps[len(completed):] {
		if ValidateDependencies(name, completed) == nil {
			available = append(available, name)
		}
	}
	return available
}
