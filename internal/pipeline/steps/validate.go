package steps

import (
	"context"
	"fmt"

	"github.com/jonathan/ideaforge/internal/pipeline"
	"github.com/jonathan/ideaforge/internal/schemas"
	"github.com/jonathan/ideaforge/internal/types"
)

// ValidateOutputs checks the accumulated state against the pipeline's
// expectations and stores the resulting quality report. Failed checks lower
// the run's score; they do not fail the step.
type ValidateOutputs struct {
	Expectations []pipeline.Expectation
}

// Name implements pipeline.Step.
func (ValidateOutputs) Name() string { return StepValidateOutputs }

// Execute implements pipeline.Step.
func (s ValidateOutputs) Execute(ctx context.Context, env *pipeline.Env, state types.RunState) (*pipeline.StepResult, error) {
	def := pipeline.Definition{Expectations: s.Expectations}
	report := &types.QualityReport{Checks: def.Evaluate(state)}
	report.Summary = fmt.Sprintf("%d of %d checks passed", report.Passed(), len(report.Checks))

	data, err := marshalArtifact(s.Name(), report)
	if err != nil {
		return nil, err
	}
	if err := checkSchema(s.Name(), schemas.Report, data); err != nil {
		return nil, err
	}

	artifact, err := env.PutArtifact(ctx, types.ArtifactReport, data, "application/json")
	if err != nil {
		return nil, err
	}

	next := state.Clone()
	next.Report = report
	env.Logger.Info().Str("summary", report.Summary).Msg("outputs validated")
	return &pipeline.StepResult{State: next, Artifacts: []types.Artifact{artifact}}, nil
}

// Validate implements pipeline.Step.
func (s ValidateOutputs) Validate(result *pipeline.StepResult) error {
	if result.State.Report == nil {
		return &types.ValidationError{Step: s.Name(), Reason: "report is missing"}
	}
	return requireArtifact(s.Name(), result, types.ArtifactReport)
}
