package steps

import (
	"context"
	"fmt"

	"github.com/jonathan/ideaforge/internal/gateway"
	"github.com/jonathan/ideaforge/internal/pipeline"
	"github.com/jonathan/ideaforge/internal/types"
)

const minWireframeRegions = 3

// GenerateLayout produces a static HTML wireframe from the document.
type GenerateLayout struct{}

// Name implements pipeline.Step.
func (GenerateLayout) Name() string { return StepGenerateLayout }

// Execute implements pipeline.Step.
func (s GenerateLayout) Execute(ctx context.Context, env *pipeline.Env, state types.RunState) (*pipeline.StepResult, error) {
	prompt, err := renderPrompt(s.Name(), "generate-layout", map[string]string{
		"Document": state.Document,
	})
	if err != nil {
		return nil, err
	}

	text, err := generate(ctx, env, gateway.OpGenerateText, "wireframe", prompt, gateway.TierStandard)
	if err != nil {
		return nil, err
	}

	next := state.Clone()
	next.Wireframe = extractHTML(text)
	if err := s.check(next); err != nil {
		return nil, err
	}

	artifact, err := env.PutArtifact(ctx, types.ArtifactWireframe, []byte(next.Wireframe), "text/html; charset=utf-8")
	if err != nil {
		return nil, err
	}
	return &pipeline.StepResult{State: next, Artifacts: []types.Artifact{artifact}}, nil
}

// Validate implements pipeline.Step.
func (s GenerateLayout) Validate(result *pipeline.StepResult) error {
	if err := s.check(result.State); err != nil {
		return err
	}
	return requireArtifact(s.Name(), result, types.ArtifactWireframe)
}

func (s GenerateLayout) check(state types.RunState) error {
	doc, err := parseHTML(state.Wireframe)
	if err != nil {
		return &types.ValidationError{Step: s.Name(), Reason: fmt.Sprintf("wireframe is not parseable HTML: %v", err)}
	}
	if regions := regionKinds(doc); len(regions) < minWireframeRegions {
		return &types.ValidationError{Step: s.Name(), Reason: fmt.Sprintf("wireframe uses %d landmark regions %v, need %d", len(regions), regions, minWireframeRegions)}
	}
	return nil
}
