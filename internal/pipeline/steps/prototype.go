package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonathan/ideaforge/internal/gateway"
	"github.com/jonathan/ideaforge/internal/pipeline"
	"github.com/jonathan/ideaforge/internal/types"
)

// BuildPrototype turns the wireframe into a clickable single-file HTML page.
// A prototype that loads resources from another origin is held for review
// unless a reviewer already approved this step.
type BuildPrototype struct{}

// Name implements pipeline.Step.
func (BuildPrototype) Name() string { return StepBuildPrototype }

// Execute implements pipeline.Step.
func (s BuildPrototype) Execute(ctx context.Context, env *pipeline.Env, state types.RunState) (*pipeline.StepResult, error) {
	requirements := section(state.Document, "Requirements")
	if requirements == "" {
		requirements = bulletList(state.Goals)
	}
	prompt, err := renderPrompt(s.Name(), "build-prototype", map[string]string{
		"Wireframe":    state.Wireframe,
		"Requirements": requirements,
	})
	if err != nil {
		return nil, err
	}

	text, err := generate(ctx, env, gateway.OpGenerateText, "prototype", prompt, gateway.TierAdvanced)
	if err != nil {
		return nil, err
	}

	html := extractHTML(text)
	doc, err := parseHTML(html)
	if err != nil {
		return nil, &types.ValidationError{Step: s.Name(), Reason: fmt.Sprintf("prototype is not parseable HTML: %v", err)}
	}
	if interactiveCount(doc) == 0 {
		return nil, &types.ValidationError{Step: s.Name(), Reason: "prototype has no interactive elements"}
	}
	if external := externalResources(doc); len(external) > 0 && !env.Approved {
		return nil, &types.ReviewRequired{
			Step:   s.Name(),
			Reason: "prototype loads external resources: " + strings.Join(external, ", "),
		}
	}

	artifact, err := env.PutArtifact(ctx, types.ArtifactPrototype, []byte(html), "text/html; charset=utf-8")
	if err != nil {
		return nil, err
	}

	next := state.Clone()
	next.PrototypeLocator = artifact.Locator
	return &pipeline.StepResult{State: next, Artifacts: []types.Artifact{artifact}}, nil
}

// Validate implements pipeline.Step.
func (s BuildPrototype) Validate(result *pipeline.StepResult) error {
	if result.State.PrototypeLocator == "" {
		return &types.ValidationError{Step: s.Name(), Reason: "prototype locator is missing"}
	}
	return requireArtifact(s.Name(), result, types.ArtifactPrototype)
}
