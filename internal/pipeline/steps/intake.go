package steps

import (
	"context"
	"fmt"

	"github.com/jonathan/ideaforge/internal/gateway"
	"github.com/jonathan/ideaforge/internal/llm"
	"github.com/jonathan/ideaforge/internal/pipeline"
	"github.com/jonathan/ideaforge/internal/schemas"
	"github.com/jonathan/ideaforge/internal/types"
)

const (
	minGoals    = 3
	minKeywords = 3
)

// Brief is the intake artifact: the request plus the goals derived from it
type Brief struct {
	ProjectID   string   `json:"project_id"`
	Sector      string   `json:"sector"`
	Idea        string   `json:"idea"`
	Constraints []string `json:"constraints,omitempty"`
	Goals       []string `json:"goals"`
	Keywords    []string `json:"keywords"`
}

// Intake turns the raw idea into product goals and research keywords.
type Intake struct{}

// Name implements pipeline.Step.
func (Intake) Name() string { return StepIntake }

// Execute implements pipeline.Step.
func (s Intake) Execute(ctx context.Context, env *pipeline.Env, state types.RunState) (*pipeline.StepResult, error) {
	input, err := renderPrompt(s.Name(), "intake", map[string]string{
		"Sector":      state.Sector,
		"Idea":        state.Idea,
		"Constraints": bulletList(state.Constraints),
	})
	if err != nil {
		return nil, err
	}

	text, err := generate(ctx, env, gateway.OpGenerateJSON, "goals", llm.BuildExtractionPrompt(llm.GoalsSchema(), input), gateway.TierStandard)
	if err != nil {
		return nil, err
	}

	var out struct {
		Goals    []string `json:"goals"`
		Keywords []string `json:"keywords"`
	}
	if _, err := decodeStructured(s.Name(), schemas.Goals, text, &out); err != nil {
		return nil, err
	}

	next := state.Clone()
	next.Goals = out.Goals
	next.Keywords = out.Keywords
	if err := s.check(next); err != nil {
		return nil, err
	}

	data, err := marshalArtifact(s.Name(), Brief{
		ProjectID:   next.ProjectID,
		Sector:      next.Sector,
		Idea:        next.Idea,
		Constraints: next.Constraints,
		Goals:       next.Goals,
		Keywords:    next.Keywords,
	})
	if err != nil {
		return nil, err
	}
	artifact, err := env.PutArtifact(ctx, types.ArtifactBrief, data, "application/json")
	if err != nil {
		return nil, err
	}

	env.Logger.Debug().Int("goals", len(next.Goals)).Int("keywords", len(next.Keywords)).Msg("intake complete")
	return &pipeline.StepResult{State: next, Artifacts: []types.Artifact{artifact}}, nil
}

// Validate implements pipeline.Step.
func (s Intake) Validate(result *pipeline.StepResult) error {
	if err := s.check(result.State); err != nil {
		return err
	}
	return requireArtifact(s.Name(), result, types.ArtifactBrief)
}

func (s Intake) check(state types.RunState) error {
	if len(state.Goals) < minGoals {
		return &types.ValidationError{Step: s.Name(), Reason: fmt.Sprintf("need at least %d goals, got %d", minGoals, len(state.Goals))}
	}
	if len(state.Keywords) < minKeywords {
		return &types.ValidationError{Step: s.Name(), Reason: fmt.Sprintf("need at least %d keywords, got %d", minKeywords, len(state.Keywords))}
	}
	return nil
}
