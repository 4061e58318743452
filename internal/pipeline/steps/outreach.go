package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonathan/ideaforge/internal/gateway"
	"github.com/jonathan/ideaforge/internal/llm"
	"github.com/jonathan/ideaforge/internal/pipeline"
	"github.com/jonathan/ideaforge/internal/schemas"
	"github.com/jonathan/ideaforge/internal/types"
)

const minAudiences = 3

// ComposeOutreach drafts launch messages for several audiences.
type ComposeOutreach struct{}

// Name implements pipeline.Step.
func (ComposeOutreach) Name() string { return StepComposeOutreach }

// Execute implements pipeline.Step.
func (s ComposeOutreach) Execute(ctx context.Context, env *pipeline.Env, state types.RunState) (*pipeline.StepResult, error) {
	input, err := renderPrompt(s.Name(), "compose-outreach", map[string]string{
		"Idea":             state.Idea,
		"Sector":           state.Sector,
		"MarketSummary":    marketSummary(state),
		"PrototypeLocator": state.PrototypeLocator,
		"VideoLocator":     state.VideoLocator,
	})
	if err != nil {
		return nil, err
	}

	text, err := generate(ctx, env, gateway.OpGenerateJSON, "outreach", llm.BuildExtractionPrompt(llm.OutreachSchema(), input), gateway.TierStandard)
	if err != nil {
		return nil, err
	}

	var out struct {
		Messages []types.OutreachMessage `json:"messages"`
	}
	raw, err := decodeStructured(s.Name(), schemas.Outreach, text, &out)
	if err != nil {
		return nil, err
	}

	next := state.Clone()
	next.Outreach = out.Messages
	if err := s.check(next); err != nil {
		return nil, err
	}

	artifact, err := env.PutArtifact(ctx, types.ArtifactMessageSet, raw, "application/json")
	if err != nil {
		return nil, err
	}
	return &pipeline.StepResult{State: next, Artifacts: []types.Artifact{artifact}}, nil
}

// Validate implements pipeline.Step.
func (s ComposeOutreach) Validate(result *pipeline.StepResult) error {
	if err := s.check(result.State); err != nil {
		return err
	}
	return requireArtifact(s.Name(), result, types.ArtifactMessageSet)
}

func (s ComposeOutreach) check(state types.RunState) error {
	if n := len(audiences(state.Outreach)); n < minAudiences {
		return &types.ValidationError{Step: s.Name(), Reason: fmt.Sprintf("messages cover %d audiences, need %d", n, minAudiences)}
	}
	return nil
}

// audiences returns the distinct audiences of msgs, case-insensitively
func audiences(msgs []types.OutreachMessage) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range msgs {
		key := strings.ToLower(strings.TrimSpace(m.Audience))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, m.Audience)
	}
	return out
}
