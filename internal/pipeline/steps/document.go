package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonathan/ideaforge/internal/gateway"
	"github.com/jonathan/ideaforge/internal/pipeline"
	"github.com/jonathan/ideaforge/internal/types"
)

const (
	minDocumentChars    = 600
	minDocumentSections = 3
)

// DocumentSections are the sections a complete requirements document carries
var DocumentSections = []string{"Problem", "Users", "Requirements", "Success Metrics", "Out of Scope"}

// GenerateDocument writes the product requirements document in Markdown.
type GenerateDocument struct{}

// Name implements pipeline.Step.
func (GenerateDocument) Name() string { return StepGenerateDocument }

// Execute implements pipeline.Step.
func (s GenerateDocument) Execute(ctx context.Context, env *pipeline.Env, state types.RunState) (*pipeline.StepResult, error) {
	prompt, err := renderPrompt(s.Name(), "generate-document", map[string]string{
		"Sector":        state.Sector,
		"Idea":          state.Idea,
		"Goals":         bulletList(state.Goals),
		"MarketSummary": marketSummary(state),
		"Opportunities": bulletList(opportunities(state)),
		"Constraints":   bulletList(state.Constraints),
	})
	if err != nil {
		return nil, err
	}

	text, err := generate(ctx, env, gateway.OpGenerateText, "document", prompt, gateway.TierAdvanced)
	if err != nil {
		return nil, err
	}

	next := state.Clone()
	next.Document = stripFence(text)
	if err := s.check(next); err != nil {
		return nil, err
	}
	if missing := missingSections(next.Document); len(missing) > 0 {
		next = next.Warn(s.Name(), "document is missing sections: "+strings.Join(missing, ", "))
	}

	artifact, err := env.PutArtifact(ctx, types.ArtifactDocument, []byte(next.Document), "text/markdown; charset=utf-8")
	if err != nil {
		return nil, err
	}
	return &pipeline.StepResult{State: next, Artifacts: []types.Artifact{artifact}}, nil
}

// Validate implements pipeline.Step.
func (s GenerateDocument) Validate(result *pipeline.StepResult) error {
	if err := s.check(result.State); err != nil {
		return err
	}
	return requireArtifact(s.Name(), result, types.ArtifactDocument)
}

func (s GenerateDocument) check(state types.RunState) error {
	if n := len(state.Document); n < minDocumentChars {
		return &types.ValidationError{Step: s.Name(), Reason: fmt.Sprintf("document too short: %d chars, need %d", n, minDocumentChars)}
	}
	if n := len(headings(state.Document)); n < minDocumentSections {
		return &types.ValidationError{Step: s.Name(), Reason: fmt.Sprintf("document has %d sections, need %d", n, minDocumentSections)}
	}
	return nil
}

// missingSections lists the expected sections the document does not have
func missingSections(doc string) []string {
	have := make(map[string]bool)
	for _, h := range headings(doc) {
		have[strings.ToLower(h)] = true
	}
	var missing []string
	for _, want := range DocumentSections {
		if !have[strings.ToLower(want)] {
			missing = append(missing, want)
		}
	}
	return missing
}
