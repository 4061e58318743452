package steps

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jonathan/ideaforge/internal/artifacts"
	"github.com/jonathan/ideaforge/internal/gateway"
	"github.com/jonathan/ideaforge/internal/pipeline"
	"github.com/jonathan/ideaforge/internal/types"
)

const (
	minScriptLines = 2
	maxTitleChars  = 80
)

// GenerateMedia writes a demo video script and renders it, together with the
// prototype page, through the rendering dependency.
type GenerateMedia struct{}

// Name implements pipeline.Step.
func (GenerateMedia) Name() string { return StepGenerateMedia }

// Execute implements pipeline.Step.
func (s GenerateMedia) Execute(ctx context.Context, env *pipeline.Env, state types.RunState) (*pipeline.StepResult, error) {
	prompt, err := renderPrompt(s.Name(), "video-script", map[string]string{
		"Idea":  state.Idea,
		"Goals": bulletList(state.Goals),
	})
	if err != nil {
		return nil, err
	}

	text, err := generate(ctx, env, gateway.OpGenerateText, "video_script", prompt, gateway.TierLite)
	if err != nil {
		return nil, err
	}
	script := scriptLines(stripFence(text))
	if len(script) < minScriptLines {
		return nil, &types.ValidationError{Step: s.Name(), Reason: fmt.Sprintf("script has %d lines, need %d", len(script), minScriptLines)}
	}

	prototype, err := env.Store.Get(ctx, state.PrototypeLocator)
	if err != nil {
		if errors.Is(err, artifacts.ErrNotFound) || errors.Is(err, artifacts.ErrInvalidLocator) {
			return nil, &types.FatalError{Op: s.Name(), Err: fmt.Errorf("prototype unavailable: %w", err)}
		}
		return nil, err
	}

	media, err := gateway.Call[gateway.MediaRequest, gateway.MediaResponse](ctx, env.Invoker, gateway.OpRenderMedia, gateway.MediaRequest{
		ProjectID: state.ProjectID,
		Title:     title(state.Idea),
		Script:    strings.Join(script, "\n"),
		HTML:      string(prototype),
	}, 0)
	if err != nil {
		return nil, err
	}
	if err := checkMedia(s.Name(), media); err != nil {
		return nil, err
	}

	artifact, err := env.PutArtifact(ctx, types.ArtifactVideo, media.Data, media.ContentType)
	if err != nil {
		return nil, err
	}

	next := state.Clone()
	next.VideoLocator = artifact.Locator
	env.Logger.Debug().Str("content_type", media.ContentType).Int("bytes", len(media.Data)).Msg("media rendered")
	return &pipeline.StepResult{State: next, Artifacts: []types.Artifact{artifact}}, nil
}

// Validate implements pipeline.Step.
func (s GenerateMedia) Validate(result *pipeline.StepResult) error {
	if result.State.VideoLocator == "" {
		return &types.ValidationError{Step: s.Name(), Reason: "video locator is missing"}
	}
	return requireArtifact(s.Name(), result, types.ArtifactVideo)
}

func checkMedia(step string, media gateway.MediaResponse) error {
	if len(media.Data) == 0 {
		return &types.ValidationError{Step: step, Reason: "renderer returned no data"}
	}
	ct := strings.ToLower(media.ContentType)
	if !strings.HasPrefix(ct, "video/") && !strings.HasPrefix(ct, "image/") {
		return &types.ValidationError{Step: step, Reason: fmt.Sprintf("unexpected media content type %q", media.ContentType)}
	}
	return nil
}

func scriptLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// title is the first sentence of the idea, cut to a length a poster frame can show
func title(idea string) string {
	t := strings.TrimSpace(idea)
	if i := strings.IndexAny(t, ".!?\n"); i > 0 {
		t = t[:i]
	}
	if r := []rune(t); len(r) > maxTitleChars {
		t = strings.TrimSpace(string(r[:maxTitleChars-3])) + "..."
	}
	return t
}
