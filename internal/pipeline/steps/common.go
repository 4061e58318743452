package steps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jonathan/ideaforge/internal/gateway"
	"github.com/jonathan/ideaforge/internal/llm"
	"github.com/jonathan/ideaforge/internal/pipeline"
	"github.com/jonathan/ideaforge/internal/prompts"
	"github.com/jonathan/ideaforge/internal/schemas"
	"github.com/jonathan/ideaforge/internal/types"
)

// generate sends a text or JSON generation request through the gateway.
// The per-call timeout is left to the gateway default; the executor bounds
// the attempt as a whole.
func generate(ctx context.Context, env *pipeline.Env, op, task, prompt string, tier gateway.Tier) (string, error) {
	resp, err := gateway.Call[gateway.TextRequest, gateway.TextResponse](ctx, env.Invoker, op, gateway.TextRequest{
		Task:   task,
		Prompt: prompt,
		Tier:   tier,
	}, 0)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Text) == "" {
		return "", &types.ValidationError{Step: env.Step, Reason: "generator returned empty output"}
	}
	return resp.Text, nil
}

// renderPrompt fills a step template. A missing template is a programming
// error and never succeeds on retry.
func renderPrompt(step, key string, data map[string]string) (string, error) {
	prompt, err := prompts.Render(prompts.StepsFile, key, data)
	if err != nil {
		return "", &types.FatalError{Op: step, Err: fmt.Errorf("failed to render prompt: %w", err)}
	}
	return prompt, nil
}

// decodeStructured cleans a model response, checks it against an embedded
// schema and decodes it into v. Unparseable or non-conforming output is a
// validation failure so the executor retries the generation.
func decodeStructured(step, schema, text string, v any) ([]byte, error) {
	raw := []byte(llm.CleanJSONBlock(text))
	if !json.Valid(raw) {
		return nil, &types.ValidationError{Step: step, Reason: "response is not valid JSON"}
	}
	if err := checkSchema(step, schema, raw); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, &types.ValidationError{Step: step, Reason: fmt.Sprintf("failed to decode response: %v", err)}
	}
	return raw, nil
}

func checkSchema(step, schema string, raw []byte) error {
	err := schemas.Validate(schema, raw)
	if err == nil {
		return nil
	}
	var verr *schemas.ValidationError
	if errors.As(err, &verr) {
		return &types.ValidationError{Step: step, Reason: verr.Summary()}
	}
	return &types.FatalError{Op: step, Err: err}
}

func marshalArtifact(step string, v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, &types.FatalError{Op: step, Err: fmt.Errorf("failed to marshal artifact: %w", err)}
	}
	return data, nil
}

// requireArtifact checks the result carries exactly one artifact of kind
func requireArtifact(step string, result *pipeline.StepResult, kind types.ArtifactKind) error {
	if len(result.Artifacts) != 1 {
		return &types.ValidationError{Step: step, Reason: fmt.Sprintf("expected 1 artifact, got %d", len(result.Artifacts))}
	}
	if got := result.Artifacts[0].Kind; got != kind {
		return &types.ValidationError{Step: step, Reason: fmt.Sprintf("expected %s artifact, got %s", kind, got)}
	}
	return nil
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return "- none"
	}
	var sb strings.Builder
	for i, item := range items {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("- ")
		sb.WriteString(item)
	}
	return sb.String()
}

func marketSummary(state types.RunState) string {
	if state.MarketAnalysis == nil {
		return ""
	}
	return state.MarketAnalysis.Summary
}

func opportunities(state types.RunState) []string {
	if state.MarketAnalysis == nil {
		return nil
	}
	return state.MarketAnalysis.Opportunities
}
