package steps

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/jonathan/ideaforge/internal/gateway"
	"github.com/jonathan/ideaforge/internal/llm"
	"github.com/jonathan/ideaforge/internal/pipeline"
	"github.com/jonathan/ideaforge/internal/schemas"
	"github.com/jonathan/ideaforge/internal/types"
)

const minCompetitors = 2

// EnrichContext produces the market analysis and ranks competitors by how
// close their description is to the idea.
type EnrichContext struct{}

// Name implements pipeline.Step.
func (EnrichContext) Name() string { return StepEnrichContext }

// Execute implements pipeline.Step.
func (s EnrichContext) Execute(ctx context.Context, env *pipeline.Env, state types.RunState) (*pipeline.StepResult, error) {
	input, err := renderPrompt(s.Name(), "enrich-context", map[string]string{
		"Sector":   state.Sector,
		"Idea":     state.Idea,
		"Goals":    bulletList(state.Goals),
		"Keywords": strings.Join(state.Keywords, ", "),
	})
	if err != nil {
		return nil, err
	}

	text, err := generate(ctx, env, gateway.OpGenerateJSON, "market_analysis", llm.BuildExtractionPrompt(llm.MarketAnalysisSchema(), input), gateway.TierStandard)
	if err != nil {
		return nil, err
	}

	var analysis types.MarketAnalysis
	if _, err := decodeStructured(s.Name(), schemas.MarketAnalysis, text, &analysis); err != nil {
		return nil, err
	}

	next := state.Clone()
	next.MarketAnalysis = &analysis

	// Similarity ranking is an enrichment. Without it the analysis is still usable.
	if err := rankCompetitors(ctx, env, state.Idea, analysis.Competitors); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		env.Logger.Warn().Err(err).Msg("competitor ranking unavailable")
		next = next.Warn(s.Name(), fmt.Sprintf("competitor similarity unavailable: %v", err))
	}

	if err := s.check(next); err != nil {
		return nil, err
	}

	data, err := marshalArtifact(s.Name(), next.MarketAnalysis)
	if err != nil {
		return nil, err
	}
	artifact, err := env.PutArtifact(ctx, types.ArtifactAnalysis, data, "application/json")
	if err != nil {
		return nil, err
	}

	return &pipeline.StepResult{State: next, Artifacts: []types.Artifact{artifact}}, nil
}

// Validate implements pipeline.Step.
func (s EnrichContext) Validate(result *pipeline.StepResult) error {
	if err := s.check(result.State); err != nil {
		return err
	}
	return requireArtifact(s.Name(), result, types.ArtifactAnalysis)
}

func (s EnrichContext) check(state types.RunState) error {
	if state.MarketAnalysis == nil {
		return &types.ValidationError{Step: s.Name(), Reason: "market analysis is missing"}
	}
	if n := len(state.MarketAnalysis.Competitors); n < minCompetitors {
		return &types.ValidationError{Step: s.Name(), Reason: fmt.Sprintf("need at least %d competitors, got %d", minCompetitors, n)}
	}
	return nil
}

// rankCompetitors embeds the idea and each competitor description, stores the
// cosine similarity on each competitor and sorts them most similar first.
func rankCompetitors(ctx context.Context, env *pipeline.Env, idea string, competitors []types.Competitor) error {
	texts := make([]string, 0, len(competitors)+1)
	texts = append(texts, idea)
	for _, c := range competitors {
		texts = append(texts, c.Name+": "+c.Description)
	}

	resp, err := gateway.Call[gateway.EmbedRequest, gateway.EmbedResponse](ctx, env.Invoker, gateway.OpEmbed, gateway.EmbedRequest{Texts: texts}, 0)
	if err != nil {
		return err
	}
	if len(resp.Vectors) != len(texts) {
		return fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Vectors))
	}

	for i := range competitors {
		sim, err := cosine(resp.Vectors[0], resp.Vectors[i+1])
		if err != nil {
			return err
		}
		competitors[i].Similarity = sim
	}
	sort.SliceStable(competitors, func(i, j int) bool {
		return competitors[i].Similarity > competitors[j].Similarity
	})
	return nil
}

func cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, errors.New("embedding dimensions do not match")
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return math.Round(dot/(math.Sqrt(na)*math.Sqrt(nb))*1000) / 1000, nil
}
