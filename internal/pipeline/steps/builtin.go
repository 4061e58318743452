package steps

import (
	"fmt"
	"strings"
	"time"

	"github.com/jonathan/ideaforge/internal/pipeline"
	"github.com/jonathan/ideaforge/internal/types"
)

// MediaStepTimeout is the default attempt timeout of generate_media.
// Rendering takes longer than text generation.
const MediaStepTimeout = 5 * time.Minute

// BuiltinOptions tunes the idea_to_launch pipeline
type BuiltinOptions struct {
	// Timeouts overrides the per-attempt timeout of named steps.
	Timeouts map[string]time.Duration
	// Review lists steps that pause the run for approval before executing.
	Review []string
}

// Builtin assembles the idea_to_launch pipeline definition.
func Builtin(opts BuiltinOptions) (*pipeline.Definition, error) {
	if err := ValidateOrder(BuiltinOrder); err != nil {
		return nil, err
	}
	for name := range opts.Timeouts {
		if _, ok := StepRegistry[name]; !ok {
			return nil, fmt.Errorf("timeout configured for unknown step %q", name)
		}
	}
	review := make(map[string]bool, len(opts.Review))
	for _, name := range opts.Review {
		if _, ok := StepRegistry[name]; !ok {
			return nil, fmt.Errorf("review configured for unknown step %q", name)
		}
		review[name] = true
	}

	expectations := Expectations()
	impls := map[string]pipeline.Step{
		StepIntake:           Intake{},
		StepEnrichContext:    EnrichContext{},
		StepGenerateDocument: GenerateDocument{},
		StepGenerateLayout:   GenerateLayout{},
		StepBuildPrototype:   BuildPrototype{},
		StepGenerateMedia:    GenerateMedia{},
		StepComposeOutreach:  ComposeOutreach{},
		StepValidateOutputs:  ValidateOutputs{Expectations: expectations},
	}

	def := &pipeline.Definition{Name: types.DefaultPipeline, Expectations: expectations}
	for _, name := range BuiltinOrder {
		d := pipeline.Descriptor{Step: impls[name], Review: review[name]}
		if name == StepGenerateMedia {
			d.Timeout = MediaStepTimeout
		}
		if t, ok := opts.Timeouts[name]; ok {
			d.Timeout = t
		}
		def.Steps = append(def.Steps, d)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// Expectations are the weighted quality checks of the idea_to_launch pipeline
func Expectations() []pipeline.Expectation {
	return []pipeline.Expectation{
		{Name: "goals_defined", Weight: 1, Check: func(s types.RunState) (bool, string) {
			return len(s.Goals) >= minGoals, fmt.Sprintf("%d goals", len(s.Goals))
		}},
		{Name: "competitors_identified", Weight: 1, Check: func(s types.RunState) (bool, string) {
			if s.MarketAnalysis == nil {
				return false, "no market analysis"
			}
			n := len(s.MarketAnalysis.Competitors)
			return n >= minCompetitors, fmt.Sprintf("%d competitors", n)
		}},
		{Name: "document_complete", Weight: 2, Check: func(s types.RunState) (bool, string) {
			if s.Document == "" {
				return false, "no document"
			}
			if missing := missingSections(s.Document); len(missing) > 0 {
				return false, "missing " + strings.Join(missing, ", ")
			}
			return true, "all sections present"
		}},
		{Name: "wireframe_regions", Weight: 1, Check: func(s types.RunState) (bool, string) {
			doc, err := parseHTML(s.Wireframe)
			if s.Wireframe == "" || err != nil {
				return false, "no wireframe"
			}
			regions := regionKinds(doc)
			return len(regions) >= minWireframeRegions, strings.Join(regions, ", ")
		}},
		{Name: "prototype_built", Weight: 1, Check: func(s types.RunState) (bool, string) {
			return s.PrototypeLocator != "", s.PrototypeLocator
		}},
		{Name: "demo_video", Weight: 1, Check: func(s types.RunState) (bool, string) {
			return s.VideoLocator != "", s.VideoLocator
		}},
		{Name: "outreach_audiences", Weight: 1, Check: func(s types.RunState) (bool, string) {
			a := audiences(s.Outreach)
			return len(a) >= minAudiences, strings.Join(a, ", ")
		}},
		{Name: "log_clean", Weight: 1, Check: func(s types.RunState) (bool, string) {
			var warnings, errs int
			for _, e := range s.Log {
				if e.Level == types.LogLevelError {
					errs++
				} else {
					warnings++
				}
			}
			return errs == 0, fmt.Sprintf("%d warnings, %d errors", warnings, errs)
		}},
	}
}
