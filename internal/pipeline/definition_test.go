package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/ideaforge/internal/pipeline"
	"github.com/jonathan/ideaforge/internal/types"
)

func hasGoals(s types.RunState) (bool, string) { return len(s.Goals) > 0, "" }
func hasDocument(s types.RunState) (bool, string) { return s.Document != "", "" }

func TestDefinition_Validate(t *testing.T) {
	a, b, _ := threeSteps()

	tests := []struct {
		name    string
		def     *pipeline.Definition
		wantErr string
	}{
		{"valid", testDefinition(a, b), ""},
		{"no name", &pipeline.Definition{Steps: testDefinition(a).Steps}, "name is empty"},
		{"no steps", &pipeline.Definition{Name: "x"}, "no steps"},
		{"duplicate", testDefinition(a, a), "duplicate step a"},
		{"nil step", &pipeline.Definition{Name: "x", Steps: []pipeline.Descriptor{{}}}, "is nil"},
		{"zero weight", &pipeline.Definition{Name: "x", Steps: testDefinition(a).Steps,
			Expectations: []pipeline.Expectation{{Name: "e", Check: hasGoals}}}, "positive weight"},
		{"no check", &pipeline.Definition{Name: "x", Steps: testDefinition(a).Steps,
			Expectations: []pipeline.Expectation{{Name: "e", Weight: 1}}}, "no check"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDefinition_Score(t *testing.T) {
	def := &pipeline.Definition{Name: "x", Expectations: []pipeline.Expectation{
		{Name: "goals", Weight: 1, Check: hasGoals},
		{Name: "document", Weight: 3, Check: hasDocument},
	}}

	assert.Equal(t, 0.0, def.Score(types.RunState{}))
	assert.Equal(t, 0.25, def.Score(types.RunState{Goals: []string{"g"}}))
	assert.Equal(t, 0.75, def.Score(types.RunState{Document: "d"}))
	assert.Equal(t, 1.0, def.Score(types.RunState{Goals: []string{"g"}, Document: "d"}))

	checks := def.Evaluate(types.RunState{Document: "d"})
	require.Len(t, checks, 2)
	assert.False(t, checks[0].Passed)
	assert.True(t, checks[1].Passed)

	empty := &pipeline.Definition{Name: "y"}
	assert.Equal(t, 1.0, empty.Score(types.RunState{}))
}

func TestDefinition_NewRun(t *testing.T) {
	a, b, c := threeSteps()
	def := testDefinition(a, b, c)
	run := def.NewRun("p1")

	assert.Equal(t, types.RunStatusQueued, run.Status)
	assert.Equal(t, "test", run.Pipeline)
	assert.Equal(t, []string{"a", "b", "c"}, run.Steps)
	assert.Equal(t, 0, run.CurrentStep)
	assert.NotEqual(t, run.ID, def.NewRun("p1").ID)
}

func TestCatalog(t *testing.T) {
	a, b, _ := threeSteps()
	first := testDefinition(a)
	second := &pipeline.Definition{Name: "other", Steps: testDefinition(b).Steps}

	c, err := pipeline.NewCatalog(first, second)
	require.NoError(t, err)
	assert.Equal(t, []string{"other", "test"}, c.Names())

	got, ok := c.Get("test")
	require.True(t, ok)
	assert.Same(t, first, got)

	_, ok = c.Get("missing")
	assert.False(t, ok)

	assert.Error(t, c.Register(testDefinition(b)))
	_, err = pipeline.NewCatalog(&pipeline.Definition{Name: "bad"})
	assert.Error(t, err)
}
