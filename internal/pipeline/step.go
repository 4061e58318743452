// Package pipeline drives runs through their steps: it executes each step with
// retries, checkpoints the result and moves the run through its lifecycle.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jonathan/ideaforge/internal/artifacts"
	"github.com/jonathan/ideaforge/internal/gateway"
	"github.com/jonathan/ideaforge/internal/types"
)

// Env is everything a step may use besides its input state. Steps get their
// collaborators from here and nowhere else.
type Env struct {
	RunID     uuid.UUID
	ProjectID string
	Step      string
	Attempt   int
	Invoker   gateway.Invoker
	Store     artifacts.Store
	// Approved is set when a reviewer has approved this step of the run.
	Approved bool
	Logger   zerolog.Logger
}

// PutArtifact stores data as the run's artifact of kind and tags it with the step.
func (e *Env) PutArtifact(ctx context.Context, kind types.ArtifactKind, data []byte, contentType string) (types.Artifact, error) {
	a, err := e.Store.Put(ctx, e.ProjectID, e.RunID, kind, data, contentType)
	if err != nil {
		return types.Artifact{}, err
	}
	a.Step = e.Step
	return a, nil
}

// StepResult is the output of one successful step execution
type StepResult struct {
	State     types.RunState
	Artifacts []types.Artifact
}

// Step is one unit of generation work. Execute must derive its output from a
// clone of state and never modify the value it was given. Validate checks the
// output; a failure there is retried like a transient error.
type Step interface {
	Name() string
	Execute(ctx context.Context, env *Env, state types.RunState) (*StepResult, error)
	Validate(result *StepResult) error
}

// Descriptor places a step in a pipeline
type Descriptor struct {
	Step    Step
	Timeout time.Duration // per attempt; zero means DefaultStepTimeout
	// Review pauses the run before the step until a reviewer resumes it.
	Review bool
}

// DefaultStepTimeout bounds a single attempt when the descriptor does not
const DefaultStepTimeout = 2 * time.Minute

func (d Descriptor) timeout() time.Duration {
	if d.Timeout > 0 {
		return d.Timeout
	}
	return DefaultStepTimeout
}

// Notifier delivers the completion notification of a run
type Notifier interface {
	Notify(ctx context.Context, n types.Notification) error
}
