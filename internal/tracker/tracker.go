// Package tracker defines the durable record of runs and their checkpoints.
package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/ideaforge/internal/types"
)

// ErrStaleCheckpoint rejects a checkpoint that does not continue from the
// run's current step, or one written after the run left the running state.
var ErrStaleCheckpoint = errors.New("checkpoint does not match run progress")

// Checkpoint is everything a completed step leaves behind. It is persisted as a
// unit: after a successful write the run's current step is StepIndex+1.
type Checkpoint struct {
	StepIndex int
	Step      string
	State     types.RunState
	Artifacts []types.Artifact
	Metrics   types.StepMetrics
}

// Tracker persists runs. Implementations must be safe for concurrent use and
// must never hand out data that aliases their own storage.
type Tracker interface {
	// CreateRun stores a new queued run with its initial state. It returns a
	// *types.ConflictError when the project already has an active run.
	CreateRun(ctx context.Context, run *types.Run, initial types.RunState) error

	// Checkpoint records a completed step atomically.
	Checkpoint(ctx context.Context, runID uuid.UUID, cp Checkpoint) error

	// MarkStatus moves the run to status, appending runErr when non-nil.
	MarkStatus(ctx context.Context, runID uuid.UUID, status types.RunStatus, runErr *types.RunError) error

	// Complete marks a running run completed with its validation score.
	Complete(ctx context.Context, runID uuid.UUID, score float64, totalDurationMs int64) error

	Get(ctx context.Context, runID uuid.UUID) (*types.Run, error)

	// State returns the state as of the last checkpoint.
	State(ctx context.Context, runID uuid.UUID) (types.RunState, error)

	// List returns runs newest first. A non-positive limit returns every match.
	List(ctx context.Context, filter types.RunFilter) ([]*types.Run, error)

	// RequestCancel flags the run for cancellation and returns it.
	RequestCancel(ctx context.Context, runID uuid.UUID) (*types.Run, error)

	// ApproveReview records approval of a review-gated step.
	ApproveReview(ctx context.Context, runID uuid.UUID, step string) error

	AddWarning(ctx context.Context, runID uuid.UUID, message string) error
}

// ApplyCheckpoint updates run in place with cp after checking it continues the
// run's progress. Shared by implementations so both enforce the same rules.
func ApplyCheckpoint(run *types.Run, cp Checkpoint) error {
	if run.Status != types.RunStatusRunning {
		return ErrStaleCheckpoint
	}
	if cp.StepIndex != run.CurrentStep || cp.StepIndex >= len(run.Steps) || run.Steps[cp.StepIndex] != cp.Step {
		return ErrStaleCheckpoint
	}

	run.CurrentStep = cp.StepIndex + 1
	run.Artifacts = MergeArtifacts(run.Artifacts, cp.Artifacts)
	if run.Metrics.Steps == nil {
		run.Metrics.Steps = make(map[string]types.StepMetrics)
	}
	run.Metrics.Steps[cp.Step] = cp.Metrics
	return nil
}

// MergeArtifacts adds the new artifacts to existing, replacing any record of the
// same kind. A replayed step overwrites its artifact under the same key, so the
// old record would point at content that no longer exists.
func MergeArtifacts(existing, added []types.Artifact) []types.Artifact {
	out := append([]types.Artifact(nil), existing...)
	for _, a := range added {
		replaced := false
		for i := range out {
			if out[i].Kind == a.Kind {
				out[i] = a
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, a)
		}
	}
	return out
}

// ApplyStatus updates run in place for a status change.
func ApplyStatus(run *types.Run, status types.RunStatus, runErr *types.RunError, at time.Time) error {
	if !run.Status.CanTransitionTo(status) {
		return &types.InvalidTransitionError{RunID: run.ID, From: run.Status, To: status}
	}
	at = at.UTC()
	run.Status = status
	if status == types.RunStatusRunning && run.StartedAt == nil {
		run.StartedAt = &at
	}
	if status.IsTerminal() {
		run.CompletedAt = &at
	}
	if runErr != nil {
		run.Errors = append(run.Errors, *runErr)
	}
	return nil
}
