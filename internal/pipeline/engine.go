package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jonathan/ideaforge/internal/artifacts"
	"github.com/jonathan/ideaforge/internal/gateway"
	"github.com/jonathan/ideaforge/internal/retry"
	"github.com/jonathan/ideaforge/internal/tracker"
	"github.com/jonathan/ideaforge/internal/types"
)

// notifyTimeout bounds the completion notification when the run's own context
// has already ended
const notifyTimeout = 15 * time.Second

// EngineConfig holds the engine's collaborators
type EngineConfig struct {
	Tracker   tracker.Tracker
	Pipelines *Catalog
	Invoker   gateway.Invoker
	Store     artifacts.Store
	Notifier  Notifier // nil disables notifications
	Events    *Broadcaster
	Retry     retry.Policy
	// RunTimeout bounds the total step execution time of a run. Zero disables it.
	RunTimeout time.Duration
	Logger     zerolog.Logger
}

// Engine drives runs from their current step to a terminal or paused state.
// It holds no per-run state: everything needed to continue a run lives in the
// tracker, so any engine can pick up a run another one left behind.
type Engine struct {
	tracker    tracker.Tracker
	pipelines  *Catalog
	invoker    gateway.Invoker
	store      artifacts.Store
	notifier   Notifier
	events     *Broadcaster
	policy     retry.Policy
	runTimeout time.Duration
	logger     zerolog.Logger
}

// NewEngine creates an engine
func NewEngine(cfg EngineConfig) *Engine {
	events := cfg.Events
	if events == nil {
		events = NewBroadcaster()
	}
	return &Engine{
		tracker:    cfg.Tracker,
		pipelines:  cfg.Pipelines,
		invoker:    cfg.Invoker,
		store:      cfg.Store,
		notifier:   cfg.Notifier,
		events:     events,
		policy:     cfg.Retry.Normalize(),
		runTimeout: cfg.RunTimeout,
		logger:     cfg.Logger,
	}
}

// Events returns the broadcaster progress is published to
func (e *Engine) Events() *Broadcaster {
	return e.events
}

// Pipelines returns the engine's pipeline catalog
func (e *Engine) Pipelines() *Catalog {
	return e.pipelines
}

// Start begins a queued run, or continues a running run whose previous owner
// went away, from its last checkpoint. It returns when the run is terminal or
// paused, or when ctx ends; in the last case the run stays running so it can be
// recovered later.
func (e *Engine) Start(ctx context.Context, runID uuid.UUID) (*types.Run, error) {
	run, err := e.tracker.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	def, ok := e.pipelines.Get(run.Pipeline)
	if !ok {
		return nil, &types.FatalError{Op: "start", Err: fmt.Errorf("unknown pipeline %q", run.Pipeline)}
	}

	switch run.Status {
	case types.RunStatusQueued:
		if err := e.tracker.MarkStatus(ctx, runID, types.RunStatusRunning, nil); err != nil {
			if errors.Is(err, types.ErrInvalidTransition) {
				// cancelled before it could start
				return e.tracker.Get(ctx, runID)
			}
			return nil, err
		}
		e.publish(runID, EventRunStarted, "", fmt.Sprintf("pipeline %s started", def.Name))
	case types.RunStatusRunning:
		e.logger.Info().Str("run_id", runID.String()).Int("step", run.CurrentStep).Msg("replaying run from checkpoint")
		e.publish(runID, EventRunStarted, run.CurrentStepName(), "resumed from checkpoint")
	default:
		return run, &types.InvalidTransitionError{RunID: runID, From: run.Status, To: types.RunStatusRunning}
	}

	return e.execute(ctx, runID, def)
}

// Resume approves the step a paused run stopped at and continues the run.
func (e *Engine) Resume(ctx context.Context, runID uuid.UUID) (*types.Run, error) {
	run, err := e.tracker.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != types.RunStatusPaused {
		return run, &types.InvalidTransitionError{RunID: runID, From: run.Status, To: types.RunStatusRunning}
	}
	def, ok := e.pipelines.Get(run.Pipeline)
	if !ok {
		return nil, &types.FatalError{Op: "resume", Err: fmt.Errorf("unknown pipeline %q", run.Pipeline)}
	}

	if step := run.CurrentStepName(); step != "" {
		if err := e.tracker.ApproveReview(ctx, runID, step); err != nil {
			return nil, err
		}
	}
	if err := e.tracker.MarkStatus(ctx, runID, types.RunStatusRunning, nil); err != nil {
		return nil, err
	}
	e.publish(runID, EventRunStarted, run.CurrentStepName(), "resumed after review")

	return e.execute(ctx, runID, def)
}

// Cancel requests cancellation. Queued and paused runs are cancelled at once;
// a running run stops at its next step boundary.
func (e *Engine) Cancel(ctx context.Context, runID uuid.UUID) (*types.Run, error) {
	run, err := e.tracker.RequestCancel(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status == types.RunStatusQueued || run.Status == types.RunStatusPaused {
		return e.finishCancelled(ctx, run)
	}
	e.publish(runID, EventWarning, run.CurrentStepName(), "cancellation requested")
	return run, nil
}

func (e *Engine) execute(ctx context.Context, runID uuid.UUID, def *Definition) (*types.Run, error) {
	logger := e.logger.With().Str("run_id", runID.String()).Str("pipeline", def.Name).Logger()

	state, err := e.tracker.State(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	for {
		run, err := e.tracker.Get(ctx, runID)
		if err != nil {
			return nil, err
		}
		if run.Status != types.RunStatusRunning {
			return run, nil
		}
		if run.CancelRequested {
			return e.finishCancelled(ctx, run)
		}
		if run.CurrentStep >= len(def.Steps) {
			return e.complete(ctx, run, def, state)
		}

		desc := def.Steps[run.CurrentStep]
		name := desc.Step.Name()

		if e.runTimeout > 0 {
			if elapsed := activeDuration(run); elapsed > e.runTimeout {
				return e.fail(ctx, run, name, types.ErrorKindTimeout,
					fmt.Sprintf("run exceeded its %s time budget after %s", e.runTimeout, elapsed.Round(time.Millisecond)))
			}
		}
		if err := ctx.Err(); err != nil {
			return run, err
		}
		if desc.Review && !run.IsApproved(name) {
			return e.pause(ctx, run, name, "review required before "+name)
		}

		env := &Env{
			RunID:     runID,
			ProjectID: run.ProjectID,
			Step:      name,
			Invoker:   e.invoker,
			Store:     e.store,
			Approved:  run.IsApproved(name),
			Logger:    logger.With().Str("step", name).Logger(),
		}
		e.publish(runID, EventStepStarted, name, fmt.Sprintf("step %d/%d", run.CurrentStep+1, len(def.Steps)))

		out, err := e.runStep(ctx, desc, env, state)
		if err != nil {
			var review *types.ReviewRequired
			if errors.As(err, &review) {
				return e.pause(ctx, run, name, review.Error())
			}
			if ctx.Err() != nil {
				return run, ctx.Err()
			}
			return e.fail(ctx, run, name, errorKind(err), err.Error())
		}

		// a cancel that arrived while the step ran discards its result
		latest, err := e.tracker.Get(ctx, runID)
		if err != nil {
			return nil, err
		}
		if latest.CancelRequested || latest.Status != types.RunStatusRunning {
			return e.finishCancelled(ctx, latest)
		}

		produced := make([]types.Artifact, len(out.Result.Artifacts))
		for i, a := range out.Result.Artifacts {
			if a.Step == "" {
				a.Step = name
			}
			produced[i] = a
		}
		cp := tracker.Checkpoint{
			StepIndex: run.CurrentStep,
			Step:      name,
			State:     out.Result.State,
			Artifacts: produced,
			Metrics: types.StepMetrics{
				Attempts:    out.Attempts,
				DurationMs:  out.Duration.Milliseconds(),
				CompletedAt: time.Now().UTC(),
			},
		}
		if err := e.tracker.Checkpoint(ctx, runID, cp); err != nil {
			if errors.Is(err, tracker.ErrStaleCheckpoint) {
				// the run moved on without us, most likely cancelled
				latest, getErr := e.tracker.Get(ctx, runID)
				if getErr == nil && latest.Status.IsTerminal() {
					return latest, nil
				}
			}
			return nil, fmt.Errorf("failed to checkpoint step %s: %w", name, err)
		}

		state = out.Result.State
		logger.Info().Str("step", name).Int("attempts", out.Attempts).
			Dur("duration", out.Duration).Msg("step completed")
		e.publish(runID, EventStepCompleted, name, fmt.Sprintf("completed in %d attempt(s)", out.Attempts))
	}
}

// runStep runs one step through the executor, publishing each retry as an event.
func (e *Engine) runStep(ctx context.Context, desc Descriptor, env *Env, state types.RunState) (Outcome, error) {
	x := NewExecutor(e.policy, env.Logger, func(step string, attempt int, err error, wait time.Duration) {
		e.publish(env.RunID, EventStepRetry, step,
			fmt.Sprintf("attempt %d failed: %v; retrying in %s", attempt, err, wait.Round(time.Millisecond)))
	})
	return x.Run(ctx, desc, env, state)
}

func (e *Engine) complete(ctx context.Context, run *types.Run, def *Definition, state types.RunState) (*types.Run, error) {
	score := def.Score(state)
	if err := e.tracker.Complete(ctx, run.ID, score, activeDuration(run).Milliseconds()); err != nil {
		return nil, fmt.Errorf("failed to complete run: %w", err)
	}
	done, err := e.tracker.Get(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	e.logger.Info().Str("run_id", run.ID.String()).Float64("validation_score", score).Msg("run completed")
	e.publish(run.ID, EventRunCompleted, "", fmt.Sprintf("validation score %.2f", score))
	return e.notify(ctx, done), nil
}

func (e *Engine) fail(ctx context.Context, run *types.Run, step string, kind types.ErrorKind, message string) (*types.Run, error) {
	runErr := &types.RunError{Step: step, Kind: kind, Message: message, At: time.Now().UTC()}
	if err := e.tracker.MarkStatus(ctx, run.ID, types.RunStatusFailed, runErr); err != nil {
		return nil, fmt.Errorf("failed to mark run failed: %w", err)
	}
	failed, err := e.tracker.Get(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	e.logger.Error().Str("run_id", run.ID.String()).Str("step", step).Str("kind", string(kind)).Msg(message)
	e.publish(run.ID, EventRunFailed, step, message)
	return e.notify(ctx, failed), nil
}

func (e *Engine) pause(ctx context.Context, run *types.Run, step, reason string) (*types.Run, error) {
	if err := e.tracker.MarkStatus(ctx, run.ID, types.RunStatusPaused, nil); err != nil {
		return nil, fmt.Errorf("failed to pause run: %w", err)
	}
	e.logger.Info().Str("run_id", run.ID.String()).Str("step", step).Msg("run paused for review")
	e.publish(run.ID, EventRunPaused, step, reason)
	return e.tracker.Get(ctx, run.ID)
}

func (e *Engine) finishCancelled(ctx context.Context, run *types.Run) (*types.Run, error) {
	if run.Status != types.RunStatusCancelled {
		err := e.tracker.MarkStatus(ctx, run.ID, types.RunStatusCancelled, nil)
		if err != nil && !errors.Is(err, types.ErrInvalidTransition) {
			return nil, fmt.Errorf("failed to cancel run: %w", err)
		}
	}
	cancelled, err := e.tracker.Get(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	if cancelled.Status == types.RunStatusCancelled {
		e.publish(run.ID, EventRunCancelled, cancelled.CurrentStepName(), "run cancelled")
	}
	return cancelled, nil
}

// notify sends the completion notification once. A failed send is kept on the
// run as a warning and never changes its status.
func (e *Engine) notify(ctx context.Context, run *types.Run) *types.Run {
	if e.notifier == nil {
		return run
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	if err := e.notifier.Notify(sendCtx, types.NewNotification(run, time.Now())); err != nil {
		msg := fmt.Sprintf("completion notification failed: %v", err)
		e.logger.Warn().Err(err).Str("run_id", run.ID.String()).Msg("completion notification failed")
		if werr := e.tracker.AddWarning(sendCtx, run.ID, msg); werr != nil {
			e.logger.Error().Err(werr).Str("run_id", run.ID.String()).Msg("failed to record notification warning")
			return run
		}
		e.publish(run.ID, EventWarning, "", msg)
		if updated, err := e.tracker.Get(sendCtx, run.ID); err == nil {
			return updated
		}
	}
	return run
}

func (e *Engine) publish(runID uuid.UUID, kind EventKind, step, message string) {
	e.events.Publish(ProgressEvent{RunID: runID, Kind: kind, Step: step, Message: message})
}

// activeDuration is the time spent executing checkpointed steps. Pauses and
// downtime between a crash and recovery do not count.
func activeDuration(run *types.Run) time.Duration {
	var total int64
	for _, m := range run.Metrics.Steps {
		total += m.DurationMs
	}
	return time.Duration(total) * time.Millisecond
}

func errorKind(err error) types.ErrorKind {
	var validation *types.ValidationError
	var exhausted *types.ExhaustedError
	switch {
	case errors.As(err, &validation):
		return types.ErrorKindValidation
	case errors.As(err, &exhausted):
		return types.ErrorKindTransientExhausted
	default:
		return types.ErrorKindFatal
	}
}
