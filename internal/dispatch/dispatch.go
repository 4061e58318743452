// Package dispatch accepts run submissions, enforces one active run per
// project and executes runs on a bounded worker pool.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/jonathan/ideaforge/internal/lock"
	"github.com/jonathan/ideaforge/internal/pipeline"
	"github.com/jonathan/ideaforge/internal/tracker"
	"github.com/jonathan/ideaforge/internal/types"
)

// ErrInvalidRequest is wrapped by every rejected submission payload
var ErrInvalidRequest = errors.New("invalid request")

const (
	// DefaultWorkers is the number of runs executed concurrently
	DefaultWorkers = 4
	// DefaultRefreshInterval is how often a running run renews its project lock
	DefaultRefreshInterval = 10 * time.Minute

	releaseTimeout = 5 * time.Second
)

// Config holds the dispatcher's collaborators
type Config struct {
	Engine          *pipeline.Engine
	Tracker         tracker.Tracker
	Locker          lock.Locker
	Workers         int
	RefreshInterval time.Duration
	Logger          zerolog.Logger
}

// Dispatcher hands runs to the engine. Runs execute under the dispatcher's
// own context, not the caller's, so a submitting request can return at once.
type Dispatcher struct {
	engine  *pipeline.Engine
	tracker tracker.Tracker
	locker  lock.Locker
	sem     *semaphore.Weighted
	refresh time.Duration
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	inflight map[uuid.UUID]bool
}

// New creates a dispatcher. Call Close to stop it.
func New(cfg Config) *Dispatcher {
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	refresh := cfg.RefreshInterval
	if refresh <= 0 {
		refresh = DefaultRefreshInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		engine:   cfg.Engine,
		tracker:  cfg.Tracker,
		locker:   cfg.Locker,
		sem:      semaphore.NewWeighted(int64(workers)),
		refresh:  refresh,
		logger:   cfg.Logger.With().Str("component", "dispatch").Logger(),
		ctx:      ctx,
		cancel:   cancel,
		inflight: make(map[uuid.UUID]bool),
	}
}

// Submit validates req, takes the project lock and queues a new run.
// A project with an active run is rejected with *types.ConflictError.
func (d *Dispatcher) Submit(ctx context.Context, req types.SubmitRequest) (*types.Run, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	def, ok := d.engine.Pipelines().Get(req.Pipeline)
	if !ok {
		return nil, fmt.Errorf("%w: unknown pipeline %q", ErrInvalidRequest, req.Pipeline)
	}

	run := def.NewRun(req.ProjectID)
	holder, ok, err := d.locker.Acquire(ctx, req.ProjectID, run.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConflictError{ProjectID: req.ProjectID, ExistingRunID: holder}
	}

	if err := d.tracker.CreateRun(ctx, run, types.InitialState(req)); err != nil {
		// e.g. a paused run, which does not hold the lock
		d.release(req.ProjectID, run.ID)
		return nil, err
	}

	d.logger.Info().Str("run_id", run.ID.String()).Str("project_id", run.ProjectID).
		Str("pipeline", run.Pipeline).Msg("run submitted")
	d.launch(run.ID, run.ProjectID, d.engine.Start)
	return run, nil
}

// Resume continues a paused run after review.
func (d *Dispatcher) Resume(ctx context.Context, runID uuid.UUID) (*types.Run, error) {
	run, err := d.tracker.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != types.RunStatusPaused || d.isInflight(runID) {
		return nil, &types.InvalidTransitionError{RunID: runID, From: run.Status, To: types.RunStatusRunning}
	}

	holder, ok, err := d.locker.Acquire(ctx, run.ProjectID, run.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		if holder == run.ID {
			// a concurrent Resume of the same run got the lock first
			return nil, &types.InvalidTransitionError{RunID: runID, From: run.Status, To: types.RunStatusRunning}
		}
		return nil, &types.ConflictError{ProjectID: run.ProjectID, ExistingRunID: holder}
	}

	d.launch(run.ID, run.ProjectID, d.engine.Resume)
	return run, nil
}

// Cancel cancels a queued or paused run at once and asks a running run to
// stop at its next step boundary.
func (d *Dispatcher) Cancel(ctx context.Context, runID uuid.UUID) (*types.Run, error) {
	run, err := d.engine.Cancel(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status.IsTerminal() && !d.isInflight(runID) {
		d.release(run.ProjectID, run.ID)
	}
	return run, nil
}

// Recover relaunches runs left queued or running by a previous process.
// A lease still held under the run's own id was left by that process and is
// taken over; runs whose project lock belongs to another run are skipped.
func (d *Dispatcher) Recover(ctx context.Context) (int, error) {
	var pending []*types.Run
	for _, status := range []types.RunStatus{types.RunStatusRunning, types.RunStatusQueued} {
		runs, err := d.tracker.List(ctx, types.RunFilter{Status: status})
		if err != nil {
			return 0, fmt.Errorf("failed to list %s runs: %w", status, err)
		}
		// oldest first
		for i := len(runs) - 1; i >= 0; i-- {
			pending = append(pending, runs[i])
		}
	}

	recovered := 0
	for _, run := range pending {
		if d.isInflight(run.ID) {
			continue
		}
		holder, ok, err := d.locker.Acquire(ctx, run.ProjectID, run.ID)
		if err != nil {
			return recovered, err
		}
		if !ok && holder == run.ID {
			if err := d.locker.Refresh(ctx, run.ProjectID, run.ID); err != nil {
				d.logger.Warn().Err(err).Str("run_id", run.ID.String()).Msg("failed to take over project lock")
				continue
			}
			ok = true
		}
		if !ok {
			d.logger.Warn().Str("run_id", run.ID.String()).Str("holder", holder.String()).
				Msg("project lock held elsewhere, not recovering run")
			continue
		}
		d.logger.Info().Str("run_id", run.ID.String()).Str("status", string(run.Status)).
			Int("step", run.CurrentStep).Msg("recovering run")
		d.launch(run.ID, run.ProjectID, d.engine.Start)
		recovered++
	}
	return recovered, nil
}

// Wait blocks until every launched run has returned
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close stops launching runs and waits for running ones to reach a step
// boundary. Interrupted runs stay running in the tracker for Recover.
func (d *Dispatcher) Close() {
	d.cancel()
	d.wg.Wait()
}

type execFunc func(ctx context.Context, runID uuid.UUID) (*types.Run, error)

func (d *Dispatcher) launch(runID uuid.UUID, projectID string, exec execFunc) {
	d.mu.Lock()
	d.inflight[runID] = true
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			d.mu.Lock()
			delete(d.inflight, runID)
			d.mu.Unlock()
		}()

		if err := d.sem.Acquire(d.ctx, 1); err != nil {
			// shutting down; the run stays queued for Recover
			return
		}
		defer d.sem.Release(1)

		logger := d.logger.With().Str("run_id", runID.String()).Logger()
		stop := d.keepLock(projectID, runID, logger)
		run, err := exec(d.ctx, runID)
		stop()

		switch {
		case err != nil && d.ctx.Err() != nil:
			logger.Info().Msg("run interrupted by shutdown")
			return
		case errors.Is(err, types.ErrInvalidTransition):
			// cancelled while waiting for a worker
			logger.Info().Err(err).Msg("run not started")
		case err != nil:
			logger.Error().Err(err).Msg("run execution failed")
		}
		if run != nil && (run.Status.IsTerminal() || run.Status == types.RunStatusPaused) {
			d.release(projectID, runID)
		}
		if run != nil {
			logger.Info().Str("status", string(run.Status)).Msg("run returned")
		}
	}()
}

// keepLock renews the project lock until the returned function is called
func (d *Dispatcher) keepLock(projectID string, runID uuid.UUID, logger zerolog.Logger) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(d.refresh)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := d.locker.Refresh(d.ctx, projectID, runID); err != nil {
					logger.Warn().Err(err).Msg("failed to refresh project lock")
				}
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

func (d *Dispatcher) release(projectID string, runID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := d.locker.Release(ctx, projectID, runID); err != nil && !errors.Is(err, lock.ErrNotHeld) {
		d.logger.Warn().Err(err).Str("run_id", runID.String()).Msg("failed to release project lock")
	}
}

func (d *Dispatcher) isInflight(runID uuid.UUID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inflight[runID]
}
