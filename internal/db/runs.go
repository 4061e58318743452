package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jonathan/ideaforge/internal/tracker"
	"github.com/jonathan/ideaforge/internal/types"
)

const (
	uniqueViolation = "23505"
	activeRunIndex  = "runs_one_active_per_project"
)

const runColumns = `id, project_id, pipeline_name, status, steps, current_step, errors,
	warnings, metrics, approved_steps, cancel_requested, created_at, started_at, completed_at`

var _ tracker.Tracker = (*DB)(nil)

// snapshotTx is used for reads that combine the runs row with its artifact rows.
// A repeatable-read snapshot sees a checkpoint either entirely or not at all.
var snapshotTx = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

// querier is satisfied by both the pool and a transaction
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// -----------------------------------------------------------------------------
// Run Tracker Methods
// -----------------------------------------------------------------------------

// CreateRun inserts a queued run. The partial unique index on project_id turns a
// second active run for the same project into a ConflictError.
func (db *DB) CreateRun(ctx context.Context, run *types.Run, initial types.RunState) error {
	if run.Status != types.RunStatusQueued {
		return fmt.Errorf("new run must be queued, got %s", run.Status)
	}
	stateJSON, err := json.Marshal(initial)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO runs (id, project_id, pipeline_name, status, steps, current_step, state, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.ProjectID, run.Pipeline, string(run.Status), run.Steps, run.CurrentStep, stateJSON, run.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == activeRunIndex {
			existing, lookupErr := db.activeRunID(ctx, run.ProjectID)
			if lookupErr != nil {
				return fmt.Errorf("failed to look up active run: %w", lookupErr)
			}
			return &types.ConflictError{ProjectID: run.ProjectID, ExistingRunID: existing}
		}
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

func (db *DB) activeRunID(ctx context.Context, projectID string) (uuid.UUID, error) {
	var id uuid.UUID
	err := db.pool.QueryRow(ctx,
		`SELECT id FROM runs WHERE project_id = $1 AND status IN ('queued', 'running', 'paused')`,
		projectID,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// the other run finished between the insert and this lookup
			return uuid.Nil, nil
		}
		return uuid.Nil, err
	}
	return id, nil
}

// Checkpoint writes the step's state, its artifact records and the run's new
// position in one transaction.
func (db *DB) Checkpoint(ctx context.Context, runID uuid.UUID, cp tracker.Checkpoint) error {
	stateJSON, err := json.Marshal(cp.State)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	_, err = db.updateRun(ctx, runID, func(tx pgx.Tx, run *types.Run) error {
		if err := tracker.ApplyCheckpoint(run, cp); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE runs SET state = $2 WHERE id = $1`,
			runID, stateJSON,
		); err != nil {
			return fmt.Errorf("failed to save state: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO run_checkpoints (run_id, step_index, step, state, attempts, duration_ms)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (run_id, step_index) DO UPDATE
			 SET step = $3, state = $4, attempts = $5, duration_ms = $6, created_at = NOW()`,
			runID, cp.StepIndex, cp.Step, stateJSON, cp.Metrics.Attempts, cp.Metrics.DurationMs,
		); err != nil {
			return fmt.Errorf("failed to save checkpoint: %w", err)
		}

		for _, a := range cp.Artifacts {
			if _, err := tx.Exec(ctx,
				`INSERT INTO run_artifacts (run_id, kind, step, step_index, locator, size, content_type, checksum, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				 ON CONFLICT (run_id, kind) DO UPDATE
				 SET step = $3, step_index = $4, locator = $5, size = $6, content_type = $7, checksum = $8, created_at = $9`,
				runID, string(a.Kind), cp.Step, cp.StepIndex, a.Locator, a.Size, a.ContentType, a.Checksum, a.CreatedAt,
			); err != nil {
				return fmt.Errorf("failed to save artifact %s: %w", a.Kind, err)
			}
		}
		return nil
	})
	return err
}

// MarkStatus moves the run through the status state machine
func (db *DB) MarkStatus(ctx context.Context, runID uuid.UUID, status types.RunStatus, runErr *types.RunError) error {
	_, err := db.updateRun(ctx, runID, func(_ pgx.Tx, run *types.Run) error {
		return tracker.ApplyStatus(run, status, runErr, time.Now())
	})
	return err
}

// Complete marks the run completed and records its score
func (db *DB) Complete(ctx context.Context, runID uuid.UUID, score float64, totalDurationMs int64) error {
	_, err := db.updateRun(ctx, runID, func(_ pgx.Tx, run *types.Run) error {
		if err := tracker.ApplyStatus(run, types.RunStatusCompleted, nil, time.Now()); err != nil {
			return err
		}
		run.Metrics.ValidationScore = &score
		run.Metrics.TotalDurationMs = totalDurationMs
		return nil
	})
	return err
}

// RequestCancel sets the cancel flag on a non-terminal run
func (db *DB) RequestCancel(ctx context.Context, runID uuid.UUID) (*types.Run, error) {
	return db.updateRun(ctx, runID, func(tx pgx.Tx, run *types.Run) error {
		if run.Status.IsTerminal() {
			return &types.InvalidTransitionError{RunID: runID, From: run.Status, To: types.RunStatusCancelled}
		}
		run.CancelRequested = true
		// read under the row lock so no checkpoint lands in between
		artifacts, err := loadArtifacts(ctx, tx, runID)
		if err != nil {
			return err
		}
		run.Artifacts = artifacts
		return nil
	})
}

// ApproveReview records approval for a review-gated step
func (db *DB) ApproveReview(ctx context.Context, runID uuid.UUID, step string) error {
	_, err := db.updateRun(ctx, runID, func(_ pgx.Tx, run *types.Run) error {
		if !run.IsApproved(step) {
			run.ApprovedSteps = append(run.ApprovedSteps, step)
		}
		return nil
	})
	return err
}

// AddWarning appends a warning to the run
func (db *DB) AddWarning(ctx context.Context, runID uuid.UUID, message string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE runs SET warnings = array_append(warnings, $2) WHERE id = $1`,
		runID, message,
	)
	if err != nil {
		return fmt.Errorf("failed to add warning: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrRunNotFound
	}
	return nil
}

// Get retrieves a run with its artifacts from one snapshot
func (db *DB) Get(ctx context.Context, runID uuid.UUID) (*types.Run, error) {
	var run *types.Run
	err := pgx.BeginTxFunc(ctx, db.pool, snapshotTx, func(tx pgx.Tx) error {
		var err error
		run, err = scanRun(tx.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, runID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return types.ErrRunNotFound
			}
			return fmt.Errorf("failed to get run: %w", err)
		}
		run.Artifacts, err = loadArtifacts(ctx, tx, runID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// State returns the state saved by the last checkpoint
func (db *DB) State(ctx context.Context, runID uuid.UUID) (types.RunState, error) {
	var raw []byte
	err := db.pool.QueryRow(ctx, `SELECT state FROM runs WHERE id = $1`, runID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.RunState{}, types.ErrRunNotFound
		}
		return types.RunState{}, fmt.Errorf("failed to get state: %w", err)
	}
	var state types.RunState
	if err := json.Unmarshal(raw, &state); err != nil {
		return types.RunState{}, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return state, nil
}

// List retrieves runs with optional filters, newest first. Rows and artifacts
// come from one snapshot.
func (db *DB) List(ctx context.Context, filter types.RunFilter) ([]*types.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	args := []any{}
	argNum := 1

	if filter.ProjectID != "" {
		query += fmt.Sprintf(" AND project_id = $%d", argNum)
		args = append(args, filter.ProjectID)
		argNum++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, string(filter.Status))
		argNum++
	}

	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filter.Limit)
	}

	var runs []*types.Run
	err := pgx.BeginTxFunc(ctx, db.pool, snapshotTx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		for rows.Next() {
			run, err := scanRun(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan run: %w", err)
			}
			runs = append(runs, run)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}

		for _, run := range runs {
			if run.Artifacts, err = loadArtifacts(ctx, tx, run.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// updateRun locks the run row, lets fn change it and writes the mutable columns
// back, all inside one transaction. fn may issue its own statements on tx.
func (db *DB) updateRun(ctx context.Context, runID uuid.UUID, fn func(tx pgx.Tx, run *types.Run) error) (*types.Run, error) {
	var updated *types.Run
	err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		run, err := scanRun(tx.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1 FOR UPDATE`, runID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return types.ErrRunNotFound
			}
			return fmt.Errorf("failed to lock run: %w", err)
		}

		if err := fn(tx, run); err != nil {
			return err
		}

		errorsJSON, err := json.Marshal(run.Errors)
		if err != nil {
			return fmt.Errorf("failed to marshal errors: %w", err)
		}
		metricsJSON, err := json.Marshal(run.Metrics)
		if err != nil {
			return fmt.Errorf("failed to marshal metrics: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE runs
			 SET status = $2, current_step = $3, errors = $4, warnings = $5, metrics = $6,
			     approved_steps = $7, cancel_requested = $8, started_at = $9, completed_at = $10
			 WHERE id = $1`,
			runID, string(run.Status), run.CurrentStep, errorsJSON, nonNil(run.Warnings), metricsJSON,
			nonNil(run.ApprovedSteps), run.CancelRequested, run.StartedAt, run.CompletedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to update run: %w", err)
		}
		updated = run
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func loadArtifacts(ctx context.Context, q querier, runID uuid.UUID) ([]types.Artifact, error) {
	rows, err := q.Query(ctx,
		`SELECT kind, step, locator, size, content_type, checksum, created_at
		 FROM run_artifacts WHERE run_id = $1
		 ORDER BY step_index, kind`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	artifacts := []types.Artifact{}
	for rows.Next() {
		var a types.Artifact
		var kind string
		if err := rows.Scan(&kind, &a.Step, &a.Locator, &a.Size, &a.ContentType, &a.Checksum, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		a.Kind = types.ArtifactKind(kind)
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

func scanRun(row pgx.Row) (*types.Run, error) {
	var run types.Run
	var status string
	var errorsJSON, metricsJSON []byte

	err := row.Scan(&run.ID, &run.ProjectID, &run.Pipeline, &status, &run.Steps, &run.CurrentStep,
		&errorsJSON, &run.Warnings, &metricsJSON, &run.ApprovedSteps, &run.CancelRequested,
		&run.CreatedAt, &run.StartedAt, &run.CompletedAt)
	if err != nil {
		return nil, err
	}
	run.Status = types.RunStatus(status)

	if err := json.Unmarshal(errorsJSON, &run.Errors); err != nil {
		return nil, fmt.Errorf("failed to unmarshal errors: %w", err)
	}
	if err := json.Unmarshal(metricsJSON, &run.Metrics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
	}
	if len(run.Warnings) == 0 {
		run.Warnings = nil
	}
	if len(run.ApprovedSteps) == 0 {
		run.ApprovedSteps = nil
	}
	return &run, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
