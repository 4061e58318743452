package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/ideaforge/internal/types"
)

type memoryRecord struct {
	run   *types.Run
	state []byte // JSON snapshot of the last checkpointed state
}

// Memory is an in-process Tracker. State is kept as JSON snapshots so that it
// goes through the same serialisation as the database tracker.
type Memory struct {
	mu     sync.Mutex
	runs   map[uuid.UUID]*memoryRecord
	active map[string]uuid.UUID
	now    func() time.Time
}

// NewMemory creates an empty in-memory tracker
func NewMemory() *Memory {
	return &Memory{
		runs:   make(map[uuid.UUID]*memoryRecord),
		active: make(map[string]uuid.UUID),
		now:    time.Now,
	}
}

// CreateRun implements Tracker.
func (m *Memory) CreateRun(_ context.Context, run *types.Run, initial types.RunState) error {
	if run.Status != types.RunStatusQueued {
		return fmt.Errorf("new run must be queued, got %s", run.Status)
	}
	state, err := json.Marshal(initial)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.active[run.ProjectID]; ok {
		return &types.ConflictError{ProjectID: run.ProjectID, ExistingRunID: existing}
	}
	if _, ok := m.runs[run.ID]; ok {
		return fmt.Errorf("run %s already exists", run.ID)
	}

	stored := run.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = m.now().UTC()
	}
	m.runs[run.ID] = &memoryRecord{run: stored, state: state}
	m.active[run.ProjectID] = run.ID
	run.CreatedAt = stored.CreatedAt
	return nil
}

// Checkpoint implements Tracker. The state is serialised before the lock is
// taken, so a failure leaves the record untouched.
func (m *Memory) Checkpoint(_ context.Context, runID uuid.UUID, cp Checkpoint) error {
	state, err := json.Marshal(cp.State)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.runs[runID]
	if !ok {
		return types.ErrRunNotFound
	}
	next := rec.run.Clone()
	if err := ApplyCheckpoint(next, cp); err != nil {
		return err
	}
	rec.run = next
	rec.state = state
	return nil
}

// MarkStatus implements Tracker.
func (m *Memory) MarkStatus(_ context.Context, runID uuid.UUID, status types.RunStatus, runErr *types.RunError) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.runs[runID]
	if !ok {
		return types.ErrRunNotFound
	}
	if err := ApplyStatus(rec.run, status, runErr, m.now()); err != nil {
		return err
	}
	if status.IsTerminal() {
		m.release(rec.run)
	}
	return nil
}

// Complete implements Tracker.
func (m *Memory) Complete(_ context.Context, runID uuid.UUID, score float64, totalDurationMs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.runs[runID]
	if !ok {
		return types.ErrRunNotFound
	}
	if err := ApplyStatus(rec.run, types.RunStatusCompleted, nil, m.now()); err != nil {
		return err
	}
	rec.run.Metrics.ValidationScore = &score
	rec.run.Metrics.TotalDurationMs = totalDurationMs
	m.release(rec.run)
	return nil
}

func (m *Memory) release(run *types.Run) {
	if m.active[run.ProjectID] == run.ID {
		delete(m.active, run.ProjectID)
	}
}

// Get implements Tracker.
func (m *Memory) Get(_ context.Context, runID uuid.UUID) (*types.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.runs[runID]
	if !ok {
		return nil, types.ErrRunNotFound
	}
	return rec.run.Clone(), nil
}

// State implements Tracker.
func (m *Memory) State(_ context.Context, runID uuid.UUID) (types.RunState, error) {
	m.mu.Lock()
	rec, ok := m.runs[runID]
	var raw []byte
	if ok {
		raw = rec.state
	}
	m.mu.Unlock()

	if !ok {
		return types.RunState{}, types.ErrRunNotFound
	}
	var state types.RunState
	if err := json.Unmarshal(raw, &state); err != nil {
		return types.RunState{}, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return state, nil
}

// List implements Tracker.
func (m *Memory) List(_ context.Context, filter types.RunFilter) ([]*types.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*types.Run
	for _, rec := range m.runs {
		if filter.ProjectID != "" && rec.run.ProjectID != filter.ProjectID {
			continue
		}
		if filter.Status != "" && rec.run.Status != filter.Status {
			continue
		}
		out = append(out, rec.run.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// RequestCancel implements Tracker.
func (m *Memory) RequestCancel(_ context.Context, runID uuid.UUID) (*types.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.runs[runID]
	if !ok {
		return nil, types.ErrRunNotFound
	}
	if rec.run.Status.IsTerminal() {
		return nil, &types.InvalidTransitionError{RunID: runID, From: rec.run.Status, To: types.RunStatusCancelled}
	}
	rec.run.CancelRequested = true
	return rec.run.Clone(), nil
}

// ApproveReview implements Tracker.
func (m *Memory) ApproveReview(_ context.Context, runID uuid.UUID, step string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.runs[runID]
	if !ok {
		return types.ErrRunNotFound
	}
	if !rec.run.IsApproved(step) {
		rec.run.ApprovedSteps = append(rec.run.ApprovedSteps, step)
	}
	return nil
}

// AddWarning implements Tracker.
func (m *Memory) AddWarning(_ context.Context, runID uuid.UUID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.runs[runID]
	if !ok {
		return types.ErrRunNotFound
	}
	rec.run.Warnings = append(rec.run.Warnings, message)
	return nil
}
