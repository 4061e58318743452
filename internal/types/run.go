// Package types provides the shared data model for runs, run state and artifacts.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a run
type RunStatus string

// Run status constants
const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusPaused    RunStatus = "paused"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// transitions lists every allowed status change. Anything not listed is rejected,
// which keeps status monotonic and terminal states final.
var transitions = map[RunStatus][]RunStatus{
	RunStatusQueued:  {RunStatusRunning, RunStatusCancelled},
	RunStatusRunning: {RunStatusPaused, RunStatusCompleted, RunStatusFailed, RunStatusCancelled},
	RunStatusPaused:  {RunStatusRunning, RunStatusCancelled},
}

// IsTerminal reports whether no further transitions are possible.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// IsActive reports whether the status counts against the one-run-per-project rule.
func (s RunStatus) IsActive() bool {
	return s.Valid() && !s.IsTerminal()
}

// Valid reports whether s is a known status.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusQueued, RunStatusRunning, RunStatusPaused,
		RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ActiveStatuses returns the statuses of a non-terminal run.
func ActiveStatuses() []RunStatus {
	return []RunStatus{RunStatusQueued, RunStatusRunning, RunStatusPaused}
}

// ErrorKind classifies an entry in a run's error list
type ErrorKind string

// Error kind constants
const (
	ErrorKindTransientExhausted ErrorKind = "transient_exhausted"
	ErrorKindValidation         ErrorKind = "validation"
	ErrorKindFatal              ErrorKind = "fatal"
	ErrorKindTimeout            ErrorKind = "timeout"
	ErrorKindCancelled          ErrorKind = "cancelled"
)

// RunError is a terminal error recorded against a run
type RunError struct {
	Step    string    `json:"step"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// StepMetrics records how a single step went
type StepMetrics struct {
	Attempts    int       `json:"attempts"`
	DurationMs  int64     `json:"duration_ms"`
	CompletedAt time.Time `json:"completed_at"`
}

// RunMetrics aggregates step metrics and the final quality score
type RunMetrics struct {
	Steps           map[string]StepMetrics `json:"steps,omitempty"`
	TotalDurationMs int64                  `json:"total_duration_ms,omitempty"`
	ValidationScore *float64               `json:"validation_score,omitempty"`
}

// Clone returns a deep copy of the metrics.
func (m RunMetrics) Clone() RunMetrics {
	out := RunMetrics{TotalDurationMs: m.TotalDurationMs}
	if m.Steps != nil {
		out.Steps = make(map[string]StepMetrics, len(m.Steps))
		for k, v := range m.Steps {
			out.Steps[k] = v
		}
	}
	if m.ValidationScore != nil {
		score := *m.ValidationScore
		out.ValidationScore = &score
	}
	return out
}

// Run is one execution of a pipeline for a project
type Run struct {
	ID              uuid.UUID  `json:"run_id"`
	ProjectID       string     `json:"project_id"`
	Pipeline        string     `json:"pipeline_name"`
	Status          RunStatus  `json:"status"`
	Steps           []string   `json:"steps"`
	CurrentStep     int        `json:"current_step"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Errors          []RunError `json:"errors"`
	Warnings        []string   `json:"warnings,omitempty"`
	Metrics         RunMetrics `json:"metrics"`
	Artifacts       []Artifact `json:"artifacts"`
	ApprovedSteps   []string   `json:"approved_steps,omitempty"`
	CancelRequested bool       `json:"cancel_requested,omitempty"`
}

// CurrentStepName returns the name of the step at CurrentStep, or "" once past the end.
func (r *Run) CurrentStepName() string {
	if r.CurrentStep < 0 || r.CurrentStep >= len(r.Steps) {
		return ""
	}
	return r.Steps[r.CurrentStep]
}

// IsApproved reports whether a review-gated step has been approved for this run.
func (r *Run) IsApproved(step string) bool {
	for _, s := range r.ApprovedSteps {
		if s == step {
			return true
		}
	}
	return false
}

// LastError returns the most recent error, or nil.
func (r *Run) LastError() *RunError {
	if len(r.Errors) == 0 {
		return nil
	}
	return &r.Errors[len(r.Errors)-1]
}

// Clone returns a deep copy so callers can never alias tracker-owned data.
func (r *Run) Clone() *Run {
	if r == nil {
		return nil
	}
	out := *r
	out.Steps = append([]string(nil), r.Steps...)
	out.Errors = append([]RunError(nil), r.Errors...)
	out.Warnings = append([]string(nil), r.Warnings...)
	out.Artifacts = append([]Artifact(nil), r.Artifacts...)
	out.ApprovedSteps = append([]string(nil), r.ApprovedSteps...)
	out.Metrics = r.Metrics.Clone()
	if r.StartedAt != nil {
		t := *r.StartedAt
		out.StartedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

// RunFilter narrows a run listing
type RunFilter struct {
	ProjectID string
	Status    RunStatus
	Limit     int
}
