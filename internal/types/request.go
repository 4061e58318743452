package types

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// DefaultPipeline is used when a submission does not name a pipeline
const DefaultPipeline = "idea_to_launch"

// SubmitRequest is the payload accepted by the run dispatcher.
type SubmitRequest struct {
	ProjectID   string   `json:"project_id" validate:"required,max=128"`
	Pipeline    string   `json:"pipeline_name,omitempty" validate:"omitempty,max=64"`
	Sector      string   `json:"sector" validate:"required,max=128"`
	Idea        string   `json:"idea" validate:"required,min=50,max=5000"`
	Constraints []string `json:"constraints,omitempty" validate:"omitempty,max=20,dive,max=500"`
}

// Normalize trims whitespace and fills in the default pipeline name.
func (r *SubmitRequest) Normalize() {
	r.ProjectID = strings.TrimSpace(r.ProjectID)
	r.Pipeline = strings.TrimSpace(r.Pipeline)
	r.Sector = strings.TrimSpace(r.Sector)
	r.Idea = strings.TrimSpace(r.Idea)
	if r.Pipeline == "" {
		r.Pipeline = DefaultPipeline
	}
	kept := r.Constraints[:0]
	for _, c := range r.Constraints {
		if c = strings.TrimSpace(c); c != "" {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		kept = nil
	}
	r.Constraints = kept
}

// Validate validates the SubmitRequest using the validator.
func (r *SubmitRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// NotificationArtifact is the artifact reference carried by a completion notification
type NotificationArtifact struct {
	Type     ArtifactKind `json:"type"`
	Locator  string       `json:"locator"`
	Checksum string       `json:"checksum,omitempty"`
}

// Notification is sent to the automation collaborator when a run ends
type Notification struct {
	RunID           uuid.UUID              `json:"run_id"`
	ProjectID       string                 `json:"project_id"`
	Status          RunStatus              `json:"status"`
	Artifacts       []NotificationArtifact `json:"artifacts"`
	ValidationScore *float64               `json:"validation_score"`
	Error           string                 `json:"error,omitempty"`
	Timestamp       time.Time              `json:"timestamp"`
}

// NewNotification builds the completion notification for a terminal run.
func NewNotification(run *Run, at time.Time) Notification {
	n := Notification{
		RunID:           run.ID,
		ProjectID:       run.ProjectID,
		Status:          run.Status,
		Artifacts:       make([]NotificationArtifact, 0, len(run.Artifacts)),
		ValidationScore: run.Metrics.ValidationScore,
		Timestamp:       at.UTC(),
	}
	for _, a := range run.Artifacts {
		n.Artifacts = append(n.Artifacts, NotificationArtifact{Type: a.Kind, Locator: a.Locator, Checksum: a.Checksum})
	}
	if last := run.LastError(); last != nil {
		n.Error = last.Message
	}
	return n
}
