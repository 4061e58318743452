package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/ideaforge/internal/pipeline"
	"github.com/jonathan/ideaforge/internal/server/middleware"
	"github.com/jonathan/ideaforge/internal/types"
)

const (
	maxRequestBody   = 1 << 20
	defaultListLimit = 50
	maxListLimit     = 200
)

// runResponse acknowledges an accepted submission or command
type runResponse struct {
	RunID           uuid.UUID       `json:"run_id"`
	Status          types.RunStatus `json:"status"`
	CancelRequested bool            `json:"cancel_requested,omitempty"`
}

type listRunsResponse struct {
	Runs  []*types.Run `json:"runs"`
	Count int          `json:"count"`
}

// handleSubmitRun starts a new run for a project
func (s *Server) handleSubmitRun(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	var req types.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}

	run, err := s.dispatcher.Submit(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	subject, _ := middleware.GetSubject(r)
	s.logger.Info().
		Str("run_id", run.ID.String()).
		Str("project_id", run.ProjectID).
		Str("subject", subject).
		Msg("run accepted")

	w.Header().Set("Location", "/runs/"+run.ID.String())
	s.jsonResponse(w, http.StatusAccepted, runResponse{RunID: run.ID, Status: run.Status})
}

// handleGetRun returns a run's status, progress, artifacts and errors
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID, err := parseRunID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	run, err := s.tracker.Get(r.Context(), runID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, run)
}

// handleListRuns lists runs newest first, filtered by project and status
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	filter, err := parseRunFilter(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	runs, err := s.tracker.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if runs == nil {
		runs = []*types.Run{}
	}
	s.jsonResponse(w, http.StatusOK, listRunsResponse{Runs: runs, Count: len(runs)})
}

// handleResumeRun approves a paused run and continues it
func (s *Server) handleResumeRun(w http.ResponseWriter, r *http.Request) {
	runID, err := parseRunID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	run, err := s.dispatcher.Resume(r.Context(), runID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusAccepted, runResponse{RunID: run.ID, Status: run.Status})
}

// handleCancelRun cancels a run. Running runs stop at the next step boundary.
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID, err := parseRunID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	run, err := s.dispatcher.Cancel(r.Context(), runID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusAccepted, runResponse{RunID: run.ID, Status: run.Status, CancelRequested: run.CancelRequested})
}

// handleRunEvents streams progress events as Server-Sent Events. The stream
// opens with a snapshot of the run and closes once the run is paused or
// terminal.
func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	runID, err := parseRunID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// subscribe before reading the run so no transition falls in between
	events, unsubscribe := s.events.Subscribe(runID)
	defer unsubscribe()

	run, err := s.tracker.Get(r.Context(), runID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := sse.WriteEvent("snapshot", run); err != nil {
		return
	}
	if run.Status != types.RunStatusQueued && run.Status != types.RunStatusRunning {
		sse.WriteComplete(runID.String(), string(run.Status))
		return
	}

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := sse.WriteComment("ping"); err != nil {
				return
			}
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := sse.WriteEvent(string(e.Kind), e); err != nil {
				return
			}
			if e.Kind.Final() {
				status := finalStatus(e.Kind)
				if latest, err := s.tracker.Get(r.Context(), runID); err == nil {
					status = latest.Status
				}
				sse.WriteComplete(runID.String(), string(status))
				return
			}
		}
	}
}

// handleGetArtifact returns the bytes of a run's artifact of the given kind
func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	runID, err := parseRunID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	kind := types.ArtifactKind(r.PathValue("kind"))
	if !kind.Valid() {
		s.writeError(w, r, &ErrValidation{Field: "kind", Message: fmt.Sprintf("unknown artifact kind %q", kind)})
		return
	}

	run, err := s.tracker.Get(r.Context(), runID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var artifact *types.Artifact
	for i := range run.Artifacts {
		if run.Artifacts[i].Kind == kind {
			artifact = &run.Artifacts[i]
		}
	}
	if artifact == nil {
		s.errorResponse(w, http.StatusNotFound, fmt.Sprintf("run %s has no %s artifact", runID, kind))
		return
	}

	data, err := s.store.Get(r.Context(), artifact.Locator)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-Artifact-Checksum", artifact.Checksum)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Warn().Err(err).Str("run_id", runID.String()).Msg("failed to write artifact")
	}
}

func parseRunID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, &ErrValidation{Field: "id", Message: "must be a UUID"}
	}
	return id, nil
}

func parseRunFilter(r *http.Request) (types.RunFilter, error) {
	q := r.URL.Query()
	filter := types.RunFilter{
		ProjectID: q.Get("project_id"),
		Status:    types.RunStatus(q.Get("status")),
		Limit:     defaultListLimit,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return filter, &ErrValidation{Field: "status", Message: fmt.Sprintf("unknown status %q", filter.Status)}
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return filter, &ErrValidation{Field: "limit", Message: "must be a positive integer"}
		}
		filter.Limit = min(limit, maxListLimit)
	}
	return filter, nil
}

func finalStatus(kind pipeline.EventKind) types.RunStatus {
	switch kind {
	case pipeline.EventRunPaused:
		return types.RunStatusPaused
	case pipeline.EventRunCompleted:
		return types.RunStatusCompleted
	case pipeline.EventRunFailed:
		return types.RunStatusFailed
	case pipeline.EventRunCancelled:
		return types.RunStatusCancelled
	}
	return ""
}
