package server

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/jonathan/ideaforge/internal/artifacts"
	"github.com/jonathan/ideaforge/internal/dispatch"
	"github.com/jonathan/ideaforge/internal/types"
)

func TestErrValidation(t *testing.T) {
	err := &ErrValidation{Field: "limit", Message: "must be a positive integer"}
	assert.Equal(t, "validation error: limit - must be a positive integer", err.Error())
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
}

func TestHTTPStatus(t *testing.T) {
	runID := uuid.New()
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "invalid request", err: fmt.Errorf("%w: idea too short", dispatch.ErrInvalidRequest), want: http.StatusBadRequest},
		{name: "conflict", err: &types.ConflictError{ProjectID: "p1", ExistingRunID: runID}, want: http.StatusConflict},
		{name: "invalid transition", err: &types.InvalidTransitionError{RunID: runID, From: types.RunStatusCompleted, To: types.RunStatusRunning}, want: http.StatusConflict},
		{name: "run not found", err: fmt.Errorf("get: %w", types.ErrRunNotFound), want: http.StatusNotFound},
		{name: "artifact not found", err: artifacts.ErrNotFound, want: http.StatusNotFound},
		{name: "unexpected", err: fmt.Errorf("connection reset"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}
