// Package server provides the HTTP REST API for submitting and observing runs.
package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/ideaforge/internal/artifacts"
	"github.com/jonathan/ideaforge/internal/dispatch"
	"github.com/jonathan/ideaforge/internal/types"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var validation *ErrValidation
	var conflict *types.ConflictError
	switch {
	case errors.As(err, &validation), errors.Is(err, dispatch.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.As(err, &conflict), errors.Is(err, types.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, types.ErrRunNotFound), errors.Is(err, artifacts.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
