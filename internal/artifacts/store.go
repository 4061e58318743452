// Package artifacts stores generated step output outside the run tracker and
// hands back stable locators.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/jonathan/ideaforge/internal/types"
)

// Common errors
var (
	ErrNotFound       = errors.New("artifact not found")
	ErrInvalidLocator = errors.New("invalid artifact locator")
)

// Store puts and gets artifact content. Keys are scoped by run, so a later run
// of the same project never touches an earlier run's objects. A Put for a
// (project, run, kind) that already exists replaces the old content in one
// step; readers see either the old bytes or the new ones.
type Store interface {
	Put(ctx context.Context, projectID string, runID uuid.UUID, kind types.ArtifactKind, data []byte, contentType string) (types.Artifact, error)
	Get(ctx context.Context, locator string) ([]byte, error)
}

// Key returns the object key for one run's artifact of the given kind.
func Key(projectID string, runID uuid.UUID, kind types.ArtifactKind) string {
	return "projects/" + url.PathEscape(projectID) + "/runs/" + runID.String() + "/" + string(kind)
}

// Locator is a parsed artifact locator of the form scheme://bucket/key
type Locator struct {
	Scheme string
	Bucket string
	Key    string
}

func (l Locator) String() string {
	return l.Scheme + "://" + l.Bucket + "/" + l.Key
}

// ParseLocator splits a locator into its parts.
func ParseLocator(locator string) (Locator, error) {
	scheme, rest, ok := strings.Cut(locator, "://")
	if !ok || scheme == "" {
		return Locator{}, fmt.Errorf("%w: %q", ErrInvalidLocator, locator)
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return Locator{}, fmt.Errorf("%w: %q", ErrInvalidLocator, locator)
	}
	return Locator{Scheme: scheme, Bucket: bucket, Key: key}, nil
}

func validatePut(projectID string, runID uuid.UUID, kind types.ArtifactKind) error {
	if strings.TrimSpace(projectID) == "" {
		return &types.FatalError{Op: "artifact_put", Err: errors.New("project id is empty")}
	}
	if runID == uuid.Nil {
		return &types.FatalError{Op: "artifact_put", Err: errors.New("run id is empty")}
	}
	if !kind.Valid() {
		return &types.FatalError{Op: "artifact_put", Err: fmt.Errorf("unknown artifact kind %q", kind)}
	}
	return nil
}
