// Package lock provides the per-project execution lock. A project's lock is
// owned by a run id so only the run that took it can release it.
package lock

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotHeld is returned when the caller does not own the lock
var ErrNotHeld = errors.New("lock not held by owner")

// Locker grants at most one owner per project. A held lock is never
// re-entered, not even by its own owner.
type Locker interface {
	// Acquire takes the lock for owner. When the lock is already held, ok is
	// false and holder names the current owner, which may be owner itself.
	Acquire(ctx context.Context, projectID string, owner uuid.UUID) (holder uuid.UUID, ok bool, err error)

	// Release frees the lock if owner holds it.
	Release(ctx context.Context, projectID string, owner uuid.UUID) error

	// Refresh extends the lock's lease if owner holds it.
	Refresh(ctx context.Context, projectID string, owner uuid.UUID) error
}

func key(projectID string) string {
	return "ideaforge:lock:project:" + projectID
}
