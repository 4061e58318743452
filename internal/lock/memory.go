package lock

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryLocker is a process-local Locker without expiry
type MemoryLocker struct {
	mu      sync.Mutex
	holders map[string]uuid.UUID
}

// NewMemoryLocker creates an empty MemoryLocker
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{holders: make(map[string]uuid.UUID)}
}

// Acquire implements Locker.
func (l *MemoryLocker) Acquire(_ context.Context, projectID string, owner uuid.UUID) (uuid.UUID, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if holder, ok := l.holders[key(projectID)]; ok {
		return holder, false, nil
	}
	l.holders[key(projectID)] = owner
	return owner, true, nil
}

// Release implements Locker.
func (l *MemoryLocker) Release(_ context.Context, projectID string, owner uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if holder, ok := l.holders[key(projectID)]; !ok || holder != owner {
		return ErrNotHeld
	}
	delete(l.holders, key(projectID))
	return nil
}

// Refresh implements Locker.
func (l *MemoryLocker) Refresh(_ context.Context, projectID string, owner uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if holder, ok := l.holders[key(projectID)]; !ok || holder != owner {
		return ErrNotHeld
	}
	return nil
}

var _ Locker = (*MemoryLocker)(nil)
