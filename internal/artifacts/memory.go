package artifacts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/ideaforge/internal/types"
)

const memoryBucket = "local"

// MemoryStore keeps artifacts in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Put stores a private copy of data, replacing any previous content for the key.
func (m *MemoryStore) Put(_ context.Context, projectID string, runID uuid.UUID, kind types.ArtifactKind, data []byte, contentType string) (types.Artifact, error) {
	if err := validatePut(projectID, runID, kind); err != nil {
		return types.Artifact{}, err
	}

	key := Key(projectID, runID, kind)
	stored := append([]byte(nil), data...)

	m.mu.Lock()
	m.objects[key] = stored
	m.mu.Unlock()

	return types.Artifact{
		Kind:        kind,
		Locator:     Locator{Scheme: "mem", Bucket: memoryBucket, Key: key}.String(),
		Size:        int64(len(stored)),
		ContentType: contentType,
		Checksum:    types.Checksum(stored),
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// Get returns a copy of the content at locator.
func (m *MemoryStore) Get(_ context.Context, locator string) ([]byte, error) {
	loc, err := ParseLocator(locator)
	if err != nil {
		return nil, err
	}
	if loc.Scheme != "mem" {
		return nil, fmt.Errorf("%w: %s is not a memory locator", ErrInvalidLocator, locator)
	}

	m.mu.RLock()
	data, ok := m.objects[loc.Key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
